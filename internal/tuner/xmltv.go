package tuner

import (
	"encoding/xml"
	"fmt"
	"io"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
	"github.com/frndlytuner/frndly-tuner/internal/guide"
)

// xmltvTime is the XMLTV timestamp layout; all output is UTC.
const xmltvTime = "20060102150405 +0000"

type xmlTV struct {
	XMLName       xml.Name       `xml:"tv"`
	SourceInfo    string         `xml:"source-info-name,attr"`
	GeneratorInfo string         `xml:"generator-info-name,attr"`
	Channels      []xmlChannel   `xml:"channel"`
	Programmes    []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID           string    `xml:"id,attr"`
	DisplayNames []xmlText `xml:"display-name"`
	Icon         *xmlIcon  `xml:"icon"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlText struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

type xmlCredits struct {
	Directors []string `xml:"director"`
	Actors    []string `xml:"actor"`
}

type xmlEpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type xmlRating struct {
	System string `xml:"system,attr,omitempty"`
	Value  string `xml:"value"`
}

type xmlFlag struct{}

// Field order follows the XMLTV DTD's element order.
type xmlProgramme struct {
	Start   string `xml:"start,attr"`
	Stop    string `xml:"stop,attr"`
	Channel string `xml:"channel,attr"`

	Title       xmlText         `xml:"title"`
	SubTitle    *xmlText        `xml:"sub-title"`
	Desc        *xmlText        `xml:"desc"`
	Credits     *xmlCredits     `xml:"credits"`
	Date        string          `xml:"date,omitempty"`
	Categories  []xmlText       `xml:"category"`
	Icon        *xmlIcon        `xml:"icon"`
	EpisodeNums []xmlEpisodeNum `xml:"episode-num"`
	Premiere    *xmlFlag        `xml:"premiere"`
	LastChance  *xmlFlag        `xml:"last-chance"`
	New         *xmlFlag        `xml:"new"`
	Rating      *xmlRating      `xml:"rating"`
}

// WriteXMLTV emits the filtered guide as an XMLTV document. The horizon is
// f.Days from now; programs starting past it are omitted. Pure function of
// its inputs.
func WriteXMLTV(w io.Writer, snap *guide.Snapshot, f Filters, now time.Time) error {
	doc := xmlTV{
		SourceInfo:    "Frndly TV",
		GeneratorInfo: "frndly-tuner",
	}
	horizon := now.Add(time.Duration(f.Days) * 24 * time.Hour)

	channels := f.Apply(snap.Channels)
	for _, ch := range channels {
		xc := xmlChannel{
			ID:           ch.ID,
			DisplayNames: []xmlText{{Value: ch.Name}},
		}
		if ch.Number > 0 {
			xc.DisplayNames = append(xc.DisplayNames, xmlText{Value: fmt.Sprint(ch.Number)})
		}
		if ch.LogoURL != "" {
			xc.Icon = &xmlIcon{Src: ch.LogoURL}
		}
		doc.Channels = append(doc.Channels, xc)
	}

	for _, ch := range channels {
		for _, p := range snap.Programs[ch.ID] {
			if !p.Start.Before(horizon) {
				continue
			}
			doc.Programmes = append(doc.Programmes, buildProgramme(ch, p))
		}
	}

	if _, err := io.WriteString(w, xml.Header+"<!DOCTYPE tv SYSTEM \"xmltv.dtd\">\n"); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func buildProgramme(ch catalog.Channel, p catalog.Program) xmlProgramme {
	xp := xmlProgramme{
		Start:   p.Start.UTC().Format(xmltvTime),
		Stop:    p.End.UTC().Format(xmltvTime),
		Channel: ch.ID,
		Title:   xmlText{Lang: "en", Value: p.Title},
	}
	if p.EpisodeTitle != "" && p.EpisodeTitle != p.Title {
		xp.SubTitle = &xmlText{Lang: "en", Value: p.EpisodeTitle}
	}
	if p.Desc != "" {
		xp.Desc = &xmlText{Lang: "en", Value: p.Desc}
	}
	if len(p.Directors) > 0 || len(p.Cast) > 0 {
		xp.Credits = &xmlCredits{Directors: p.Directors, Actors: p.Cast}
	}
	if p.Year > 0 {
		xp.Date = fmt.Sprint(p.Year)
	}
	for _, g := range p.Genres {
		xp.Categories = append(xp.Categories, xmlText{Lang: "en", Value: g})
	}
	if p.ImageURL != "" {
		xp.Icon = &xmlIcon{Src: p.ImageURL}
	} else if ch.LogoURL != "" {
		xp.Icon = &xmlIcon{Src: ch.LogoURL}
	}
	if p.Season > 0 && p.Episode > 0 {
		xp.EpisodeNums = []xmlEpisodeNum{
			// xmltv_ns counts from zero.
			{System: "xmltv_ns", Value: fmt.Sprintf("%d.%d.0/1", p.Season-1, p.Episode-1)},
			{System: "onscreen", Value: fmt.Sprintf("S%02dE%02d", p.Season, p.Episode)},
		}
	}
	if p.Premiere {
		xp.Premiere = &xmlFlag{}
	}
	if p.Finale {
		xp.LastChance = &xmlFlag{}
	}
	if p.New {
		xp.New = &xmlFlag{}
	}
	if p.Rating != "" {
		xp.Rating = &xmlRating{System: catalog.RatingSystem(p.Rating), Value: p.Rating}
	}
	return xp
}

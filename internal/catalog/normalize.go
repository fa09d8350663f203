package catalog

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/frndly"
)

// seasonEpisodeRE pulls "S01E05"-style markers out of titles when the
// metadata block carries no numbering.
var seasonEpisodeRE = regexp.MustCompile(`[Ss](\d+)[Ee](\d+)`)

// NormalizeChannel merges one upstream lineup row with its community-map
// entry. The map's channel number and slug win over the upstream metadata
// when present; gracenote ids only exist in the map.
func NormalizeChannel(raw frndly.RawChannel, liveMap map[string]frndly.LiveMapEntry, order int) Channel {
	id := raw.ID.String()
	entry, mapped := liveMap[id]

	ch := Channel{
		ID:         "frndly-" + id,
		UpstreamID: id,
		Name:       raw.Display.Title,
		Number:     raw.Metadata.ChannelNumber.Int(),
		LogoURL:    LogoURL(raw.Display.ImageURL),
		Slug:       id,
		Category:   firstOf(raw.Metadata.Category.String(), raw.Metadata.Group.String()),
		HD:         raw.Metadata.IsHD.True() || strings.Contains(strings.ToLower(raw.Display.Title), "hd"),
		SortOrder:  order,
	}
	if ch.Name == "" {
		ch.Name = "Unknown Channel"
	}
	if mapped {
		if n := entry.ChNo.Int(); n > 0 {
			ch.Number = n
		}
		if entry.Slug != "" {
			ch.Slug = fmt.Sprintf("%s-%s", entry.Slug, id)
		}
		ch.Gracenote = entry.Gracenote.String()
		if ch.LogoURL == "" && entry.Logo != "" {
			ch.LogoURL = entry.Logo
		}
	}
	if ch.Number == 0 {
		if n, err := strconv.Atoi(id); err == nil {
			ch.Number = n
		}
	}
	return ch
}

// NormalizeProgram converts one raw guide entry for the given channel.
// Entries without a positive time span are rejected; everything else is
// best effort.
func NormalizeProgram(raw frndly.RawProgram, channelID string) (Program, bool) {
	start := time.UnixMilli(raw.Display.Markers.StartTime.Value.Int64()).UTC()
	end := time.UnixMilli(raw.Display.Markers.EndTime.Value.Int64()).UTC()
	if raw.Display.Markers.StartTime.Value.Int64() <= 0 || !start.Before(end) {
		return Program{}, false
	}

	md := raw.Metadata
	p := Program{
		ChannelID:  channelID,
		Title:      raw.Display.Title,
		Subtitle:   raw.Display.Subtitle,
		Desc:       raw.Display.Description,
		Start:      start,
		End:        end,
		Live:       md.IsLive.True() || md.Live.True(),
		New:        md.IsNew.True() || md.New.True(),
		Premiere:   md.IsPremiere.True(),
		Finale:     md.IsFinale.True(),
		Rating:     NormalizeRating(firstOf(md.Rating.String(), md.TVRating.String(), md.ContentRating.String())),
		AirDate:    md.OriginalAir,
		Genres:     firstList(md.Genres, md.Genre),
		Cast:       firstList(md.Cast, md.Actors),
		Directors:  firstList(md.Directors, md.Director),
		SeriesID:   md.SeriesID.String(),
		TargetPath: raw.Target.Path,
	}
	if p.Title == "" {
		p.Title = "Unknown"
	}

	switch strings.ToLower(firstOf(md.ContentType.String(), md.Type.String())) {
	case "movie", "film", "feature":
		p.Kind = KindMovie
	default:
		p.Kind = KindSeries
	}

	p.Season = firstInt(md.SeasonNumber.Int(), md.Season.Int())
	p.Episode = firstInt(md.EpisodeNumber.Int(), md.Episode.Int())
	if p.Season == 0 || p.Episode == 0 {
		if m := seasonEpisodeRE.FindStringSubmatch(p.Title + " " + p.Subtitle); m != nil {
			s, _ := strconv.Atoi(m[1])
			e, _ := strconv.Atoi(m[2])
			if p.Season == 0 {
				p.Season = s
			}
			if p.Episode == 0 {
				p.Episode = e
			}
		}
	}
	p.EpisodeTitle = firstOf(md.EpisodeTitle, raw.Display.Subtitle)

	p.Year = firstInt(md.Year.Int(), md.ReleaseYear.Int())
	if p.Year == 0 && len(md.OriginalAir) >= 4 {
		if y, err := strconv.Atoi(md.OriginalAir[:4]); err == nil {
			p.Year = y
		}
	}

	for _, ref := range []string{raw.Display.ImageURL, md.Thumbnail, md.Image, md.PosterURL, md.BackgroundURL} {
		if u := ImageURL(ref); u != "" {
			p.ImageURL = u
			break
		}
	}
	return p, true
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstInt(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstList(lists ...frndly.FlexStrings) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return []string(l)
		}
	}
	return nil
}

package tuner

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
	"github.com/frndlytuner/frndly-tuner/internal/config"
)

// GracenoteFilter selects channels by gracenote availability.
type GracenoteFilter int

const (
	GracenoteAny GracenoteFilter = iota
	// GracenoteOnly keeps channels with a station id (client brings its
	// own guide data).
	GracenoteOnly
	// GracenoteNone keeps channels without one (client uses our EPG).
	GracenoteNone
)

// Filters are the playlist/EPG query parameters. Zero value selects
// everything with the default guide horizon.
type Filters struct {
	Include   map[string]bool // lowercased channel ids; nil = all
	Exclude   map[string]bool
	Gracenote GracenoteFilter
	StartChno int // renumber sequentially from here; 0 = keep real numbers
	Days      int
}

// ParseFilters reads filters from query parameters. Unknown values are
// ignored rather than rejected; a playlist URL pasted with a typo should
// still produce a playlist.
func ParseFilters(q url.Values, defaultDays int) Filters {
	f := Filters{
		Include: idSet(q.Get("include")),
		Exclude: idSet(q.Get("exclude")),
		Days:    defaultDays,
	}
	switch strings.ToLower(strings.TrimSpace(q.Get("gracenote"))) {
	case "include":
		f.Gracenote = GracenoteOnly
	case "exclude":
		f.Gracenote = GracenoteNone
	}
	if v := q.Get("start_chno"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.StartChno = n
		}
	}
	if v := q.Get("days"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			f.Days = n
		}
	}
	f.Days = config.ClampDays(f.Days)
	return f
}

// Apply selects the channels matching the filters, preserving order.
// Include and exclude run before the gracenote filter, so an explicitly
// included channel can still be dropped for lacking a station id.
func (f Filters) Apply(channels []catalog.Channel) []catalog.Channel {
	out := make([]catalog.Channel, 0, len(channels))
	for _, ch := range channels {
		id := strings.ToLower(ch.ID)
		if f.Include != nil && !f.Include[id] {
			continue
		}
		if f.Exclude != nil && f.Exclude[id] {
			continue
		}
		switch f.Gracenote {
		case GracenoteOnly:
			if ch.Gracenote == "" {
				continue
			}
		case GracenoteNone:
			if ch.Gracenote != "" {
				continue
			}
		}
		out = append(out, ch)
	}
	return out
}

// EPGQuery reproduces the gracenote/days part of the filters as a query
// string for the x-tvg-url the playlist advertises.
func (f Filters) EPGQuery() string {
	q := url.Values{}
	switch f.Gracenote {
	case GracenoteOnly:
		q.Set("gracenote", "include")
	case GracenoteNone:
		q.Set("gracenote", "exclude")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func idSet(raw string) map[string]bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	set := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			set[p] = true
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}

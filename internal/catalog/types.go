// Package catalog turns the upstream's loosely-typed payloads into the
// domain entities the rest of the process works with: a stable channel
// lineup and normalized guide programs. It also owns the
// renew-once-and-retry reaction to a rejected session, so neither the
// guide cache nor the resolver ever touch auth directly.
package catalog

import "time"

// Channel is one lineup entry. ID is the stable external identifier used
// in playlist and XMLTV output; UpstreamID is the raw numeric id the
// backend keys everything by.
type Channel struct {
	ID         string // "frndly-<upstream id>"
	UpstreamID string
	Name       string
	Number     int    // display number; live-map wins over upstream metadata
	LogoURL    string
	Gracenote  string // station id for external EPG matching; may be empty
	Slug       string // playback path component, "<map slug>-<id>" when mapped
	Category   string
	HD         bool
	SortOrder  int // position in the upstream lineup
}

// Kind classifies a program for output formatting (rating system, episode
// numbering).
type Kind int

const (
	KindSeries Kind = iota
	KindMovie
)

// Program is one normalized guide entry. Start and End are UTC;
// Start < End always holds for programs that make it out of normalization.
type Program struct {
	ChannelID string // Channel.ID, not the upstream id
	Title     string
	Subtitle  string
	Desc      string
	Start     time.Time
	End       time.Time

	Kind         Kind
	Season       int // 0 = unknown
	Episode      int // 0 = unknown
	EpisodeTitle string

	Live     bool
	New      bool
	Premiere bool
	Finale   bool

	Rating  string // normalized label, e.g. "TV-14" or "PG-13"; "" = unrated
	Year    int
	AirDate string // upstream original-air-date, YYYY-MM-DD when present

	Genres    []string
	Cast      []string
	Directors []string

	ImageURL string
	SeriesID string

	// TargetPath is the upstream content path the resolver signs into a
	// playback URL.
	TargetPath string
}

// Airing reports whether the program covers instant t.
func (p Program) Airing(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Package guide holds the in-memory lineup and EPG cache. Readers always
// see a complete, immutable snapshot; the refresher builds a replacement
// off to the side and swaps the pointer.
package guide

import (
	"sort"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
)

// Snapshot is one immutable view of the lineup and guide window. Channels
// are ordered by display number; each channel's programs are sorted by
// start time and never overlap.
type Snapshot struct {
	Channels  []catalog.Channel
	Programs  map[string][]catalog.Program // keyed by Channel.ID
	FetchedAt time.Time
	Days      int

	byID map[string]int
}

// BuildSnapshot orders and sanitizes the fetched data. Programs that ended
// more than grace before now are evicted; overlapping entries are resolved
// by keeping the earlier program.
func BuildSnapshot(channels []catalog.Channel, programs map[string][]catalog.Program, now time.Time, grace time.Duration, days int) *Snapshot {
	chs := make([]catalog.Channel, len(channels))
	copy(chs, channels)
	sort.SliceStable(chs, func(i, j int) bool {
		if chs[i].Number != chs[j].Number {
			return chs[i].Number < chs[j].Number
		}
		return chs[i].SortOrder < chs[j].SortOrder
	})

	cutoff := now.Add(-grace)
	cleaned := make(map[string][]catalog.Program, len(programs))
	for chID, list := range programs {
		sorted := make([]catalog.Program, 0, len(list))
		for _, p := range list {
			if !p.Start.Before(p.End) {
				continue
			}
			if p.End.Before(cutoff) {
				continue
			}
			sorted = append(sorted, p)
		}
		sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

		out := sorted[:0]
		var lastEnd time.Time
		for _, p := range sorted {
			if p.Start.Before(lastEnd) {
				continue
			}
			out = append(out, p)
			lastEnd = p.End
		}
		if len(out) > 0 {
			cleaned[chID] = out
		}
	}

	s := &Snapshot{
		Channels:  chs,
		Programs:  cleaned,
		FetchedAt: now,
		Days:      days,
		byID:      make(map[string]int, len(chs)),
	}
	for i, ch := range chs {
		s.byID[ch.ID] = i
	}
	return s
}

// Channel looks a channel up by its external id.
func (s *Snapshot) Channel(id string) (catalog.Channel, bool) {
	i, ok := s.byID[id]
	if !ok {
		return catalog.Channel{}, false
	}
	return s.Channels[i], true
}

// ChannelBySlug looks a channel up by its playback slug.
func (s *Snapshot) ChannelBySlug(slug string) (catalog.Channel, bool) {
	for _, ch := range s.Channels {
		if ch.Slug == slug {
			return ch, true
		}
	}
	return catalog.Channel{}, false
}

// At returns the program airing on the channel at instant t and the one
// after it. Either may be nil.
func (s *Snapshot) At(channelID string, t time.Time) (now, next *catalog.Program) {
	list := s.Programs[channelID]
	// First program ending after t.
	i := sort.Search(len(list), func(i int) bool { return list[i].End.After(t) })
	if i == len(list) {
		return nil, nil
	}
	if list[i].Airing(t) {
		now = &list[i]
		if i+1 < len(list) {
			next = &list[i+1]
		}
		return now, next
	}
	// t falls in a gap before list[i].
	return nil, &list[i]
}

// ProgramCount is the total number of guide entries across all channels.
func (s *Snapshot) ProgramCount() int {
	n := 0
	for _, list := range s.Programs {
		n += len(list)
	}
	return n
}

// Age is how long ago the snapshot was fetched.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

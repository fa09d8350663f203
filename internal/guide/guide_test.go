package guide

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func prog(chID, title string, start, end time.Time) catalog.Program {
	return catalog.Program{ChannelID: chID, Title: title, Start: start, End: end}
}

func TestBuildSnapshot_ordersAndSanitizes(t *testing.T) {
	channels := []catalog.Channel{
		{ID: "frndly-2", Number: 102, SortOrder: 0},
		{ID: "frndly-1", Number: 100, SortOrder: 1},
		{ID: "frndly-3", Number: 101, SortOrder: 2},
	}
	programs := map[string][]catalog.Program{
		"frndly-1": {
			// Out of order, one overlap, one long gone.
			prog("frndly-1", "B", base.Add(time.Hour), base.Add(2*time.Hour)),
			prog("frndly-1", "A", base, base.Add(time.Hour)),
			prog("frndly-1", "Overlap", base.Add(30*time.Minute), base.Add(90*time.Minute)),
			prog("frndly-1", "Ancient", base.Add(-3*time.Hour), base.Add(-2*time.Hour)),
		},
	}

	s := BuildSnapshot(channels, programs, base, 5*time.Minute, 3)

	if got := []string{s.Channels[0].ID, s.Channels[1].ID, s.Channels[2].ID}; got[0] != "frndly-1" || got[1] != "frndly-3" || got[2] != "frndly-2" {
		t.Errorf("channel order = %v, want by display number", got)
	}

	list := s.Programs["frndly-1"]
	if len(list) != 2 {
		t.Fatalf("programs = %d, want 2 (overlap and expired dropped): %+v", len(list), list)
	}
	if list[0].Title != "A" || list[1].Title != "B" {
		t.Errorf("order = %q, %q", list[0].Title, list[1].Title)
	}
	for i := 1; i < len(list); i++ {
		if list[i].Start.Before(list[i-1].End) {
			t.Errorf("overlap survived: %q / %q", list[i-1].Title, list[i].Title)
		}
	}
}

func TestBuildSnapshot_graceKeepsJustEnded(t *testing.T) {
	programs := map[string][]catalog.Program{
		"frndly-1": {prog("frndly-1", "JustEnded", base.Add(-time.Hour), base.Add(-2*time.Minute))},
	}
	s := BuildSnapshot([]catalog.Channel{{ID: "frndly-1"}}, programs, base, 5*time.Minute, 1)
	if len(s.Programs["frndly-1"]) != 1 {
		t.Error("program inside the grace window was evicted")
	}
	s = BuildSnapshot([]catalog.Channel{{ID: "frndly-1"}}, programs, base, time.Minute, 1)
	if len(s.Programs["frndly-1"]) != 0 {
		t.Error("program outside the grace window survived")
	}
}

func TestSnapshot_At(t *testing.T) {
	programs := map[string][]catalog.Program{
		"frndly-1": {
			prog("frndly-1", "Morning", base, base.Add(time.Hour)),
			prog("frndly-1", "Noon", base.Add(time.Hour), base.Add(2*time.Hour)),
			// Gap, then an evening show.
			prog("frndly-1", "Evening", base.Add(4*time.Hour), base.Add(5*time.Hour)),
		},
	}
	s := BuildSnapshot([]catalog.Channel{{ID: "frndly-1"}}, programs, base, 0, 1)

	now, next := s.At("frndly-1", base.Add(30*time.Minute))
	if now == nil || now.Title != "Morning" || next == nil || next.Title != "Noon" {
		t.Errorf("mid-program: now=%v next=%v", now, next)
	}

	// Boundary instant belongs to the starting program.
	now, _ = s.At("frndly-1", base.Add(time.Hour))
	if now == nil || now.Title != "Noon" {
		t.Errorf("boundary: now=%v", now)
	}

	now, next = s.At("frndly-1", base.Add(3*time.Hour))
	if now != nil || next == nil || next.Title != "Evening" {
		t.Errorf("gap: now=%v next=%v", now, next)
	}

	now, next = s.At("frndly-1", base.Add(6*time.Hour))
	if now != nil || next != nil {
		t.Errorf("past horizon: now=%v next=%v", now, next)
	}

	now, next = s.At("frndly-9", base)
	if now != nil || next != nil {
		t.Error("unknown channel should be empty")
	}
}

type fakeSource struct {
	channels []catalog.Channel
	programs map[string][]catalog.Program
	err      error
	calls    int
}

func (f *fakeSource) Lineup(ctx context.Context) ([]catalog.Channel, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.channels, nil
}

func (f *fakeSource) Programs(ctx context.Context, channels []catalog.Channel, start time.Time, days int) (map[string][]catalog.Program, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.programs, nil
}

func TestCache_unpopulatedThenServing(t *testing.T) {
	src := &fakeSource{
		channels: []catalog.Channel{{ID: "frndly-1", Number: 100}},
		programs: map[string][]catalog.Program{
			"frndly-1": {prog("frndly-1", "Show", time.Now().UTC(), time.Now().UTC().Add(time.Hour))},
		},
	}
	c := NewCache(src, 3, 5*time.Minute)

	if _, ok := c.Snapshot(); ok {
		t.Fatal("unpopulated cache must report ok=false")
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	s, ok := c.Snapshot()
	if !ok || len(s.Channels) != 1 {
		t.Fatalf("snapshot after refresh: ok=%v", ok)
	}
}

func TestCache_failedRefreshKeepsLastGood(t *testing.T) {
	src := &fakeSource{
		channels: []catalog.Channel{{ID: "frndly-1", Number: 100}},
		programs: map[string][]catalog.Program{},
	}
	c := NewCache(src, 3, 0)
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	first, _ := c.Snapshot()

	src.err = errors.New("upstream down")
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("refresh should report the failure")
	}
	cur, ok := c.Snapshot()
	if !ok || cur != first {
		t.Error("failed refresh must leave the previous snapshot in place")
	}
}

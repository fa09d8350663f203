// Package pvr adapts the guide cache and resolver for an embedding host
// media-center: typed channel and program accessors instead of rendered
// documents.
package pvr

import (
	"context"
	"errors"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
	"github.com/frndlytuner/frndly-tuner/internal/guide"
)

// ErrNotReady is returned before the first successful guide refresh.
var ErrNotReady = errors.New("pvr: guide not yet populated")

// ErrUnknownChannel is returned for ids not in the lineup.
var ErrUnknownChannel = errors.New("pvr: unknown channel")

// Snapshots hands out the current guide snapshot.
type Snapshots interface {
	Snapshot() (*guide.Snapshot, bool)
}

// Resolver resolves a channel id to a playable URL.
type Resolver interface {
	Resolve(ctx context.Context, channelID string) (string, error)
}

// Guide is the host-facing adapter. All reads come from the same snapshot
// the HTTP endpoints render, so the two surfaces never disagree.
type Guide struct {
	snaps    Snapshots
	resolver Resolver
	now      func() time.Time
}

func New(snaps Snapshots, resolver Resolver) *Guide {
	return &Guide{snaps: snaps, resolver: resolver, now: time.Now}
}

// Channels returns the lineup in display order.
func (g *Guide) Channels() ([]catalog.Channel, error) {
	snap, ok := g.snaps.Snapshot()
	if !ok {
		return nil, ErrNotReady
	}
	return snap.Channels, nil
}

// ProgramsFor returns the channel's remaining guide entries: the program
// airing now (when there is one) and everything after it.
func (g *Guide) ProgramsFor(channelID string) ([]catalog.Program, error) {
	snap, ok := g.snaps.Snapshot()
	if !ok {
		return nil, ErrNotReady
	}
	if _, ok := snap.Channel(channelID); !ok {
		return nil, ErrUnknownChannel
	}
	now := g.now()
	list := snap.Programs[channelID]
	out := make([]catalog.Program, 0, len(list))
	for _, p := range list {
		if p.End.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

// NowNext returns the airing and following program; either may be nil.
func (g *Guide) NowNext(channelID string) (now, next *catalog.Program, err error) {
	snap, ok := g.snaps.Snapshot()
	if !ok {
		return nil, nil, ErrNotReady
	}
	if _, ok := snap.Channel(channelID); !ok {
		return nil, nil, ErrUnknownChannel
	}
	now, next = snap.At(channelID, g.now())
	return now, next, nil
}

// LiveURL resolves the channel to a playable stream URL.
func (g *Guide) LiveURL(ctx context.Context, channelID string) (string, error) {
	return g.resolver.Resolve(ctx, channelID)
}

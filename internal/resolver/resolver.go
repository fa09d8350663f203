// Package resolver turns a channel into a playable stream URL on demand.
// Signed URLs are short-lived upstream, so each channel's last successful
// resolution is leased for a few minutes and concurrent requests for the
// same channel share one signing call.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
	"github.com/frndlytuner/frndly-tuner/internal/frndly"
	"github.com/frndlytuner/frndly-tuner/internal/guide"
)

// ErrKind classifies a resolution failure.
type ErrKind int

const (
	// UnknownChannel: the slug or id matches nothing in the lineup.
	UnknownChannel ErrKind = iota + 1
	// AuthRejected: the session was refused and renewal did not help.
	AuthRejected
	// UpstreamUnavailable: transport failure, upstream error, or a
	// DRM-only answer with nothing playable.
	UpstreamUnavailable
)

func (k ErrKind) String() string {
	switch k {
	case UnknownChannel:
		return "unknown_channel"
	case AuthRejected:
		return "auth_rejected"
	case UpstreamUnavailable:
		return "upstream_unavailable"
	}
	return "unknown"
}

// Error is a classified resolution failure.
type Error struct {
	Kind    ErrKind
	Channel string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("resolver: %s: %s", e.Channel, e.Kind)
	}
	return fmt.Sprintf("resolver: %s: %s: %v", e.Channel, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	resolvesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frndly_tuner_resolves_total",
		Help: "Stream resolutions by result.",
	}, []string{"result"})
	leaseHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frndly_tuner_resolve_lease_hits_total",
		Help: "Resolutions served from a still-fresh lease.",
	})
)

// Signer is the part of the catalog client the resolver needs.
type Signer interface {
	SignStream(ctx context.Context, path string) (frndly.StreamResult, error)
}

// Snapshots hands out the current guide snapshot.
type Snapshots interface {
	Snapshot() (*guide.Snapshot, bool)
}

type lease struct {
	url       string
	expiresAt time.Time
}

// Resolver resolves channels to stream URLs with per-channel leasing.
// Failures are never cached; only successful resolutions get a lease.
type Resolver struct {
	signer Signer
	snaps  Snapshots
	ttl    time.Duration
	now    func() time.Time

	mu     sync.Mutex
	leases map[string]lease

	sf singleflight.Group
}

// New builds a resolver with the given lease TTL.
func New(signer Signer, snaps Snapshots, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		signer: signer,
		snaps:  snaps,
		ttl:    ttl,
		now:    time.Now,
		leases: make(map[string]lease),
	}
}

// ResolveSlug resolves by playback slug, the form the playlist embeds.
func (r *Resolver) ResolveSlug(ctx context.Context, slug string) (string, error) {
	snap, ok := r.snaps.Snapshot()
	if !ok {
		return "", &Error{Kind: UpstreamUnavailable, Channel: slug, Err: errors.New("guide not yet populated")}
	}
	ch, ok := snap.ChannelBySlug(slug)
	if !ok {
		resolvesTotal.WithLabelValues("unknown_channel").Inc()
		return "", &Error{Kind: UnknownChannel, Channel: slug}
	}
	return r.resolve(ctx, snap, ch)
}

// Resolve resolves by external channel id.
func (r *Resolver) Resolve(ctx context.Context, channelID string) (string, error) {
	snap, ok := r.snaps.Snapshot()
	if !ok {
		return "", &Error{Kind: UpstreamUnavailable, Channel: channelID, Err: errors.New("guide not yet populated")}
	}
	ch, ok := snap.Channel(channelID)
	if !ok {
		resolvesTotal.WithLabelValues("unknown_channel").Inc()
		return "", &Error{Kind: UnknownChannel, Channel: channelID}
	}
	return r.resolve(ctx, snap, ch)
}

func (r *Resolver) resolve(ctx context.Context, snap *guide.Snapshot, ch catalog.Channel) (string, error) {
	now := r.now()
	r.mu.Lock()
	if l, ok := r.leases[ch.ID]; ok && now.Before(l.expiresAt) {
		r.mu.Unlock()
		leaseHits.Inc()
		resolvesTotal.WithLabelValues("lease").Inc()
		return l.url, nil
	}
	r.mu.Unlock()

	v, err, _ := r.sf.Do(ch.ID, func() (any, error) {
		// Re-check under the flight: another caller may have just leased.
		r.mu.Lock()
		if l, ok := r.leases[ch.ID]; ok && r.now().Before(l.expiresAt) {
			r.mu.Unlock()
			return l.url, nil
		}
		r.mu.Unlock()

		res, err := r.signer.SignStream(ctx, r.streamPath(snap, ch))
		if err != nil {
			return "", err
		}
		r.mu.Lock()
		r.leases[ch.ID] = lease{url: res.URL, expiresAt: r.now().Add(r.ttl)}
		r.mu.Unlock()
		return res.URL, nil
	})
	if err != nil {
		kind := UpstreamUnavailable
		var ce *catalog.Error
		if errors.As(err, &ce) && ce.Kind == catalog.AuthRejected {
			kind = AuthRejected
		}
		resolvesTotal.WithLabelValues(kind.String()).Inc()
		return "", &Error{Kind: kind, Channel: ch.ID, Err: err}
	}
	resolvesTotal.WithLabelValues("ok").Inc()
	return v.(string), nil
}

// streamPath picks the upstream content path to sign: the airing program's
// target when the guide has one, else the conventional live path for the
// channel slug.
func (r *Resolver) streamPath(snap *guide.Snapshot, ch catalog.Channel) string {
	if now, _ := snap.At(ch.ID, r.now()); now != nil && now.TargetPath != "" {
		return now.TargetPath
	}
	return "channel/live/" + ch.Slug
}

// Invalidate drops the channel's lease so the next request re-signs.
func (r *Resolver) Invalidate(channelID string) {
	r.mu.Lock()
	delete(r.leases, channelID)
	r.mu.Unlock()
}

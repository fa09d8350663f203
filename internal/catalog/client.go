package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frndlytuner/frndly-tuner/internal/auth"
	"github.com/frndlytuner/frndly-tuner/internal/frndly"
)

// ErrKind classifies a catalog failure for callers that branch on it.
type ErrKind int

const (
	// AuthRejected: no usable session, even after one forced renewal.
	AuthRejected ErrKind = iota + 1
	// MalformedResponse: the upstream answered but the payload was unusable.
	MalformedResponse
	// NetworkFailure: transport-level failure or upstream 5xx.
	NetworkFailure
)

func (k ErrKind) String() string {
	switch k {
	case AuthRejected:
		return "auth_rejected"
	case MalformedResponse:
		return "malformed_response"
	case NetworkFailure:
		return "network_failure"
	}
	return "unknown"
}

// Error is a classified catalog failure.
type Error struct {
	Kind ErrKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("catalog: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var upstreamOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "frndly_tuner_upstream_requests_total",
	Help: "Authenticated upstream operations by name and result.",
}, []string{"op", "result"})

// Client is the authenticated catalog client. Every upstream operation
// goes through withAuth: fetch a token, call, and on a session rejection
// force one renewal and retry exactly once.
type Client struct {
	auth *auth.Manager
	wire *frndly.Client
}

func NewClient(a *auth.Manager, w *frndly.Client) *Client {
	return &Client{auth: a, wire: w}
}

// Lineup fetches the channel list merged with the community channel map.
// A failed map fetch degrades to an unenriched lineup rather than failing
// the refresh.
func (c *Client) Lineup(ctx context.Context) ([]Channel, error) {
	liveMap, err := c.wire.LiveMap(ctx)
	if err != nil {
		log.Printf("catalog: live map unavailable, lineup unenriched: %v", err)
		liveMap = map[string]frndly.LiveMapEntry{}
	}

	var raw []frndly.RawChannel
	err = c.withAuth(ctx, "channels", func(token string) error {
		var err error
		raw, err = c.wire.Channels(ctx, token)
		return err
	})
	if err != nil {
		return nil, err
	}

	channels := make([]Channel, 0, len(raw))
	for i, r := range raw {
		channels = append(channels, NormalizeChannel(r, liveMap, i))
	}
	return channels, nil
}

// Programs fetches and normalizes the guide window for the given channels.
// The returned map is keyed by Channel.ID. Entries that fail normalization
// (no usable time span) are dropped silently.
func (c *Client) Programs(ctx context.Context, channels []Channel, start time.Time, days int) (map[string][]Program, error) {
	byUpstream := make(map[string]string, len(channels))
	ids := make([]string, 0, len(channels))
	for _, ch := range channels {
		byUpstream[ch.UpstreamID] = ch.ID
		ids = append(ids, ch.UpstreamID)
	}

	var raw map[string][]frndly.RawProgram
	err := c.withAuth(ctx, "guide", func(token string) error {
		var err error
		raw, err = c.wire.Guide(ctx, token, ids, start, days)
		return err
	})
	if err != nil {
		return nil, err
	}

	programs := make(map[string][]Program, len(raw))
	for upstreamID, list := range raw {
		chID, ok := byUpstream[upstreamID]
		if !ok {
			continue
		}
		for _, rp := range list {
			if p, ok := NormalizeProgram(rp, chID); ok {
				programs[chID] = append(programs[chID], p)
			}
		}
	}
	return programs, nil
}

// SignStream resolves an upstream content path into a playable URL.
func (c *Client) SignStream(ctx context.Context, path string) (frndly.StreamResult, error) {
	var res frndly.StreamResult
	err := c.withAuth(ctx, "stream", func(token string) error {
		var err error
		res, err = c.wire.Stream(ctx, token, path)
		return err
	})
	return res, err
}

// withAuth runs op with a valid token, renewing the session and retrying
// once when the upstream rejects it mid-flight.
func (c *Client) withAuth(ctx context.Context, op string, fn func(token string) error) error {
	token, err := c.auth.Token(ctx)
	if err != nil {
		return c.classify(op, err)
	}
	err = fn(token)
	if errors.Is(err, frndly.ErrAuthRejected) {
		if rerr := c.auth.ForceRenew(ctx); rerr != nil {
			return c.classify(op, rerr)
		}
		token, err = c.auth.Token(ctx)
		if err == nil {
			err = fn(token)
		}
	}
	return c.classify(op, err)
}

func (c *Client) classify(op string, err error) error {
	if err == nil {
		upstreamOps.WithLabelValues(op, "ok").Inc()
		return nil
	}
	kind := NetworkFailure
	var ae *auth.Error
	switch {
	case errors.As(err, &ae):
		if ae.Kind == auth.UpstreamUnavailable {
			kind = NetworkFailure
		} else {
			kind = AuthRejected
		}
	case errors.Is(err, frndly.ErrAuthRejected):
		kind = AuthRejected
	case errors.Is(err, frndly.ErrMalformed):
		kind = MalformedResponse
	}
	upstreamOps.WithLabelValues(op, kind.String()).Inc()
	return &Error{Kind: kind, Op: op, Err: err}
}

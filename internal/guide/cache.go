package guide

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/frndlytuner/frndly-tuner/internal/catalog"
)

// Source is the part of the catalog client the cache needs.
type Source interface {
	Lineup(ctx context.Context) ([]catalog.Channel, error)
	Programs(ctx context.Context, channels []catalog.Channel, start time.Time, days int) (map[string][]catalog.Program, error)
}

var (
	refreshesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frndly_tuner_guide_refreshes_total",
		Help: "Guide refresh attempts by result.",
	}, []string{"result"})
	channelsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frndly_tuner_guide_channels",
		Help: "Channels in the current guide snapshot.",
	})
	programsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frndly_tuner_guide_programs",
		Help: "Programs in the current guide snapshot.",
	})
	lastRefreshGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "frndly_tuner_guide_last_refresh_timestamp_seconds",
		Help: "Unix time of the last successful guide refresh.",
	})
)

// Cache serves guide snapshots. Reads never block on a refresh: the
// current snapshot stays visible until a fully built replacement is
// swapped in, and a failed refresh keeps the last known good data.
type Cache struct {
	source Source
	days   int
	grace  time.Duration
	now    func() time.Time

	snap atomic.Pointer[Snapshot]
}

// NewCache builds an unpopulated cache. Snapshot returns ok=false until
// the first successful Refresh.
func NewCache(source Source, days int, grace time.Duration) *Cache {
	if days < 1 {
		days = 1
	}
	if grace < 0 {
		grace = 0
	}
	return &Cache{source: source, days: days, grace: grace, now: time.Now}
}

// Snapshot returns the current snapshot. ok is false before the first
// successful refresh.
func (c *Cache) Snapshot() (*Snapshot, bool) {
	s := c.snap.Load()
	return s, s != nil
}

// Refresh fetches the lineup and guide window and swaps in a new snapshot.
// On any failure the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	now := c.now()

	channels, err := c.source.Lineup(ctx)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return err
	}
	// Fetch from the top of the current hour so the active program is
	// always inside the window.
	start := now.Truncate(time.Hour)
	programs, err := c.source.Programs(ctx, channels, start, c.days)
	if err != nil {
		refreshesTotal.WithLabelValues("error").Inc()
		return err
	}

	s := BuildSnapshot(channels, programs, now, c.grace, c.days)
	c.snap.Store(s)

	refreshesTotal.WithLabelValues("ok").Inc()
	channelsGauge.Set(float64(len(s.Channels)))
	programsGauge.Set(float64(s.ProgramCount()))
	lastRefreshGauge.Set(float64(now.Unix()))
	log.Printf("guide: refreshed %d channels, %d programs (%d day window)",
		len(s.Channels), s.ProgramCount(), c.days)
	return nil
}

// Run refreshes immediately, then on every tick until ctx is cancelled.
// Failures are logged and the stale snapshot keeps serving.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if err := c.Refresh(ctx); err != nil {
		log.Printf("guide: initial refresh failed: %v", err)
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		if err := c.Refresh(ctx); err != nil {
			log.Printf("guide: refresh failed, serving stale snapshot: %v", err)
		}
	}
}

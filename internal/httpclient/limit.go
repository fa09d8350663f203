package httpclient

import (
	"context"
	"net/url"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter is a process-global per-host request pacer. All upstream
// callers in the process share the limiter for a given host, so a guide
// refresh burst and a foreground resolve cannot jointly hammer the API.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// GlobalHostLimiter paces requests at 5/s with a burst of 5 per host.
var GlobalHostLimiter = NewHostLimiter(5, 5)

func NewHostLimiter(rps float64, burst int) *HostLimiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}
	return &HostLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

// Wait blocks until the host's limiter grants a slot or ctx is done.
// rawURL may be a full URL; only scheme+host are used as the key.
func (h *HostLimiter) Wait(ctx context.Context, rawURL string) error {
	return h.limiterFor(rawURL).Wait(ctx)
}

// SetRate reconfigures the per-host rate for limiters created afterwards.
func (h *HostLimiter) SetRate(rps float64) {
	if rps <= 0 {
		return
	}
	h.mu.Lock()
	h.rps = rate.Limit(rps)
	for _, l := range h.limiters {
		l.SetLimit(h.rps)
	}
	h.mu.Unlock()
}

func (h *HostLimiter) limiterFor(rawURL string) *rate.Limiter {
	key := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		key = u.Scheme + "://" + u.Host
	}
	h.mu.Lock()
	l, ok := h.limiters[key]
	if !ok {
		l = rate.NewLimiter(h.rps, h.burst)
		h.limiters[key] = l
	}
	h.mu.Unlock()
	return l
}

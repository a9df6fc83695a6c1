package shield

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle is a coarse per-IP token-bucket limiter applied in front of every
// route. It blunts floods early; the precise per-endpoint ceilings are
// enforced from durable audit rows inside the handlers.
type Throttle struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*throttleEntry
}

type throttleEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewThrottle creates a limiter allowing rps requests per second with the
// given burst per client address.
func NewThrottle(rps float64, burst int) *Throttle {
	return &Throttle{
		rps:     rate.Limit(rps),
		burst:   burst,
		buckets: make(map[string]*throttleEntry),
	}
}

// StartGC evicts idle buckets every 5 minutes until done is closed.
func (t *Throttle) StartGC(done <-chan struct{}) {
	tick := time.NewTicker(5 * time.Minute)
	go func() {
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				t.gc(10 * time.Minute)
			}
		}
	}()
}

func (t *Throttle) gc(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	t.mu.Lock()
	defer t.mu.Unlock()
	for ip, e := range t.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(t.buckets, ip)
		}
	}
}

func (t *Throttle) allow(ip string) bool {
	t.mu.Lock()
	e, ok := t.buckets[ip]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(t.rps, t.burst)}
		t.buckets[ip] = e
	}
	e.lastSeen = time.Now()
	t.mu.Unlock()
	return e.limiter.Allow()
}

// Middleware enforces the throttle, answering 429 with a cooldown hint.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ExtractIP(r)
		if !t.allow(ip) {
			slog.Warn("throttle: request blocked", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "10")
			writeJSONError(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next.ServeHTTP(w, r)
	})
}

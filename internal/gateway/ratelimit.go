// Package gateway holds the edge-only HTTP middleware cmd/serve.go wraps
// around the control plane's mux: rate limiting (this file) and, per spec
// §1/§5, nothing that internal/httpapi itself needs to function correctly.
package gateway

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-key (client IP) request rate limits using a
// token bucket per key. The active rate/burst live behind an atomic
// pointer so SetLimit can push a hot-reloaded config value in without
// racing concurrent Allow calls.
type RateLimiter struct {
	limiters sync.Map // key → *limiterEntry
	cfg      atomic.Pointer[limiterConfig]
}

type limiterConfig struct {
	r     rate.Limit
	burst int
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing rpm requests per minute per key,
// with burst as the token-bucket capacity. rpm <= 0 disables the limiter
// (Allow always returns true) — spec §1 requires the control plane to work
// correctly with no limiter attached, so this is the "off" state cmd/serve.go
// falls back to if tuning omits the knob.
func NewRateLimiter(rpm, burst int) *RateLimiter {
	rl := &RateLimiter{}
	rl.cfg.Store(newLimiterConfig(rpm, burst))
	go rl.cleanupLoop()
	return rl
}

func newLimiterConfig(rpm, burst int) *limiterConfig {
	if burst <= 0 {
		burst = 5
	}
	r := rate.Limit(0)
	if rpm > 0 {
		r = rate.Limit(float64(rpm) / 60.0)
	}
	return &limiterConfig{r: r, burst: burst}
}

// SetLimit replaces the active rpm/burst. Every existing per-key bucket's
// rate.Limiter is updated in place via SetLimit/SetBurst (this changes the
// refill rate and ceiling immediately; it does not hand back tokens a
// bucket already spent), and every new key created afterward starts from
// the new config. Wired to internal/config's hot-reloaded
// Tuning.GeneralRateLimitPerMin/TriggerRateLimitPerMin (cmd/serve.go).
func (rl *RateLimiter) SetLimit(rpm, burst int) {
	cfg := newLimiterConfig(rpm, burst)
	rl.cfg.Store(cfg)
	rl.limiters.Range(func(_, v any) bool {
		entry := v.(*limiterEntry)
		entry.limiter.SetLimit(cfg.r)
		entry.limiter.SetBurst(cfg.burst)
		return true
	})
}

// Allow reports whether a request keyed by key may proceed.
func (rl *RateLimiter) Allow(key string) bool {
	cfg := rl.cfg.Load()
	if cfg.r == 0 {
		return true
	}
	entry := rl.getOrCreate(key, cfg)
	if !entry.limiter.Allow() {
		slog.Warn("rate limited", "key", key)
		return false
	}
	entry.lastSeen = time.Now()
	return true
}

// Enabled reports whether the limiter is actively rejecting requests.
func (rl *RateLimiter) Enabled() bool {
	return rl.cfg.Load().r > 0
}

func (rl *RateLimiter) getOrCreate(key string, cfg *limiterConfig) *limiterEntry {
	if v, ok := rl.limiters.Load(key); ok {
		return v.(*limiterEntry)
	}
	entry := &limiterEntry{limiter: rate.NewLimiter(cfg.r, cfg.burst), lastSeen: time.Now()}
	actual, _ := rl.limiters.LoadOrStore(key, entry)
	return actual.(*limiterEntry)
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-10 * time.Minute)
	rl.limiters.Range(func(key, value any) bool {
		entry := value.(*limiterEntry)
		if entry.lastSeen.Before(cutoff) {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Middleware wraps next with the limiter, rejecting over-limit requests
// with 429. clientKey extracts the rate-limit key (the caller's IP) from
// the request.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"success":false,"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/54b3r/sitrep-go/internal/logging"
)

const (
	// defaultRateLimit is the per-IP request rate on POST /api/query when
	// none is configured. Each query costs two LLM calls and one embedding.
	defaultRateLimit = 2
	// defaultRateBurst is the per-IP burst when none is configured.
	defaultRateBurst = 5
	// limiterIdleTTL is how long an IP's bucket survives without traffic.
	limiterIdleTTL = 5 * time.Minute
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-IP token bucket in front of a handler.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
	// rejected counts 429 responses; may be nil.
	rejected prometheus.Counter
}

// newRateLimiter starts a limiter and its eviction goroutine. The returned
// function stops the goroutine.
func newRateLimiter(rps float64, burst int, rejected prometheus.Counter) (*rateLimiter, func()) {
	rl := &rateLimiter{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
		rejected: rejected,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

func (rl *rateLimiter) getLimiter(ip string, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.limiters[ip]
	if !ok {
		entry = &ipLimiter{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			rl.evict(now)
		}
	}
}

// evict drops buckets idle for longer than limiterIdleTTL.
func (rl *rateLimiter) evict(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range rl.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(rl.limiters, ip)
		}
	}
}

// size reports the number of tracked IPs.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// middleware rejects over-limit requests with 429, a JSON error body and a
// Retry-After header holding the whole seconds until a token is available.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now()
		ip := clientIP(r)
		res := rl.getLimiter(ip, now).ReserveN(now, 1)

		if !res.OK() || res.DelayFrom(now) > 0 {
			retry := 1
			if res.OK() {
				retry = max(1, int(math.Ceil(res.DelayFrom(now).Seconds())))
				res.CancelAt(now)
			}
			if rl.rejected != nil {
				rl.rejected.Inc()
			}
			log := logging.FromContext(r.Context())
			log.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
				slog.Int("retry_after_s", retry),
			)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSON(w, log, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"lanedesk/pkg/logger"
)

type LaneExtractor func(r *http.Request) string

// DefaultLaneExtractor pulls the lane identifier from paths of the
// form /api/v1/lanes/<laneId>/..., falling back to the X-Lane-ID
// header for routes that are not lane-scoped.
func DefaultLaneExtractor(r *http.Request) string {
	const prefix = "/api/v1/lanes/"
	if strings.HasPrefix(r.URL.Path, prefix) {
		rest := strings.TrimPrefix(r.URL.Path, prefix)
		if i := strings.IndexByte(rest, '/'); i > 0 {
			return rest[:i]
		}
		return rest
	}
	return r.Header.Get("X-Lane-ID")
}

// LaneRateLimiter bounds mutation rate per lane with a sliding window.
// A kiosk stuck in a tap loop cannot starve the other lanes.
type LaneRateLimiter struct {
	mu        sync.RWMutex
	requests  map[string][]time.Time
	limit     int
	window    time.Duration
	extractor LaneExtractor
	log       *logger.Logger
	stopCh    chan struct{}
}

func NewLaneRateLimiter(limit int, window time.Duration, extractor LaneExtractor, log *logger.Logger) *LaneRateLimiter {
	limiter := &LaneRateLimiter{
		requests:  make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		extractor: extractor,
		log:       log,
		stopCh:    make(chan struct{}),
	}
	go limiter.cleanup()
	return limiter
}

func (rl *LaneRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			for lane, timestamps := range rl.requests {
				if len(timestamps) == 0 || time.Since(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, lane)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *LaneRateLimiter) Stop() {
	close(rl.stopCh)
}

func (rl *LaneRateLimiter) Allow(lane string) bool {
	if lane == "" {
		return true
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	valid := rl.requests[lane][:0:0]
	for _, ts := range rl.requests[lane] {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[lane] = valid
		return false
	}

	rl.requests[lane] = append(valid, now)
	return true
}

func LaneRateLimit(limiter *LaneRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lane := limiter.extractor(r)
			if !limiter.Allow(lane) {
				limiter.log.Warn("Lane rate limit exceeded",
					"request_id", requestIDFrom(r.Context()),
					"lane_id", lane,
					"path", r.URL.Path,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests for this lane"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

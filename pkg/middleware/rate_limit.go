package middleware

import (
	"net"
	"net/http"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"sync"
	"time"
)

const CodeRateLimited = "RATE_LIMITED"

// KeyExtractor picks the identity a request is rate limited under.
type KeyExtractor func(r *http.Request) string

// ActorRateLimiter is a sliding-window limiter keyed by caller identity.
type ActorRateLimiter struct {
	mu           sync.Mutex
	requests     map[string][]time.Time
	limit        int
	window       time.Duration
	keyExtractor KeyExtractor
	log          *logger.Logger
	now          func() time.Time
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewActorRateLimiter(limit int, window time.Duration, extractor KeyExtractor, log *logger.Logger) *ActorRateLimiter {
	if extractor == nil {
		extractor = DefaultKeyExtractor
	}
	limiter := &ActorRateLimiter{
		requests:     make(map[string][]time.Time),
		limit:        limit,
		window:       window,
		keyExtractor: extractor,
		log:          log,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}

	go limiter.cleanup()

	return limiter
}

func (rl *ActorRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := rl.now()
			rl.mu.Lock()
			for key, timestamps := range rl.requests {
				if len(timestamps) == 0 || now.Sub(timestamps[len(timestamps)-1]) > rl.window {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

func (rl *ActorRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCh)
	})
}

// Allow records a request for key and reports whether it fits the window.
// Pruning and appending happen under one lock so concurrent requests cannot
// both slip under the limit.
func (rl *ActorRateLimiter) Allow(key string) bool {
	if key == "" {
		return true
	}

	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	timestamps := rl.requests[key]
	valid := timestamps[:0]
	for _, ts := range timestamps {
		if now.Sub(ts) < rl.window {
			valid = append(valid, ts)
		}
	}

	if len(valid) >= rl.limit {
		rl.requests[key] = valid
		return false
	}

	rl.requests[key] = append(valid, now)
	return true
}

func ActorRateLimit(limiter *ActorRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limiter.keyExtractor(r)

			if !limiter.Allow(key) {
				rejectRateLimited(w, limiter.log, r, key)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func rejectRateLimited(w http.ResponseWriter, log *logger.Logger, r *http.Request, key string) {
	log.Warn("Rate limit exceeded",
		"request_id", RequestID(r.Context()),
		"key", key,
		"path", r.URL.Path,
	)

	w.Header().Set("Retry-After", "1")
	httputil.WriteError(w, apperrors.New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests))
}

// DefaultKeyExtractor limits by X-Actor-ID, falling back to the client IP
// for anonymous requests such as quotes.
func DefaultKeyExtractor(r *http.Request) string {
	if actor := r.Header.Get(httputil.ActorHeader); actor != "" {
		return "actor:" + actor
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr
	}
	return "ip:" + host
}

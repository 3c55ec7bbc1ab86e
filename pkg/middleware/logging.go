package middleware

import (
	"context"
	"log/slog"
	"net/http"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"time"

	"github.com/google/uuid"
)

type contextKey string

const (
	RequestIDKey    contextKey = "request_id"
	RequestIDHeader            = "X-Request-ID"
	maxRequestIDLen            = 128
)

// statusRecorder remembers the first status written and the body size.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(status int) {
	if sr.status != 0 {
		return
	}
	sr.status = status
	sr.ResponseWriter.WriteHeader(status)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.WriteHeader(http.StatusOK)
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

// RequestLogging assigns a request ID, reusing a well-formed X-Request-ID
// from the caller, and logs one line per request. 5xx responses log at
// error level and 4xx at warn.
func RequestLogging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := requestIDFrom(r)
			w.Header().Set(RequestIDHeader, requestID)
			r = r.WithContext(context.WithValue(r.Context(), RequestIDKey, requestID))

			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)
			if rec.status == 0 {
				rec.status = http.StatusOK
			}

			log.Log(r.Context(), levelFor(rec.status), "HTTP request",
				"request_id", requestID,
				"method", r.Method,
				"path", r.URL.Path,
				"actor_id", r.Header.Get(httputil.ActorHeader),
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// RequestID returns the ID assigned by RequestLogging, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

func requestIDFrom(r *http.Request) string {
	id := r.Header.Get(RequestIDHeader)
	if id == "" || len(id) > maxRequestIDLen {
		return uuid.NewString()
	}
	for _, c := range id {
		if c < 0x21 || c > 0x7e {
			return uuid.NewString()
		}
	}
	return id
}

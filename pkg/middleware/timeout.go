package middleware

import (
	"context"
	"net/http"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"sync"
	"time"
)

// timeoutWriter drops writes once the request deadline has fired.
type timeoutWriter struct {
	http.ResponseWriter
	mu       sync.Mutex
	header   http.Header
	timedOut bool
	written  bool
}

func (tw *timeoutWriter) Header() http.Header {
	return tw.header
}

func (tw *timeoutWriter) WriteHeader(code int) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut || tw.written {
		return
	}
	tw.writeHeaderLocked(code)
}

func (tw *timeoutWriter) Write(b []byte) (int, error) {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	if tw.timedOut {
		return 0, http.ErrHandlerTimeout
	}
	if !tw.written {
		tw.writeHeaderLocked(http.StatusOK)
	}
	return tw.ResponseWriter.Write(b)
}

func (tw *timeoutWriter) writeHeaderLocked(code int) {
	dst := tw.ResponseWriter.Header()
	for k, v := range tw.header {
		dst[k] = v
	}
	tw.written = true
	tw.ResponseWriter.WriteHeader(code)
}

// RequestTimeout bounds the request context. When the deadline fires before
// the handler answered, the client gets a 504 and later writes are discarded.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			tw := &timeoutWriter{
				ResponseWriter: w,
				header:         make(http.Header),
			}

			done := make(chan struct{})
			panicked := make(chan any, 1)
			go func() {
				defer func() {
					if p := recover(); p != nil {
						panicked <- p
					}
				}()
				next.ServeHTTP(tw, r)
				close(done)
			}()

			select {
			case <-done:
				return
			case p := <-panicked:
				panic(p)
			case <-ctx.Done():
				tw.mu.Lock()
				defer tw.mu.Unlock()
				tw.timedOut = true
				if !tw.written {
					tw.written = true
					httputil.WriteError(w, apperrors.Timeout("Request timed out"))
				}
			}
		})
	}
}

package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
)

// Recovery turns a handler panic into a 500 response. http.ErrAbortHandler
// is re-raised so net/http can drop the connection.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				log.Error("Handler panicked",
					"request_id", RequestID(r.Context()),
					"actor", r.Header.Get(httputil.ActorHeader),
					"route", r.Method+" "+r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				httputil.WriteError(w, apperrors.Internal("unexpected server error", fmt.Errorf("panic: %v", rec)))
			}()

			next.ServeHTTP(w, r)
		})
	}
}

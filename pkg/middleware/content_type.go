package middleware

import (
	"net/http"
	apperrors "staybook/pkg/errors"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"strings"
)

const CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"

// ContentTypeValidation requires application/json on write requests that
// carry a body. Bodyless POSTs such as confirm or cancel pass through.
func ContentTypeValidation(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if requiresContentType(r) {
				contentType := extractContentType(r.Header.Get("Content-Type"))

				if contentType != "application/json" {
					rejectInvalidContentType(w, log, r, contentType)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MaxRequestSize caps the request body; reads past limit fail.
func MaxRequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				httputil.WriteError(w, apperrors.New(apperrors.CodeInvalidInput, "Request body too large", http.StatusRequestEntityTooLarge))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requiresContentType(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return r.ContentLength != 0
	}
	return false
}

func extractContentType(header string) string {
	if header == "" {
		return ""
	}

	parts := strings.Split(header, ";")
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

func rejectInvalidContentType(w http.ResponseWriter, log *logger.Logger, r *http.Request, contentType string) {
	log.Warn("Invalid Content-Type header",
		"request_id", RequestID(r.Context()),
		"content_type", contentType,
		"path", r.URL.Path,
		"method", r.Method,
	)

	httputil.WriteError(w, apperrors.New(CodeUnsupportedMediaType, "Content-Type must be application/json", http.StatusUnsupportedMediaType))
}

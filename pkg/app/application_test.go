package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"staybook/pkg/client"
	"staybook/pkg/config"
	"staybook/pkg/logger"
	"testing"
	"time"

	"github.com/julienschmidt/httprouter"
)

type routes func(*httprouter.Router)

func (f routes) RegisterRoutes(r *httprouter.Router) { f(r) }

func testConfig() *config.Config {
	return &config.Config{
		Port:              "8080",
		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RequestTimeout:    time.Second,
		IdempotencyTTL:    time.Hour,
		MaxRequestSize:    1 << 20,
		ReadTimeout:       time.Second,
		WriteTimeout:      time.Second,
		IdleTimeout:       time.Second,
		ShutdownTimeout:   time.Second,
		Log:               logger.Discard(),
		Client:            client.NewClient(),
	}
}

func TestApplication_Routing(t *testing.T) {
	a := NewApplication(testConfig())
	a.SetApp(
		routes(func(r *httprouter.Router) {
			r.GET("/api/v1/ping", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
				w.WriteHeader(http.StatusTeapot)
			})
		}),
		routes(func(r *httprouter.Router) {
			r.GET("/health", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
				w.WriteHeader(http.StatusOK)
			})
		}),
	)
	defer a.rateLimiter.Stop()
	defer a.idempotencyStore.Stop()

	tests := []struct {
		path       string
		wantStatus int
	}{
		{path: "/health", wantStatus: http.StatusOK},
		{path: "/api/v1/ping", wantStatus: http.StatusTeapot},
		{path: "/api/v1/missing", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantStatus {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.wantStatus, rec.Code)
		}
		if rec.Header().Get("X-Request-ID") == "" {
			t.Errorf("%s: expected request id header", tt.path)
		}
	}
}

func TestApplication_ShutdownHooksRunInReverseOrder(t *testing.T) {
	a := NewApplication(testConfig())
	a.SetApp(routes(func(*httprouter.Router) {}), routes(func(*httprouter.Router) {}))

	var order []string
	a.OnShutdown("notifier", func(ctx context.Context) error {
		order = append(order, "notifier")
		return nil
	})
	a.OnShutdown("sweeper", func(ctx context.Context) error {
		order = append(order, "sweeper")
		return errors.New("already stopped")
	})

	a.gracefulShutdown()

	if len(order) != 2 || order[0] != "sweeper" || order[1] != "notifier" {
		t.Errorf("unexpected hook order %v", order)
	}
}

package handler

import (
	"context"
	"net/http"
	httputil "staybook/pkg/http"
	"staybook/pkg/logger"
	"time"

	"github.com/julienschmidt/httprouter"
)

const readinessTimeout = 2 * time.Second

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type namedCheck struct {
	name string
	ping Pinger
}

// HealthHandler serves liveness on /health and dependency readiness on
// /ready. The booking store is always checked; optional dependencies are
// added with AddCheck.
type HealthHandler struct {
	checks []namedCheck
	log    *logger.Logger
}

func NewHealthHandler(store Pinger, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks: []namedCheck{{name: "store", ping: store}},
		log:    log,
	}
}

func (h *HealthHandler) AddCheck(name string, p Pinger) *HealthHandler {
	h.checks = append(h.checks, namedCheck{name: name, ping: p})
	return h
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	h.write(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	resp := HealthResponse{Status: "ready", Checks: make(map[string]string, len(h.checks))}
	status := http.StatusOK
	for _, c := range h.checks {
		if err := c.ping.Ping(ctx); err != nil {
			h.log.Error("Readiness check failed", "check", c.name, "error", err)
			resp.Checks[c.name] = "error"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[c.name] = "ok"
	}
	h.write(w, status, resp)
}

func (h *HealthHandler) write(w http.ResponseWriter, status int, resp HealthResponse) {
	if err := httputil.WriteJSON(w, status, resp); err != nil {
		h.log.Error("failed to write health response", "error", err)
	}
}

func (h *HealthHandler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

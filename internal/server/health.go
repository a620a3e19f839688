package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusNoToken      = "no token"
)

// HealthChecker serves the liveness and readiness probes of the metrics
// listener. A server is ready when it serves MCP, is not shutting down and
// holds a stored token.
type HealthChecker struct {
	ready     atomic.Bool
	sc        *ServerContext
	startTime time.Time
}

// NewHealthChecker returns a checker that reports not ready until
// SetReady(true). sc may be nil in tests.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	return &HealthChecker{sc: sc, startTime: time.Now()}
}

func (h *HealthChecker) SetReady(ready bool) { h.ready.Store(ready) }

func (h *HealthChecker) IsReady() bool { return h.ready.Load() }

func (h *HealthChecker) shuttingDown() bool {
	return h.sc != nil && h.sc.IsShutdown()
}

func (h *HealthChecker) hasToken() bool {
	return h.sc != nil && h.sc.HasToken()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status       string `json:"status"`
	Uptime       string `json:"uptime"`
	TokenPresent bool   `json:"token_present"`
}

// check reports healthStatusOK when ok holds and failed otherwise.
func check(ok bool, failed string) string {
	if ok {
		return healthStatusOK
	}
	return failed
}

// readiness evaluates every readiness check.
func (h *HealthChecker) readiness() (map[string]string, bool) {
	checks := map[string]string{
		"ready":    check(h.IsReady(), healthStatusNotReady),
		"shutdown": check(!h.shuttingDown(), healthStatusShuttingDown),
		"token":    check(h.hasToken(), healthStatusNoToken),
	}
	for _, status := range checks {
		if status != healthStatusOK {
			return checks, false
		}
	}
	return checks, true
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler serves /healthz. It only reports that the process is up.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler serves /readyz with one entry per check. Any failed
// check answers 503.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks, ok := h.readiness()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: healthStatusNotReady, Checks: checks})
			return
		}
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK, Checks: checks})
	})
}

// DetailedHealthHandler serves /healthz/detailed.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status:       healthStatusOK,
			Uptime:       time.Since(h.startTime).Truncate(time.Second).String(),
			TokenPresent: h.hasToken(),
		}
		code := http.StatusOK
		switch {
		case !h.IsReady():
			resp.Status, code = healthStatusNotReady, http.StatusServiceUnavailable
		case h.shuttingDown():
			resp.Status, code = healthStatusShuttingDown, http.StatusServiceUnavailable
		}
		writeJSON(w, code, resp)
	})
}

// RegisterHealthEndpoints mounts the probes on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

package controllers

import (
	"net/http"

	"github.com/rzbill/esdb/internal/runtime"
)

// GeneralController handles endpoints that are not tied to a stream:
// health and metrics.
type GeneralController struct {
	rt      *runtime.Runtime
	metrics http.Handler
}

// NewGeneralController creates a new general controller. metrics may be nil,
// in which case /metrics is not served.
func NewGeneralController(rt *runtime.Runtime, metrics http.Handler) *GeneralController {
	return &GeneralController{rt: rt, metrics: metrics}
}

// RegisterRoutes registers general routes with the given mux.
//
// This method sets up HTTP endpoints for:
// - Health checks (/v1/healthz)
// - Prometheus scraping (/metrics)
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	if c.metrics != nil {
		mux.Handle("/metrics", c.metrics)
	}
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 Service Unavailable otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

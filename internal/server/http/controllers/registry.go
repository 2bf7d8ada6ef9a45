package controllers

import (
	"net/http"

	"github.com/rzbill/esdb/internal/runtime"
	streamsvc "github.com/rzbill/esdb/internal/services/streams"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes.
type ControllerRegistry struct {
	general *GeneralController
	streams *StreamsController
	log     *LogController
}

// NewControllerRegistry creates a new controller registry.
//
// metrics is the Prometheus handler mounted at /metrics; nil disables it.
func NewControllerRegistry(rt *runtime.Runtime, streamsSvc *streamsvc.Service, metrics http.Handler) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt, metrics),
		streams: NewStreamsController(streamsSvc),
		log:     NewLogController(streamsSvc),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.streams.RegisterRoutes(mux)
	r.log.RegisterRoutes(mux)
}

package grpcserver

import (
	"context"
	"time"

	"github.com/rzbill/esdb/internal/runtime"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const healthInterval = 5 * time.Second

// watchHealth mirrors runtime health into the standard gRPC health service
// for both the server as a whole ("") and esdb.v1.Streams.
func watchHealth(ctx context.Context, rt *runtime.Runtime, hs *health.Server) {
	update := func() {
		st := healthpb.HealthCheckResponse_SERVING
		if err := rt.CheckHealth(ctx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus("", st)
		hs.SetServingStatus(streamsServiceName, st)
	}
	update()
	t := time.NewTicker(healthInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-t.C:
			update()
		}
	}
}

// Package serverrun exposes the Run entrypoint used by the CLI to start the
// esdb runtime with gRPC and HTTP servers, handling lifecycle and shutdown.
//
// Example:
//
//	cfg, _ := config.Load("")
//	cfg.DataDir = "./data"
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun

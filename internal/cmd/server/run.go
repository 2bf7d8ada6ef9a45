package serverrun

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/rzbill/esdb/internal/config"
	"github.com/rzbill/esdb/internal/metrics"
	"github.com/rzbill/esdb/internal/runtime"
	grpcserver "github.com/rzbill/esdb/internal/server/grpc"
	httpserver "github.com/rzbill/esdb/internal/server/http"
	streamsvc "github.com/rzbill/esdb/internal/services/streams"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

type Options struct {
	// Config is the fully resolved configuration (file, env and flags).
	Config cfgpkg.Config
	// Logger overrides the process logger built from Config.Log.
	Logger logpkg.Logger
	// Listening, when set, is called once both listeners are bound.
	Listening func(httpAddr, grpcAddr net.Addr)
}

// Run starts gRPC and HTTP servers and blocks until ctx is cancelled or a
// termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	procLogger := opts.Logger
	if procLogger == nil {
		var err error
		procLogger, err = logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return fmt.Errorf("logger: %w", err)
		}
		// Redirect stdlib logs (e.g., Pebble) to our logger
		logpkg.RedirectStdLog(procLogger)
	}

	rec := metrics.New()
	storeDir := cfgpkg.StoreDir(cfg.DataDir)
	rt, err := runtime.Open(runtime.Options{
		DataDir:       storeDir,
		Fsync:         cfg.FsyncMode(),
		FsyncInterval: cfg.FsyncInterval(),
		Config:        cfg,
		Metrics:       rec,
		Logger:        procLogger,
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	// Bind both listeners before serving so address errors fail the start.
	hl, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", cfg.HTTPAddr, err)
	}
	gl, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = hl.Close()
		return fmt.Errorf("grpc listen %s: %w", cfg.GRPCAddr, err)
	}

	procLogger.Info("Starting esdb server",
		logpkg.Str("grpc", gl.Addr().String()),
		logpkg.Str("http", hl.Addr().String()),
		logpkg.Str("store", storeDir),
		logpkg.Str("fsync", cfg.Fsync),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	// One service instance shared by both transports, so both see the same
	// per-stream exclusive sections.
	svc := streamsvc.New(rt,
		streamsvc.WithLogger(procLogger.With(logpkg.Component("streams"))),
		streamsvc.WithMetrics(rec),
	)
	gsrv := grpcserver.New(rt, svc, procLogger)
	hsrv := httpserver.New(rt, svc, rec.Handler(), procLogger)

	if opts.Listening != nil {
		opts.Listening(hl.Addr(), gl.Addr())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := gsrv.Serve(sctx, gl); err != nil && sctx.Err() == nil {
			procLogger.Error("grpc server error", logpkg.Err(err))
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.Serve(sctx, hl); err != nil && sctx.Err() == nil {
			procLogger.Error("http server error", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Stop the servers before closing the runtime/DB to avoid races.
	gsrv.Close()
	hsrv.Close()
	wg.Wait()
	procLogger.Info("esdb server stopped")
	return nil
}

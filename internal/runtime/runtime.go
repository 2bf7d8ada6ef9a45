package runtime

import (
	"context"
	"errors"
	"time"

	cfgpkg "github.com/rzbill/esdb/internal/config"
	"github.com/rzbill/esdb/internal/eventlog"
	"github.com/rzbill/esdb/internal/metrics"
	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
	"github.com/rzbill/esdb/internal/streamindex"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	// Metrics is optional; when set it observes storage and the log writer.
	Metrics *metrics.Recorder
	Logger  logpkg.Logger
	// Knobs are passed to the log writer. Tests only.
	Knobs eventlog.TestingKnobs
}

// Runtime wires storage, the transaction log and the stream index for a
// single-node instance.
type Runtime struct {
	db     *pebblestore.DB
	log    *eventlog.Log
	index  *streamindex.Store
	config cfgpkg.Config
}

// Open initializes storage, starts the log writer and loads (or rebuilds)
// the stream index.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	cfg := opts.Config
	if cfg.Writer.QueueSize == 0 && cfg.Writer.MaxGroupSize == 0 && cfg.Index.Shards == 0 {
		cfg = cfgpkg.Default()
	}

	dbOpts := pebblestore.Options{DataDir: opts.DataDir, Fsync: opts.Fsync, FsyncInterval: opts.FsyncInterval, Logger: logger}
	logOpts := eventlog.Options{QueueSize: cfg.Writer.QueueSize, MaxGroupSize: cfg.Writer.MaxGroupSize, Knobs: opts.Knobs}
	if opts.Metrics != nil {
		dbOpts.Metrics = opts.Metrics
		logOpts.Observer = opts.Metrics
	}

	db, err := pebblestore.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	l, err := eventlog.OpenLog(db, logOpts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	idx, err := streamindex.Open(db, l, streamindex.Options{Shards: cfg.Index.Shards, Logger: logger.With(logpkg.Component("streamindex"))})
	if err != nil {
		_ = l.Close()
		_ = db.Close()
		return nil, err
	}
	if opts.Metrics != nil {
		opts.Metrics.RegisterStreamCount(idx.Len)
		opts.Metrics.ObservePosition(l.LastPosition())
	}
	logger.Info("runtime opened",
		logpkg.Str("data_dir", opts.DataDir),
		logpkg.Str("fsync", db.Mode().String()),
		logpkg.Uint64("last_position", l.LastPosition()))
	return &Runtime{db: db, log: l, index: idx, config: cfg}, nil
}

// Close stops the log writer after flushing queued writes, then closes storage.
func (r *Runtime) Close() error {
	if r.db == nil {
		return nil
	}
	if r.log != nil {
		_ = r.log.Close()
	}
	return r.db.Close()
}

// CheckHealth performs a simple health check.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Log returns the global transaction log.
func (r *Runtime) Log() *eventlog.Log { return r.log }

// Index returns the stream revision store.
func (r *Runtime) Index() *streamindex.Store { return r.index }

// DB exposes the underlying DB for advanced operations (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

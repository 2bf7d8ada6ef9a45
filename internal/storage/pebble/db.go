package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = pebble.ErrNotFound

const defaultFsyncInterval = 5 * time.Millisecond

// Observer receives storage timings. Optional.
type Observer interface {
	ObserveRead(elapsed time.Duration, bytes int)
	ObserveCommit(elapsed time.Duration, ops, bytes int)
}

type noopObserver struct{}

func (noopObserver) ObserveRead(time.Duration, int)        {}
func (noopObserver) ObserveCommit(time.Duration, int, int) {}

type Options struct {
	// DataDir holds the Pebble files. Required.
	DataDir       string
	Fsync         FsyncMode
	FsyncInterval time.Duration
	// PebbleOptions is used as the base configuration when set.
	PebbleOptions *pebble.Options
	Metrics       Observer
	// Logger receives Pebble's own messages.
	Logger logpkg.Logger
}

// DB is the single Pebble instance holding the log and the stream index.
type DB struct {
	inner *pebble.DB
	mode  FsyncMode
	sync  *pebble.WriteOptions
	obs   Observer
}

// Open opens or creates the database under opts.DataDir.
func Open(opts Options) (*DB, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebble: data dir is required")
	}
	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}
	if opts.Logger != nil {
		po.Logger = pebbleLogger{opts.Logger.WithComponent("pebble")}
	}
	mode := opts.Fsync
	switch mode {
	case FsyncModeAlways, FsyncModeNever:
	case FsyncModeInterval:
		interval := opts.FsyncInterval
		if interval <= 0 {
			interval = defaultFsyncInterval
		}
		po.WALMinSyncInterval = func() time.Duration { return interval }
	default:
		mode = FsyncModeAlways
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, fmt.Errorf("pebble: open %s: %w", opts.DataDir, err)
	}
	db := &DB{inner: inner, mode: mode, sync: pebble.NoSync, obs: opts.Metrics}
	if mode.waitsForSync() {
		db.sync = pebble.Sync
	}
	if db.obs == nil {
		db.obs = noopObserver{}
	}
	return db, nil
}

// Mode reports the effective fsync mode.
func (db *DB) Mode() FsyncMode { return db.mode }

func (db *DB) Close() error {
	if db == nil || db.inner == nil {
		return nil
	}
	return db.inner.Close()
}

func (db *DB) NewBatch() *pebble.Batch { return db.inner.NewBatch() }

// CommitBatch applies b under the fsync policy. ctx is checked once before
// the commit starts; a started commit always finishes.
func (db *DB) CommitBatch(ctx context.Context, b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebble: nil batch")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	ops, size := int(b.Count()), b.Len()
	err := b.Commit(db.sync)
	db.obs.ObserveCommit(time.Since(start), ops, size)
	return err
}

// Get returns a copy of the value stored under key, or ErrNotFound.
func (db *DB) Get(key []byte) ([]byte, error) {
	start := time.Now()
	v, closer, err := db.inner.Get(key)
	if err != nil {
		return nil, err
	}
	out := append([]byte(nil), v...)
	_ = closer.Close()
	db.obs.ObserveRead(time.Since(start), len(out))
	return out, nil
}

func (db *DB) Has(key []byte) (bool, error) {
	_, closer, err := db.inner.Get(key)
	switch {
	case errors.Is(err, pebble.ErrNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	_ = closer.Close()
	return true, nil
}

func (db *DB) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return db.inner.NewIter(opts)
}

// CompactPrefix compacts every key under prefix, dropping data covered by
// range deletions.
func (db *DB) CompactPrefix(prefix []byte) error {
	end := PrefixUpperBound(prefix)
	if end == nil {
		return errors.New("pebble: prefix has no upper bound")
	}
	return db.inner.Compact(prefix, end, true)
}

// PrefixUpperBound returns the smallest key greater than every key with
// prefix, or nil when no such key exists.
func PrefixUpperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// pebbleLogger routes Pebble's printf-style messages into a Logger.
type pebbleLogger struct{ l logpkg.Logger }

func (p pebbleLogger) Infof(format string, args ...interface{}) {
	p.l.Debug(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Errorf(format string, args ...interface{}) {
	p.l.Error(fmt.Sprintf(format, args...))
}

func (p pebbleLogger) Fatalf(format string, args ...interface{}) {
	p.l.Fatal(fmt.Sprintf(format, args...))
}

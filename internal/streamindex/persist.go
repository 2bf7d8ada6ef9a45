package streamindex

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/rzbill/esdb/internal/eventlog"
	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

const rebuildPageSize = 1024

// Options configures Open.
type Options struct {
	Shards int
	Logger logpkg.Logger
}

// Open loads the persisted index, or rebuilds it from the log's commit
// records when the index marker is missing.
func Open(db *pebblestore.DB, l *eventlog.Log, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	ok, err := db.Has(KeyMeta())
	if err != nil {
		return nil, fmt.Errorf("streamindex: read marker: %w", err)
	}
	if ok {
		s, err := Load(db, opts.Shards)
		if err != nil {
			return nil, err
		}
		logger.Info("stream index loaded", logpkg.Int("streams", s.Len()))
		return s, nil
	}
	start := time.Now()
	s, err := Reindex(db, l, opts.Shards)
	if err != nil {
		return nil, err
	}
	logger.Info("stream index rebuilt from log",
		logpkg.Int("streams", s.Len()),
		logpkg.Uint64("last_position", l.LastPosition()),
		logpkg.Dur("elapsed", time.Since(start)))
	return s, nil
}

// Load reads every persisted index entry.
func Load(db *pebblestore.DB, shards int) (*Store, error) {
	s := New(shards)
	iter, err := db.NewIter(&pebble.IterOptions{LowerBound: streamPrefix, UpperBound: pebblestore.PrefixUpperBound(streamPrefix)})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	for ok := iter.First(); ok; ok = iter.Next() {
		name := string(iter.Key()[len(streamPrefix):])
		st, err := decodeState(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("streamindex: entry %q: %w", name, err)
		}
		s.set(name, st)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rebuild folds the log's commit records into a fresh store. Each commit
// record carries the state it produced, so the newest record per stream wins.
func Rebuild(l *eventlog.Log, shards int) (*Store, error) {
	s := New(shards)
	from := uint64(0)
	for {
		batches, next, err := l.Read(eventlog.ReadOptions{From: from, Limit: rebuildPageSize, CommitsOnly: true})
		if err != nil {
			return nil, fmt.Errorf("streamindex: rebuild: %w", err)
		}
		for _, b := range batches {
			s.set(b.Commit.Stream, StateFromCommit(b.Commit))
		}
		if next == 0 {
			return s, nil
		}
		from = next
	}
}

// Persist replaces all index entries with the contents of s and writes the
// index marker, in one durable batch.
func Persist(db *pebblestore.DB, s *Store) error {
	b := db.NewBatch()
	defer b.Close()
	if err := b.DeleteRange(streamPrefix, pebblestore.PrefixUpperBound(streamPrefix), nil); err != nil {
		return err
	}
	var err error
	s.Range(func(name string, st StreamState) bool {
		err = b.Set(KeyStream(name), encodeState(st), nil)
		return err == nil
	})
	if err != nil {
		return err
	}
	if err := b.Set(KeyMeta(), metaValue, nil); err != nil {
		return err
	}
	if err := db.CommitBatch(context.Background(), b); err != nil {
		return fmt.Errorf("streamindex: persist: %w", err)
	}
	return nil
}

// Reindex rebuilds the index from the log, persists it and compacts away
// the entries it replaced.
func Reindex(db *pebblestore.DB, l *eventlog.Log, shards int) (*Store, error) {
	s, err := Rebuild(l, shards)
	if err != nil {
		return nil, err
	}
	if err := Persist(db, s); err != nil {
		return nil, err
	}
	if err := db.CompactPrefix(streamPrefix); err != nil {
		return nil, fmt.Errorf("streamindex: compact: %w", err)
	}
	return s, nil
}

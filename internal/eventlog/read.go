package eventlog

import (
	"fmt"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
)

// ReadOptions selects committed writes in commit-position order.
type ReadOptions struct {
	// From is the first commit position considered (inclusive). Zero reads from the start.
	From uint64
	// Limit caps the number of returned batches. Zero means no limit.
	Limit int
	// CommitsOnly skips loading prepare records.
	CommitsOnly bool
	// Filter drops batches for which it returns false. Optional.
	Filter func(Batch) bool
	// MaxExamined caps the commit records examined, matching or not. When
	// reached, Read stops and returns the position to resume from. Zero means
	// no cap.
	MaxExamined int
}

// Event is a prepare record with its log position.
type Event struct {
	Position uint64
	PrepareRecord
}

// Batch is a durable commit record with the events it commits.
type Batch struct {
	CommitPosition uint64
	Commit         CommitRecord
	Events         []Event
}

// Read returns committed batches starting at opts.From. Prepares without a
// commit record are never returned. The second result is the position to
// resume from, or zero when the end of the log was reached.
func (l *Log) Read(opts ReadOptions) ([]Batch, uint64, error) {
	low := KeyRecord(opts.From)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: pebblestore.PrefixUpperBound(recordPrefix)})
	if err != nil {
		return nil, 0, err
	}
	defer iter.Close()

	// Bound the scan to what was durable when the read started.
	last := l.LastPosition()
	out := make([]Batch, 0, max(1, opts.Limit))
	examined := 0
	for ok := iter.First(); ok; ok = iter.Next() {
		pos, okPos := positionFromKey(iter.Key())
		if !okPos || pos > last {
			break
		}
		kind, dec, err := RecordKind(iter.Value())
		if err != nil {
			return out, 0, fmt.Errorf("eventlog: read position %d: %w", pos, err)
		}
		if kind == KindPrepare {
			continue
		}
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return out, pos, nil
		}
		if opts.MaxExamined > 0 && examined >= opts.MaxExamined {
			return out, pos, nil
		}
		examined++
		commit, err := DecodeCommit(dec)
		if err != nil {
			return out, 0, fmt.Errorf("eventlog: read position %d: %w", pos, err)
		}
		b := Batch{CommitPosition: pos, Commit: commit}
		if !opts.CommitsOnly && commit.Kind == KindCommit {
			if b.Events, err = l.readPrepares(commit); err != nil {
				return out, 0, err
			}
		}
		if opts.Filter != nil && !opts.Filter(b) {
			continue
		}
		out = append(out, b)
	}
	return out, 0, iter.Error()
}

func (l *Log) readPrepares(c CommitRecord) ([]Event, error) {
	events := make([]Event, 0, c.EventCount)
	for i := 0; i < c.EventCount; i++ {
		pos := c.PreparePosition + uint64(i)
		raw, err := l.db.Get(KeyRecord(pos))
		if err != nil {
			return nil, fmt.Errorf("eventlog: prepare %d of commit for %q: %w", pos, c.Stream, err)
		}
		_, dec, err := RecordKind(raw)
		if err != nil {
			return nil, fmt.Errorf("eventlog: prepare %d: %w", pos, err)
		}
		p, err := DecodePrepare(dec)
		if err != nil {
			return nil, fmt.Errorf("eventlog: prepare %d: %w", pos, err)
		}
		events = append(events, Event{Position: pos, PrepareRecord: p})
	}
	return events, nil
}

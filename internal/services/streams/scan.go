package streamsvc

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/esdb/internal/eventlog"
	"github.com/rzbill/esdb/internal/streamindex"
)

const (
	defaultScanLimit = 100
	maxScanLimit     = 1000
	maxScanWait      = 30 * time.Second
	// maxScanExamined bounds the commit records one scan call looks at, so a
	// selective filter pages through the log instead of reading all of it.
	maxScanExamined = 10000
)

// ScanOptions selects committed log batches for administration and
// verification. This is not a stream read API.
type ScanOptions struct {
	// From is the first commit position considered; zero starts at the beginning.
	From  uint64
	Limit int
	// Filter is an optional CEL expression over stream, kind, event_type,
	// event_number, prepare_position, commit_position, count, size and the
	// parsed json and metadata of JSON events.
	Filter string
	// Wait blocks up to this long for a new commit when nothing matches yet.
	Wait time.Duration
}

// RecordedEvent is a committed event as stored in the log.
type RecordedEvent struct {
	Stream      string
	EventNumber int64
	EventID     uuid.UUID
	Type        string
	IsJSON      bool
	Data        []byte
	Metadata    []byte
	Position    uint64
	Incarnation uint32
}

// LogBatch is one committed write: an append, a truncation or a tombstone.
type LogBatch struct {
	Kind        string
	Stream      string
	Incarnation uint32
	LogPosition LogPosition
	// Revision and Deletion are the stream state the write produced.
	Revision int64
	Deletion streamindex.DeletionState
	Events   []RecordedEvent
}

type ScanResult struct {
	Batches []LogBatch
	// Next is the commit position to resume from, zero at the end of the log.
	// A page may be empty with a non-zero Next when the filter matched nothing
	// among the records examined.
	Next uint64
	// LastPosition is the newest durable commit position when the scan ran.
	LastPosition uint64
}

// ScanLog returns committed batches in commit-position order.
func (s *Service) ScanLog(ctx context.Context, opts ScanOptions) (ScanResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultScanLimit
	}
	if limit > maxScanLimit {
		limit = maxScanLimit
	}
	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		return ScanResult{}, invalidf("filter: %v", err)
	}
	wait := opts.Wait
	if wait > maxScanWait {
		wait = maxScanWait
	}

	read := func() ([]eventlog.Batch, uint64, error) {
		return s.log.Read(eventlog.ReadOptions{From: opts.From, Limit: limit, Filter: filter.Eval, MaxExamined: s.scanExamined})
	}
	batches, next, err := read()
	if err != nil {
		return ScanResult{}, err
	}
	for len(batches) == 0 && next == 0 && wait > 0 {
		start := time.Now()
		if !s.log.WaitForCommit(ctx, wait) {
			break
		}
		wait -= time.Since(start)
		if batches, next, err = read(); err != nil {
			return ScanResult{}, err
		}
	}
	if err := ctx.Err(); err != nil {
		return ScanResult{}, err
	}

	out := ScanResult{Batches: make([]LogBatch, 0, len(batches)), Next: next, LastPosition: s.log.LastPosition()}
	for _, b := range batches {
		lb := LogBatch{
			Kind:        b.Commit.Kind.String(),
			Stream:      b.Commit.Stream,
			Incarnation: b.Commit.Incarnation,
			LogPosition: LogPosition{PreparePosition: b.Commit.PreparePosition, CommitPosition: b.CommitPosition},
			Revision:    b.Commit.Revision,
			Deletion:    streamindex.DeletionState(b.Commit.Deletion),
			Events:      make([]RecordedEvent, 0, len(b.Events)),
		}
		for _, ev := range b.Events {
			lb.Events = append(lb.Events, RecordedEvent{
				Stream:      ev.Stream,
				EventNumber: ev.EventNumber,
				EventID:     ev.EventID,
				Type:        ev.EventType,
				IsJSON:      ev.IsJSON,
				Data:        ev.Data,
				Metadata:    ev.Metadata,
				Position:    ev.Position,
				Incarnation: ev.Incarnation,
			})
		}
		out.Batches = append(out.Batches, lb)
	}
	return out, nil
}

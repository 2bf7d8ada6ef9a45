package eventlog

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	pebblestore "github.com/rzbill/esdb/internal/storage/pebble"
)

// ErrClosed is returned for writes submitted after Close.
var ErrClosed = errors.New("eventlog: closed")

// Mutation is an extra key/value written atomically with a commit record.
type Mutation struct {
	Key   []byte
	Value []byte
}

// WriteRequest is one durable write: zero or more prepares followed by a
// commit record. Mutations are applied in the same batch as the commit record.
type WriteRequest struct {
	Events    []PrepareRecord
	Commit    CommitRecord
	Mutations []Mutation
}

// WriteResult carries the positions assigned to a write.
// PreparePosition equals CommitPosition for writes without events.
type WriteResult struct {
	PreparePosition uint64
	CommitPosition  uint64
}

// Observer receives writer observations. Optional.
type Observer interface {
	ObserveGroup(requests int, records int, elapsed time.Duration)
	ObservePosition(pos uint64)
}

type noopObserver struct{}

func (noopObserver) ObserveGroup(int, int, time.Duration) {}
func (noopObserver) ObservePosition(uint64)               {}

// Phase names a durable write step.
type Phase string

const (
	PhasePrepare Phase = "prepare"
	PhaseCommit  Phase = "commit"
)

// TestingKnobs allow tests to inject storage faults.
type TestingKnobs struct {
	// BeforeWrite runs before each batch of the given phase is committed.
	// A non-nil error fails the whole group as if Pebble had failed.
	BeforeWrite func(phase Phase) error
}

// Options tunes the writer.
type Options struct {
	// QueueSize bounds the number of writes waiting for the writer.
	QueueSize int
	// MaxGroupSize bounds how many queued writes share one pair of durable batches.
	MaxGroupSize int
	Observer     Observer
	Knobs        TestingKnobs
}

// Log is the global transaction log. A single writer goroutine assigns
// positions in submission order and persists every write in two durable
// steps: all prepare records first, then the commit records.
type Log struct {
	db   *pebblestore.DB
	opts Options

	// closeMu guards closed and sends on reqCh.
	closeMu sync.RWMutex
	closed  bool
	reqCh   chan *pending
	stopped chan struct{}

	// lastPos is owned by the writer goroutine; lastCommit is read concurrently.
	lastPos    uint64
	lastCommit atomic.Uint64

	notifyMu sync.Mutex
	notifyCh chan struct{}
}

type pending struct {
	req WriteRequest
	res chan writeOutcome
}

type writeOutcome struct {
	res WriteResult
	err error
}

// OpenLog loads the last allocated position and commit position and starts the writer.
func OpenLog(db *pebblestore.DB, opts Options) (*Log, error) {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.MaxGroupSize <= 0 {
		opts.MaxGroupSize = 128
	}
	if opts.Observer == nil {
		opts.Observer = noopObserver{}
	}
	l := &Log{
		db:       db,
		opts:     opts,
		reqCh:    make(chan *pending, opts.QueueSize),
		stopped:  make(chan struct{}),
		notifyCh: make(chan struct{}),
	}
	meta, err := db.Get(KeyLogMeta())
	switch {
	case err == nil && len(meta) >= 8:
		l.lastPos = binary.BigEndian.Uint64(meta[:8])
	case err != nil && !errors.Is(err, pebblestore.ErrNotFound):
		return nil, fmt.Errorf("eventlog: load meta: %w", err)
	}
	lastCommit, err := l.findLastCommit()
	if err != nil {
		return nil, err
	}
	l.lastCommit.Store(lastCommit)
	if lastCommit > l.lastPos {
		l.lastPos = lastCommit
	}
	go l.run()
	return l, nil
}

// findLastCommit scans backwards for the newest commit-kind record.
func (l *Log) findLastCommit() (uint64, error) {
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: recordPrefix, UpperBound: pebblestore.PrefixUpperBound(recordPrefix)})
	if err != nil {
		return 0, err
	}
	defer iter.Close()
	for ok := iter.Last(); ok; ok = iter.Prev() {
		kind, _, err := RecordKind(iter.Value())
		if err != nil {
			return 0, err
		}
		if kind != KindPrepare {
			pos, _ := positionFromKey(iter.Key())
			return pos, nil
		}
	}
	return 0, iter.Error()
}

// LastPosition returns the commit position of the newest durable commit.
func (l *Log) LastPosition() uint64 { return l.lastCommit.Load() }

// Write submits req and blocks until it is durable or has failed. The context
// only bounds the wait for a queue slot: once queued, the write runs to
// completion and Write waits for it.
func (l *Log) Write(ctx context.Context, req WriteRequest) (WriteResult, error) {
	p := &pending{req: req, res: make(chan writeOutcome, 1)}
	l.closeMu.RLock()
	if l.closed {
		l.closeMu.RUnlock()
		return WriteResult{}, ErrClosed
	}
	select {
	case l.reqCh <- p:
	case <-ctx.Done():
		l.closeMu.RUnlock()
		return WriteResult{}, ctx.Err()
	}
	l.closeMu.RUnlock()
	out := <-p.res
	return out.res, out.err
}

// Close stops accepting writes, flushes queued ones and stops the writer.
func (l *Log) Close() error {
	l.closeMu.Lock()
	if l.closed {
		l.closeMu.Unlock()
		return nil
	}
	l.closed = true
	close(l.reqCh)
	l.closeMu.Unlock()
	<-l.stopped
	return nil
}

func (l *Log) run() {
	defer close(l.stopped)
	group := make([]*pending, 0, l.opts.MaxGroupSize)
	for p := range l.reqCh {
		group = append(group[:0], p)
	drain:
		for len(group) < l.opts.MaxGroupSize {
			select {
			case next, ok := <-l.reqCh:
				if !ok {
					break drain
				}
				group = append(group, next)
			default:
				break drain
			}
		}
		l.writeGroup(group)
	}
}

// writeGroup allocates positions for the group and persists it. Each write's
// prepares take consecutive positions; all commit records follow all prepares.
func (l *Log) writeGroup(group []*pending) {
	start := time.Now()
	results := make([]WriteResult, len(group))
	pos := l.lastPos

	pb := l.db.NewBatch()
	defer pb.Close()
	records := 0
	var err error
	for i, p := range group {
		results[i].PreparePosition = pos + 1
		for _, ev := range p.req.Events {
			pos++
			records++
			if err == nil {
				err = pb.Set(KeyRecord(pos), EncodePrepare(ev), nil)
			}
		}
	}
	lastPrepare := pos
	prepares := records

	cb := l.db.NewBatch()
	defer cb.Close()
	for i, p := range group {
		pos++
		records++
		results[i].CommitPosition = pos
		if len(p.req.Events) == 0 {
			results[i].PreparePosition = pos
		}
		rec := p.req.Commit
		rec.PreparePosition = results[i].PreparePosition
		rec.EventCount = len(p.req.Events)
		if err == nil {
			err = cb.Set(KeyRecord(pos), EncodeCommit(rec), nil)
		}
		for _, m := range p.req.Mutations {
			if err == nil {
				err = cb.Set(m.Key, m.Value, nil)
			}
		}
	}
	// Positions are consumed even if the write below fails.
	l.lastPos = pos

	if err == nil && prepares > 0 {
		err = l.commitPhase(PhasePrepare, pb, lastPrepare)
	}
	if err == nil {
		err = l.commitPhase(PhaseCommit, cb, pos)
	}

	if err == nil {
		l.lastCommit.Store(pos)
		l.opts.Observer.ObservePosition(pos)
		l.opts.Observer.ObserveGroup(len(group), records, time.Since(start))
	}
	for i, p := range group {
		if err != nil {
			p.res <- writeOutcome{err: err}
			continue
		}
		p.res <- writeOutcome{res: results[i]}
	}
	if err == nil {
		l.notifyMu.Lock()
		close(l.notifyCh)
		l.notifyCh = make(chan struct{})
		l.notifyMu.Unlock()
	}
}

func (l *Log) commitPhase(phase Phase, b *pebble.Batch, lastPos uint64) error {
	if l.opts.Knobs.BeforeWrite != nil {
		if err := l.opts.Knobs.BeforeWrite(phase); err != nil {
			return fmt.Errorf("eventlog: write %s: %w", phase, err)
		}
	}
	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], lastPos)
	if err := b.Set(KeyLogMeta(), meta[:], nil); err != nil {
		return fmt.Errorf("eventlog: write %s: %w", phase, err)
	}
	// Never abandoned midway, so no caller context here.
	if err := l.db.CommitBatch(context.Background(), b); err != nil {
		return fmt.Errorf("eventlog: write %s: %w", phase, err)
	}
	return nil
}

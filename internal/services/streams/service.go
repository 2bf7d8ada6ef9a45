package streamsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/esdb/internal/eventlog"
	"github.com/rzbill/esdb/internal/runtime"
	"github.com/rzbill/esdb/internal/streamindex"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

// MaxStreamNameBytes bounds stream names.
const MaxStreamNameBytes = 1024

// Metrics receives service outcomes. Optional.
type Metrics interface {
	ObserveAppend(outcome string, events int, elapsed time.Duration)
	ObserveDelete(kind, outcome string)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAppend(string, int, time.Duration) {}
func (noopMetrics) ObserveDelete(string, string)             {}

// Limits bound request shapes. Zero fields are unlimited.
type Limits struct {
	MaxBatchEvents  int
	MaxEventBytes   int
	MaxRequestBytes int
}

// requestOverhead covers JSON framing, event ids and types around payloads.
const requestOverhead = 64 << 10

// RequestBytes bounds one encoded append request: the largest batch the
// other limits admit, doubled for base64 and escaping, capped by
// MaxRequestBytes. Zero means unbounded.
func (l Limits) RequestBytes() int64 {
	var batch int64
	if l.MaxBatchEvents > 0 && l.MaxEventBytes > 0 {
		batch = 2*int64(l.MaxBatchEvents)*int64(l.MaxEventBytes) + requestOverhead
	}
	switch {
	case l.MaxRequestBytes <= 0:
		return batch
	case batch == 0 || int64(l.MaxRequestBytes) < batch:
		return int64(l.MaxRequestBytes)
	}
	return batch
}

// Service is the stream write path.
type Service struct {
	rt      *runtime.Runtime
	log     *eventlog.Log
	index   *streamindex.Store
	locks   *streamindex.Locks
	logger  logpkg.Logger
	metrics Metrics
	limits  Limits
	// scanExamined caps commit records examined per ScanLog call.
	scanExamined int
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l logpkg.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithLimits overrides the limits taken from the runtime configuration.
func WithLimits(l Limits) Option {
	return func(s *Service) { s.limits = l }
}

// New returns a Service over the runtime's log and stream index.
func New(rt *runtime.Runtime, opts ...Option) *Service {
	cfg := rt.Config()
	s := &Service{
		rt:           rt,
		log:          rt.Log(),
		index:        rt.Index(),
		locks:        streamindex.NewLocks(),
		logger:       logpkg.NewLogger().With(logpkg.Component("streams")),
		metrics:      noopMetrics{},
		scanExamined: maxScanExamined,
		limits: Limits{
			MaxBatchEvents:  cfg.Limits.MaxBatchEvents,
			MaxEventBytes:   cfg.Limits.MaxEventBytes,
			MaxRequestBytes: cfg.Limits.MaxRequestBytes,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Limits returns the request limits in force.
func (s *Service) Limits() Limits { return s.limits }

// Append writes req.Events to req.Stream if req.ExpectedVersion holds.
// Rejections are *WrongExpectedVersionError or *StreamDeletedError; a failed
// durable write is *StorageError. An empty batch with a satisfied claim
// returns the current revision and a zero LogPosition.
func (s *Service) Append(ctx context.Context, req AppendRequest) (AppendResult, error) {
	events, err := s.validateAppend(req)
	if err != nil {
		s.metrics.ObserveAppend("invalid", 0, 0)
		return AppendResult{}, err
	}
	req.Events = events

	var res AppendResult
	err = s.exclusive(ctx, req.Stream, func(ctx context.Context) error {
		var err error
		res, err = s.appendLocked(ctx, req)
		return err
	})
	return res, err
}

func (s *Service) appendLocked(ctx context.Context, req AppendRequest) (AppendResult, error) {
	start := time.Now()
	prior := s.index.Get(req.Stream)
	d := Decide(prior, req.ExpectedVersion, len(req.Events))

	switch d.Outcome {
	case AcceptNoop:
		s.metrics.ObserveAppend(d.Outcome.String(), 0, time.Since(start))
		return AppendResult{NextExpectedVersion: prior.EffectiveRevision()}, nil
	case Accept:
	default:
		err := rejection(d, req.Stream, req.ExpectedVersion, prior)
		s.metrics.ObserveAppend(d.Outcome.String(), 0, time.Since(start))
		s.logger.WithContext(ctx).Debug("append rejected",
			logpkg.Str("stream", req.Stream),
			logpkg.Str("expected", req.ExpectedVersion.String()),
			logpkg.Int64("actual", prior.EffectiveRevision()),
			logpkg.Str("deletion", prior.Deletion.String()),
			logpkg.Str("outcome", d.Outcome.String()))
		return AppendResult{}, err
	}

	next := d.Next
	prepares := make([]eventlog.PrepareRecord, len(req.Events))
	for i, ev := range req.Events {
		prepares[i] = eventlog.PrepareRecord{
			Stream:      req.Stream,
			Incarnation: next.Incarnation,
			EventNumber: d.FirstEventNumber + int64(i),
			EventID:     ev.EventID,
			EventType:   ev.Type,
			IsJSON:      ev.IsJSON,
			Data:        ev.Data,
			Metadata:    ev.Metadata,
		}
	}
	wres, err := s.write(ctx, "append", req.Stream, eventlog.WriteRequest{
		Events:    prepares,
		Commit:    commitRecord(eventlog.KindCommit, req.Stream, d.FirstEventNumber, next),
		Mutations: []eventlog.Mutation{streamindex.Mutation(req.Stream, next)},
	})
	if err != nil {
		s.metrics.ObserveAppend(outcomeOf(err), 0, time.Since(start))
		return AppendResult{}, err
	}
	if err := s.commitState(req.Stream, prior, next); err != nil {
		return AppendResult{}, err
	}

	s.metrics.ObserveAppend(d.Outcome.String(), len(req.Events), time.Since(start))
	s.logger.WithContext(ctx).Debug("append accepted",
		logpkg.Str("stream", req.Stream),
		logpkg.Str("expected", req.ExpectedVersion.String()),
		logpkg.Int("events", len(req.Events)),
		logpkg.Int64("next_expected_version", next.Revision),
		logpkg.Uint64("prepare_position", wres.PreparePosition),
		logpkg.Uint64("commit_position", wres.CommitPosition))
	return AppendResult{
		NextExpectedVersion: next.Revision,
		LogPosition:         LogPosition{PreparePosition: wres.PreparePosition, CommitPosition: wres.CommitPosition},
	}, nil
}

// StreamState returns the current state of stream.
func (s *Service) StreamState(ctx context.Context, stream string) (StreamInfo, error) {
	if err := ctx.Err(); err != nil {
		return StreamInfo{}, err
	}
	if err := validateStreamName(stream); err != nil {
		return StreamInfo{}, err
	}
	st := s.index.Get(stream)
	return StreamInfo{
		Stream:       stream,
		Revision:     st.EffectiveRevision(),
		Deletion:     st.Deletion,
		Incarnation:  st.Incarnation,
		LastRevision: st.LastRevision,
	}, nil
}

// exclusive runs fn inside the section for stream on its own goroutine.
// If ctx ends first the caller stops waiting; fn keeps running and any
// write it started completes.
func (s *Service) exclusive(ctx context.Context, stream string, fn func(context.Context) error) error {
	done := make(chan error, 1)
	go func() {
		unlock, err := s.locks.Lock(ctx, stream)
		if err != nil {
			done <- err
			return
		}
		defer unlock()
		done <- fn(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// write submits req to the log. Context errors mean the write was never
// queued; every other failure is a storage failure.
func (s *Service) write(ctx context.Context, op, stream string, req eventlog.WriteRequest) (eventlog.WriteResult, error) {
	res, err := s.log.Write(ctx, req)
	if err == nil {
		return res, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return res, err
	}
	s.logger.WithContext(ctx).Error("durable write failed", logpkg.Str("op", op), logpkg.Str("stream", stream), logpkg.Err(err))
	return res, &StorageError{Op: op, Stream: stream, Err: err}
}

func (s *Service) commitState(stream string, prior, next streamindex.StreamState) error {
	if err := s.index.Commit(stream, prior, next); err != nil {
		// Unreachable while the stream section is held.
		s.logger.Error("stream state commit failed", logpkg.Str("stream", stream), logpkg.Err(err))
		return fmt.Errorf("stream %q: commit state: %w", stream, err)
	}
	return nil
}

func commitRecord(kind eventlog.Kind, stream string, first int64, next streamindex.StreamState) eventlog.CommitRecord {
	return eventlog.CommitRecord{
		Kind:             kind,
		Stream:           stream,
		Incarnation:      next.Incarnation,
		FirstEventNumber: first,
		Revision:         next.Revision,
		Deletion:         uint8(next.Deletion),
		LastRevision:     next.LastRevision,
	}
}

func (s *Service) validateAppend(req AppendRequest) ([]EventData, error) {
	if err := validateStreamName(req.Stream); err != nil {
		return nil, err
	}
	if err := req.ExpectedVersion.Validate(); err != nil {
		return nil, err
	}
	if s.limits.MaxBatchEvents > 0 && len(req.Events) > s.limits.MaxBatchEvents {
		return nil, invalidf("batch of %d events exceeds limit %d", len(req.Events), s.limits.MaxBatchEvents)
	}
	events := make([]EventData, len(req.Events))
	for i, ev := range req.Events {
		if ev.Type == "" {
			return nil, invalidf("event %d: type is required", i)
		}
		if size := len(ev.Data) + len(ev.Metadata); s.limits.MaxEventBytes > 0 && size > s.limits.MaxEventBytes {
			return nil, invalidf("event %d: %d bytes exceeds limit %d", i, size, s.limits.MaxEventBytes)
		}
		if ev.EventID == uuid.Nil {
			ev.EventID = uuid.New()
		}
		events[i] = ev
	}
	return events, nil
}

func validateStreamName(stream string) error {
	if stream == "" {
		return invalidf("stream name is required")
	}
	if len(stream) > MaxStreamNameBytes {
		return invalidf("stream name longer than %d bytes", MaxStreamNameBytes)
	}
	return nil
}

// outcomeOf maps an error to a metrics label.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return Accept.String()
	case errors.Is(err, ErrWrongExpectedVersion):
		return RejectWrongExpectedVersion.String()
	case errors.Is(err, ErrStreamDeleted):
		return RejectStreamDeleted.String()
	case errors.Is(err, ErrStreamNotFound):
		return RejectStreamNotFound.String()
	case errors.Is(err, ErrStorageFailure):
		return "storage_failure"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}

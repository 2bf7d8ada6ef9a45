package streamsvc

import (
	"context"
	"time"

	"github.com/rzbill/esdb/internal/eventlog"
	"github.com/rzbill/esdb/internal/streamindex"
	logpkg "github.com/rzbill/esdb/pkg/log"
)

// SoftDelete truncates stream. The name can be recreated by a later append
// with NoStream; numbering then restarts at 0 under a new incarnation.
func (s *Service) SoftDelete(ctx context.Context, stream string, claim ExpectedVersion) (DeleteResult, error) {
	return s.Delete(ctx, DeleteRequest{Stream: stream, ExpectedVersion: claim})
}

// HardDelete writes a permanent tombstone for stream.
func (s *Service) HardDelete(ctx context.Context, stream string, claim ExpectedVersion) (DeleteResult, error) {
	return s.Delete(ctx, DeleteRequest{Stream: stream, ExpectedVersion: claim, Hard: true})
}

// Delete soft or hard deletes req.Stream if req.ExpectedVersion holds.
// Soft deleting a stream without events returns *StreamNotFoundError.
func (s *Service) Delete(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	kind := deleteKind(req.Hard)
	if err := validateStreamName(req.Stream); err != nil {
		s.metrics.ObserveDelete(kind, "invalid")
		return DeleteResult{}, err
	}
	if err := req.ExpectedVersion.Validate(); err != nil {
		s.metrics.ObserveDelete(kind, "invalid")
		return DeleteResult{}, err
	}
	var res DeleteResult
	err := s.exclusive(ctx, req.Stream, func(ctx context.Context) error {
		var err error
		res, err = s.deleteLocked(ctx, req)
		s.metrics.ObserveDelete(kind, outcomeOf(err))
		return err
	})
	return res, err
}

func (s *Service) deleteLocked(ctx context.Context, req DeleteRequest) (DeleteResult, error) {
	start := time.Now()
	prior := s.index.Get(req.Stream)
	d := DecideDelete(prior, req.ExpectedVersion, req.Hard)
	if d.Outcome != Accept {
		s.logger.WithContext(ctx).Debug("delete rejected",
			logpkg.Str("stream", req.Stream),
			logpkg.Bool("hard", req.Hard),
			logpkg.Str("expected", req.ExpectedVersion.String()),
			logpkg.Int64("actual", prior.EffectiveRevision()),
			logpkg.Str("deletion", prior.Deletion.String()),
			logpkg.Str("outcome", d.Outcome.String()))
		return DeleteResult{}, rejection(d, req.Stream, req.ExpectedVersion, prior)
	}

	recKind := eventlog.KindTruncate
	if req.Hard {
		recKind = eventlog.KindTombstone
	}
	next := d.Next
	wres, err := s.write(ctx, deleteKind(req.Hard)+"_delete", req.Stream, eventlog.WriteRequest{
		Commit:    commitRecord(recKind, req.Stream, streamindex.NoRevision, next),
		Mutations: []eventlog.Mutation{streamindex.Mutation(req.Stream, next)},
	})
	if err != nil {
		return DeleteResult{}, err
	}
	if err := s.commitState(req.Stream, prior, next); err != nil {
		return DeleteResult{}, err
	}
	s.logger.WithContext(ctx).Info("stream deleted",
		logpkg.Str("stream", req.Stream),
		logpkg.Bool("hard", req.Hard),
		logpkg.Int64("last_revision", next.LastRevision),
		logpkg.Uint64("commit_position", wres.CommitPosition),
		logpkg.Dur("elapsed", time.Since(start)))
	return DeleteResult{LogPosition: LogPosition{PreparePosition: wres.PreparePosition, CommitPosition: wres.CommitPosition}}, nil
}

func deleteKind(hard bool) string {
	if hard {
		return "hard"
	}
	return "soft"
}

package grpcserver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	streamsvc "github.com/rzbill/esdb/internal/services/streams"
	"github.com/rzbill/esdb/internal/streamindex"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type streamsSvc struct {
	svc *streamsvc.Service
}

func (s *streamsSvc) Append(ctx context.Context, req *AppendRequest) (*AppendResponse, error) {
	claim, err := streamsvc.ParseExpectedVersion(req.ExpectedVersion)
	if err != nil {
		return nil, toStatus(err)
	}
	events := make([]streamsvc.EventData, 0, len(req.Events))
	for i, ev := range req.Events {
		data := streamsvc.EventData{Type: ev.Type, Data: ev.Data, Metadata: ev.Metadata, IsJSON: ev.IsJSON}
		if ev.EventID != "" {
			id, err := uuid.Parse(ev.EventID)
			if err != nil {
				return nil, status.Errorf(codes.InvalidArgument, "event %d: event_id: %v", i, err)
			}
			data.EventID = id
		}
		events = append(events, data)
	}
	res, err := s.svc.Append(ctx, streamsvc.AppendRequest{Stream: req.Stream, ExpectedVersion: claim, Events: events})
	if err != nil {
		out := &AppendResponse{}
		if rejected(err, &out.Result, &out.CurrentRevision, &out.DeletionState) {
			return out, nil
		}
		return nil, toStatus(err)
	}
	return &AppendResponse{
		Result:              ResultSuccess,
		NextExpectedVersion: res.NextExpectedVersion,
		PreparePosition:     res.LogPosition.PreparePosition,
		CommitPosition:      res.LogPosition.CommitPosition,
		CurrentRevision:     res.NextExpectedVersion,
		DeletionState:       streamindex.Active.String(),
	}, nil
}

func (s *streamsSvc) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	claim, err := streamsvc.ParseExpectedVersion(req.ExpectedVersion)
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.svc.Delete(ctx, streamsvc.DeleteRequest{Stream: req.Stream, ExpectedVersion: claim, Hard: req.Hard})
	if err != nil {
		out := &DeleteResponse{}
		if rejected(err, &out.Result, &out.CurrentRevision, &out.DeletionState) {
			return out, nil
		}
		return nil, toStatus(err)
	}
	deletion := streamindex.SoftDeleted
	if req.Hard {
		deletion = streamindex.HardDeleted
	}
	return &DeleteResponse{
		Result:          ResultSuccess,
		PreparePosition: res.LogPosition.PreparePosition,
		CommitPosition:  res.LogPosition.CommitPosition,
		CurrentRevision: streamindex.NoRevision,
		DeletionState:   deletion.String(),
	}, nil
}

func (s *streamsSvc) GetStream(ctx context.Context, req *GetStreamRequest) (*GetStreamResponse, error) {
	info, err := s.svc.StreamState(ctx, req.Stream)
	if err != nil {
		return nil, toStatus(err)
	}
	return &GetStreamResponse{
		Stream:        info.Stream,
		Revision:      info.Revision,
		DeletionState: info.Deletion.String(),
		Incarnation:   info.Incarnation,
		LastRevision:  info.LastRevision,
	}, nil
}

// rejected fills the in-band result fields for business rejections.
func rejected(err error, result *string, revision *int64, deletion *string) bool {
	var (
		wev      *streamsvc.WrongExpectedVersionError
		deleted  *streamsvc.StreamDeletedError
		notFound *streamsvc.StreamNotFoundError
	)
	switch {
	case errors.As(err, &wev):
		*result, *revision, *deletion = ResultWrongExpectedVersion, wev.ActualRevision, wev.Deletion.String()
	case errors.As(err, &deleted):
		*result, *revision, *deletion = ResultStreamDeleted, streamindex.NoRevision, streamindex.HardDeleted.String()
	case errors.As(err, &notFound):
		*result, *revision, *deletion = ResultStreamNotFound, notFound.Revision, notFound.Deletion.String()
	default:
		return false
	}
	return true
}

// toStatus maps service errors that are not rejections to gRPC status codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, streamsvc.ErrInvalidRequest):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, streamsvc.ErrStorageFailure):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

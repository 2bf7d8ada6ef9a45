// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"

	grpcserver "github.com/rzbill/esdb/internal/server/grpc"
	"google.golang.org/grpc"
)

// GrpcTransport implements StreamsTransport over the esdb.v1.Streams service.
type GrpcTransport struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcTransport constructs a new GrpcTransport using the provided dialer.
func NewGrpcTransport(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcTransport {
	return &GrpcTransport{dial: dial}
}

func (t *GrpcTransport) withClient(ctx context.Context, fn func(cli *grpcserver.Client) error) error {
	conn, err := t.dial(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()
	return fn(grpcserver.NewClient(conn))
}

// Append sends one batch via gRPC.
func (t *GrpcTransport) Append(ctx context.Context, stream, expected string, events []Event) (WriteResult, error) {
	var out WriteResult
	err := t.withClient(ctx, func(cli *grpcserver.Client) error {
		req := &grpcserver.AppendRequest{Stream: stream, ExpectedVersion: expected, Events: make([]grpcserver.Event, 0, len(events))}
		for _, ev := range events {
			req.Events = append(req.Events, grpcserver.Event{EventID: ev.EventID, Type: ev.Type, Data: ev.Data, Metadata: ev.Metadata, IsJSON: ev.IsJSON})
		}
		res, err := cli.Append(ctx, req)
		if err != nil {
			return err
		}
		out = WriteResult{
			Result:              res.Result,
			NextExpectedVersion: res.NextExpectedVersion,
			PreparePosition:     res.PreparePosition,
			CommitPosition:      res.CommitPosition,
			CurrentRevision:     res.CurrentRevision,
			DeletionState:       res.DeletionState,
		}
		return nil
	})
	return out, err
}

// Delete soft or hard deletes a stream via gRPC.
func (t *GrpcTransport) Delete(ctx context.Context, stream, expected string, hard bool) (WriteResult, error) {
	var out WriteResult
	err := t.withClient(ctx, func(cli *grpcserver.Client) error {
		res, err := cli.Delete(ctx, &grpcserver.DeleteRequest{Stream: stream, ExpectedVersion: expected, Hard: hard})
		if err != nil {
			return err
		}
		out = WriteResult{
			Result:          res.Result,
			PreparePosition: res.PreparePosition,
			CommitPosition:  res.CommitPosition,
			CurrentRevision: res.CurrentRevision,
			DeletionState:   res.DeletionState,
		}
		return nil
	})
	return out, err
}

// State fetches the state of a stream via gRPC.
func (t *GrpcTransport) State(ctx context.Context, stream string) (StreamState, error) {
	var out StreamState
	err := t.withClient(ctx, func(cli *grpcserver.Client) error {
		res, err := cli.GetStream(ctx, &grpcserver.GetStreamRequest{Stream: stream})
		if err != nil {
			return err
		}
		out = StreamState{
			Stream:        res.Stream,
			Revision:      res.Revision,
			DeletionState: res.DeletionState,
			Incarnation:   res.Incarnation,
			LastRevision:  res.LastRevision,
		}
		return nil
	})
	return out, err
}

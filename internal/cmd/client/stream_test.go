package client

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	grpcserver "github.com/rzbill/esdb/internal/server/grpc"
	"google.golang.org/grpc"
)

type streamsStub struct {
	mu      sync.Mutex
	appends []*grpcserver.AppendRequest
	deletes []*grpcserver.DeleteRequest
	reject  string
}

func (s *streamsStub) Append(_ context.Context, req *grpcserver.AppendRequest) (*grpcserver.AppendResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, req)
	if s.reject != "" {
		return &grpcserver.AppendResponse{Result: s.reject, CurrentRevision: 3, DeletionState: "active"}, nil
	}
	return &grpcserver.AppendResponse{Result: grpcserver.ResultSuccess, NextExpectedVersion: int64(len(req.Events) - 1), PreparePosition: 1, CommitPosition: uint64(len(req.Events) + 1)}, nil
}

func (s *streamsStub) Delete(_ context.Context, req *grpcserver.DeleteRequest) (*grpcserver.DeleteResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, req)
	return &grpcserver.DeleteResponse{Result: grpcserver.ResultSuccess, PreparePosition: 9, CommitPosition: 9, CurrentRevision: -1, DeletionState: "soft_deleted"}, nil
}

func (s *streamsStub) GetStream(_ context.Context, req *grpcserver.GetStreamRequest) (*grpcserver.GetStreamResponse, error) {
	return &grpcserver.GetStreamResponse{Stream: req.Stream, Revision: 4, DeletionState: "active", LastRevision: 4}, nil
}

func startGRPCStub(t *testing.T, svc grpcserver.StreamsServer) (addr string, stop func()) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	gs := grpc.NewServer()
	grpcserver.RegisterStreamsServer(gs, svc)
	done := make(chan struct{})
	go func() {
		_ = gs.Serve(l)
		close(done)
	}()
	stop = func() {
		gs.GracefulStop()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			gs.Stop()
		}
	}
	return l.Addr().String(), stop
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewStreamCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestAppendSendsBatch(t *testing.T) {
	stub := &streamsStub{}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("ESDB_GRPC", addr)

	out, err := runCommand(t, "append", "--stream", "orders", "--expected", "no_stream", "--type", "OrderPlaced",
		"--data", `{"id":1}`, "--data", "plain text")
	if err != nil {
		t.Fatalf("execute: %v (%s)", err, out)
	}
	if !strings.Contains(out, `"result": "success"`) {
		t.Fatalf("expected success in output, got: %s", out)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.appends) != 1 {
		t.Fatalf("appends: %d", len(stub.appends))
	}
	req := stub.appends[0]
	if req.Stream != "orders" || req.ExpectedVersion != "no_stream" || len(req.Events) != 2 {
		t.Fatalf("request: %+v", req)
	}
	if !req.Events[0].IsJSON || req.Events[1].IsJSON {
		t.Fatalf("json detection: %+v", req.Events)
	}
}

func TestAppendRejectionIsAnError(t *testing.T) {
	stub := &streamsStub{reject: grpcserver.ResultWrongExpectedVersion}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("ESDB_GRPC", addr)

	out, err := runCommand(t, "append", "--stream", "orders", "--expected", "7", "--type", "A", "--data", "x")
	if err == nil || !strings.Contains(err.Error(), "wrong_expected_version") {
		t.Fatalf("want rejection error, got %v", err)
	}
	if !strings.Contains(out, `"current_revision": 3`) {
		t.Fatalf("rejection should print current state, got: %s", out)
	}
}

func TestHardDeleteRequiresConfirm(t *testing.T) {
	stub := &streamsStub{}
	addr, stop := startGRPCStub(t, stub)
	defer stop()
	t.Setenv("ESDB_GRPC", addr)

	if _, err := runCommand(t, "delete", "--stream", "orders", "--hard"); err == nil {
		t.Fatalf("hard delete without --confirm should fail")
	}
	if _, err := runCommand(t, "delete", "--stream", "orders", "--hard", "--confirm"); err != nil {
		t.Fatalf("hard delete: %v", err)
	}
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.deletes) != 1 || !stub.deletes[0].Hard {
		t.Fatalf("deletes: %+v", stub.deletes)
	}
}

func TestStateCommand(t *testing.T) {
	addr, stop := startGRPCStub(t, &streamsStub{})
	defer stop()
	t.Setenv("ESDB_GRPC", addr)

	out, err := runCommand(t, "state", "--stream", "orders")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.Contains(out, `"revision": 4`) {
		t.Fatalf("state output: %s", out)
	}
}

package grpcserver

import (
	"context"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rzbill/esdb/internal/runtime"
	streamsvc "github.com/rzbill/esdb/internal/services/streams"
	logpkg "github.com/rzbill/esdb/pkg/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const requestIDMetadata = "x-request-id"

// Server owns the gRPC server instance and runtime.
type Server struct {
	rt     *runtime.Runtime
	grpc   *grpc.Server
	health *health.Server
	lis    net.Listener
	logger logpkg.Logger
}

// New constructs a gRPC server and registers the Streams and health services.
func New(rt *runtime.Runtime, svc *streamsvc.Service, logger logpkg.Logger, opts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	}
	s := &Server{rt: rt, health: health.NewServer(), logger: logger.WithComponent("grpc")}
	base := []grpc.ServerOption{grpc.ChainUnaryInterceptor(s.recoverUnary, s.logUnary)}
	if n := svc.Limits().RequestBytes(); n > 0 && n <= math.MaxInt32 {
		base = append(base, grpc.MaxRecvMsgSize(int(n)))
	}
	opts = append(base, opts...)
	s.grpc = grpc.NewServer(opts...)
	RegisterStreamsServer(s.grpc, &streamsSvc{svc: svc})
	healthpb.RegisterHealthServer(s.grpc, s.health)
	return s
}

// ListenAndServe binds to addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}

// Serve serves on l until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	s.lis = l
	hctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watchHealth(hctx, s.rt, s.health)

	s.logger.Info("grpc listening", logpkg.Str("addr", l.Addr().String()))
	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(l) }()
	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// Close stops the server and closes the listener.
func (s *Server) Close() {
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.lis != nil {
		_ = s.lis.Close()
	}
}

func (s *Server) logUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	id := requestID(ctx)
	ctx = logpkg.ContextWithField(ctx, logpkg.RequestIDKey, id)
	ctx = logpkg.ContextWithField(ctx, logpkg.OperationKey, info.FullMethod)
	resp, err := handler(ctx, req)
	code := status.Code(err)
	fields := []logpkg.Field{
		logpkg.RequestID(id),
		logpkg.Str("method", info.FullMethod),
		logpkg.Str("code", code.String()),
		logpkg.Dur("elapsed", time.Since(start)),
	}
	switch code {
	case codes.OK, codes.InvalidArgument, codes.Canceled, codes.DeadlineExceeded:
		s.logger.Debug("grpc call", fields...)
	default:
		s.logger.Warn("grpc call failed", append(fields, logpkg.Err(err))...)
	}
	return resp, err
}

// requestID takes the caller's x-request-id metadata or mints one.
func requestID(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(requestIDMetadata); len(v) > 0 && v[0] != "" {
			return v[0]
		}
	}
	return uuid.NewString()
}

func (s *Server) recoverUnary(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("grpc handler panic", logpkg.Str("method", info.FullMethod), logpkg.Any("panic", r))
			err = status.Error(codes.Internal, fmt.Sprintf("panic: %v", r))
		}
	}()
	return handler(ctx, req)
}

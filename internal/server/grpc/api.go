package grpcserver

import (
	"context"

	"google.golang.org/grpc"
)

// Result values of AppendResponse and DeleteResponse. Rejections are
// reported in band; only invalid requests and failures use gRPC status codes.
const (
	ResultSuccess              = "success"
	ResultWrongExpectedVersion = "wrong_expected_version"
	ResultStreamDeleted        = "stream_deleted"
	ResultStreamNotFound       = "stream_not_found"
)

type Event struct {
	EventID  string `json:"event_id,omitempty"`
	Type     string `json:"type"`
	Data     []byte `json:"data,omitempty"`
	Metadata []byte `json:"metadata,omitempty"`
	IsJSON   bool   `json:"is_json,omitempty"`
}

// AppendRequest appends Events to Stream. ExpectedVersion is any, no_stream,
// empty_stream, stream_exists or a revision; empty means any.
type AppendRequest struct {
	Stream          string  `json:"stream"`
	ExpectedVersion string  `json:"expected_version,omitempty"`
	Events          []Event `json:"events"`
}

type AppendResponse struct {
	Result              string `json:"result"`
	NextExpectedVersion int64  `json:"next_expected_version"`
	PreparePosition     uint64 `json:"prepare_position"`
	CommitPosition      uint64 `json:"commit_position"`
	// Set on rejections: the stream state to retry against.
	CurrentRevision int64  `json:"current_revision"`
	DeletionState   string `json:"deletion_state,omitempty"`
}

type DeleteRequest struct {
	Stream          string `json:"stream"`
	ExpectedVersion string `json:"expected_version,omitempty"`
	Hard            bool   `json:"hard,omitempty"`
}

type DeleteResponse struct {
	Result          string `json:"result"`
	PreparePosition uint64 `json:"prepare_position"`
	CommitPosition  uint64 `json:"commit_position"`
	CurrentRevision int64  `json:"current_revision"`
	DeletionState   string `json:"deletion_state,omitempty"`
}

type GetStreamRequest struct {
	Stream string `json:"stream"`
}

type GetStreamResponse struct {
	Stream        string `json:"stream"`
	Revision      int64  `json:"revision"`
	DeletionState string `json:"deletion_state"`
	Incarnation   uint32 `json:"incarnation"`
	LastRevision  int64  `json:"last_revision"`
}

// StreamsServer is the server API of the esdb.v1.Streams service.
type StreamsServer interface {
	Append(context.Context, *AppendRequest) (*AppendResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	GetStream(context.Context, *GetStreamRequest) (*GetStreamResponse, error)
}

const streamsServiceName = "esdb.v1.Streams"

// StreamsServiceDesc describes esdb.v1.Streams for grpc.Server.RegisterService.
var StreamsServiceDesc = grpc.ServiceDesc{
	ServiceName: streamsServiceName,
	HandlerType: (*StreamsServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Append", Handler: unaryHandler("Append", func(s StreamsServer, ctx context.Context, in *AppendRequest) (any, error) { return s.Append(ctx, in) })},
		{MethodName: "Delete", Handler: unaryHandler("Delete", func(s StreamsServer, ctx context.Context, in *DeleteRequest) (any, error) { return s.Delete(ctx, in) })},
		{MethodName: "GetStream", Handler: unaryHandler("GetStream", func(s StreamsServer, ctx context.Context, in *GetStreamRequest) (any, error) { return s.GetStream(ctx, in) })},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "esdb/v1/streams",
}

// RegisterStreamsServer registers srv on s.
func RegisterStreamsServer(s grpc.ServiceRegistrar, srv StreamsServer) {
	s.RegisterService(&StreamsServiceDesc, srv)
}

func fullMethod(method string) string { return "/" + streamsServiceName + "/" + method }

// unaryHandler has the shape grpc expects for MethodDesc.Handler.
func unaryHandler[Req any](method string, call func(StreamsServer, context.Context, *Req) (any, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(StreamsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(StreamsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls esdb.v1.Streams over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Append(ctx context.Context, in *AppendRequest, opts ...grpc.CallOption) (*AppendResponse, error) {
	out := new(AppendResponse)
	if err := c.invoke(ctx, "Append", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	out := new(DeleteResponse)
	if err := c.invoke(ctx, "Delete", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetStream(ctx context.Context, in *GetStreamRequest, opts ...grpc.CallOption) (*GetStreamResponse, error) {
	out := new(GetStreamResponse)
	if err := c.invoke(ctx, "GetStream", in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, fullMethod(method), in, out, opts...)
}

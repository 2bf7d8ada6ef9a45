package transports

import "context"

// Event is one event of an append issued from the CLI.
type Event struct {
	EventID  string
	Type     string
	Data     []byte
	Metadata []byte
	IsJSON   bool
}

// WriteResult is the outcome of an append or delete. Result is "success" or
// the name of the rejection; rejections carry the current stream state.
type WriteResult struct {
	Result              string `json:"result"`
	NextExpectedVersion int64  `json:"next_expected_version,omitempty"`
	PreparePosition     uint64 `json:"prepare_position,omitempty"`
	CommitPosition      uint64 `json:"commit_position,omitempty"`
	CurrentRevision     int64  `json:"current_revision"`
	DeletionState       string `json:"deletion_state,omitempty"`
}

// StreamState is the state of a stream as reported by the server.
type StreamState struct {
	Stream        string `json:"stream"`
	Revision      int64  `json:"revision"`
	DeletionState string `json:"deletion_state"`
	Incarnation   uint32 `json:"incarnation"`
	LastRevision  int64  `json:"last_revision"`
}

// StreamsTransport abstracts the transport used by the CLI for stream writes.
type StreamsTransport interface {
	Append(ctx context.Context, stream, expected string, events []Event) (WriteResult, error)
	Delete(ctx context.Context, stream, expected string, hard bool) (WriteResult, error)
	State(ctx context.Context, stream string) (StreamState, error)
}

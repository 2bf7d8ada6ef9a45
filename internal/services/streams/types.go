package streamsvc

import (
	"github.com/google/uuid"
	"github.com/rzbill/esdb/internal/streamindex"
)

// EventData is one event of an append batch. A zero EventID is replaced
// with a random one.
type EventData struct {
	EventID  uuid.UUID
	Type     string
	Data     []byte
	Metadata []byte
	IsJSON   bool
}

// AppendRequest appends Events atomically under ExpectedVersion.
type AppendRequest struct {
	Stream          string
	ExpectedVersion ExpectedVersion
	Events          []EventData
}

// LogPosition locates a write in the global log. Zero for writes that did
// not reach the log.
type LogPosition struct {
	PreparePosition uint64
	CommitPosition  uint64
}

type AppendResult struct {
	NextExpectedVersion int64
	LogPosition         LogPosition
}

// DeleteRequest soft deletes a stream, or hard deletes it when Hard is set.
type DeleteRequest struct {
	Stream          string
	ExpectedVersion ExpectedVersion
	Hard            bool
}

type DeleteResult struct {
	LogPosition LogPosition
}

// StreamInfo is the read-only view of a stream's state.
type StreamInfo struct {
	Stream string
	// Revision is the effective revision: -1 for missing and soft-deleted streams.
	Revision     int64
	Deletion     streamindex.DeletionState
	Incarnation  uint32
	LastRevision int64
}

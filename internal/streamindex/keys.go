package streamindex

import (
	"github.com/rzbill/esdb/internal/eventlog"
)

var (
	metaKey      = []byte("idx/m")
	streamPrefix = []byte("idx/s/")
	metaValue    = []byte{stateFormatV1}
)

// KeyStream returns the index key of a stream.
func KeyStream(name string) []byte {
	k := make([]byte, 0, len(streamPrefix)+len(name))
	k = append(k, streamPrefix...)
	return append(k, name...)
}

// KeyMeta returns the index format marker key.
func KeyMeta() []byte { return metaKey }

// Mutation returns the log side mutation that persists state for name.
func Mutation(name string, s StreamState) eventlog.Mutation {
	return eventlog.Mutation{Key: KeyStream(name), Value: encodeState(s)}
}

// StateFromCommit returns the stream state a commit record produced.
func StateFromCommit(c eventlog.CommitRecord) StreamState {
	return StreamState{
		Revision:     c.Revision,
		Deletion:     DeletionState(c.Deletion),
		Incarnation:  c.Incarnation,
		LastRevision: c.LastRevision,
	}
}

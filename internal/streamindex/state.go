package streamindex

import (
	"encoding/binary"
	"fmt"
)

// DeletionState is the lifecycle discriminant of a stream.
type DeletionState uint8

const (
	Active DeletionState = iota
	SoftDeleted
	HardDeleted
)

func (d DeletionState) String() string {
	switch d {
	case Active:
		return "active"
	case SoftDeleted:
		return "soft_deleted"
	case HardDeleted:
		return "hard_deleted"
	default:
		return fmt.Sprintf("deletion_state(%d)", uint8(d))
	}
}

// NoRevision is the revision of a stream without events.
const NoRevision int64 = -1

// StreamState is the revision and deletion state of one stream.
type StreamState struct {
	// Revision is the event number of the last event, or NoRevision.
	Revision int64
	Deletion DeletionState
	// Incarnation counts recreations after soft deletes.
	Incarnation uint32
	// LastRevision is the revision the stream had when it was last deleted,
	// or NoRevision if it never was.
	LastRevision int64
}

// Initial is the state of a name that has never been written.
func Initial() StreamState {
	return StreamState{Revision: NoRevision, Deletion: Active, LastRevision: NoRevision}
}

// EffectiveRevision is the revision used for expected-version checks: a
// soft-deleted stream counts as empty.
func (s StreamState) EffectiveRevision() int64 {
	if s.Deletion == SoftDeleted {
		return NoRevision
	}
	return s.Revision
}

// Exists reports whether the stream currently has at least one event.
func (s StreamState) Exists() bool {
	return s.Deletion == Active && s.Revision >= 0
}

const stateFormatV1 = 1

func encodeState(s StreamState) []byte {
	b := make([]byte, 0, 24)
	b = append(b, stateFormatV1)
	b = binary.AppendVarint(b, s.Revision)
	b = append(b, byte(s.Deletion))
	b = binary.AppendUvarint(b, uint64(s.Incarnation))
	b = binary.AppendVarint(b, s.LastRevision)
	return b
}

func decodeState(b []byte) (StreamState, error) {
	if len(b) < 1 || b[0] != stateFormatV1 {
		return StreamState{}, fmt.Errorf("streamindex: unknown state format")
	}
	b = b[1:]
	var s StreamState
	var n int
	if s.Revision, n = binary.Varint(b); n <= 0 {
		return StreamState{}, fmt.Errorf("streamindex: corrupt revision")
	}
	b = b[n:]
	if len(b) < 1 {
		return StreamState{}, fmt.Errorf("streamindex: corrupt deletion state")
	}
	s.Deletion = DeletionState(b[0])
	b = b[1:]
	inc, n := binary.Uvarint(b)
	if n <= 0 {
		return StreamState{}, fmt.Errorf("streamindex: corrupt incarnation")
	}
	s.Incarnation = uint32(inc)
	b = b[n:]
	if s.LastRevision, n = binary.Varint(b); n <= 0 {
		return StreamState{}, fmt.Errorf("streamindex: corrupt last revision")
	}
	return s, nil
}

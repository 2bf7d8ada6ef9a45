package streamsvc

import (
	"github.com/rzbill/esdb/internal/streamindex"
)

// Outcome is the result kind of a decision.
type Outcome uint8

const (
	// Accept means the write goes to the log.
	Accept Outcome = iota
	// AcceptNoop means the claim held but there is nothing to write.
	AcceptNoop
	RejectStreamDeleted
	RejectWrongExpectedVersion
	RejectStreamNotFound
)

func (o Outcome) String() string {
	switch o {
	case Accept:
		return "accepted"
	case AcceptNoop:
		return "noop"
	case RejectStreamDeleted:
		return "stream_deleted"
	case RejectWrongExpectedVersion:
		return "wrong_expected_version"
	case RejectStreamNotFound:
		return "stream_not_found"
	default:
		return "unknown"
	}
}

// Decision is the outcome of checking a request against a stream state.
type Decision struct {
	Outcome Outcome
	// FirstEventNumber is the number of the first event to write (appends only).
	FirstEventNumber int64
	// Next is the state to commit once the write is durable.
	Next streamindex.StreamState
}

// Decide checks an append of eventCount events under claim against st.
// It never mutates anything.
func Decide(st streamindex.StreamState, claim ExpectedVersion, eventCount int) Decision {
	if st.Deletion == streamindex.HardDeleted {
		return Decision{Outcome: RejectStreamDeleted, Next: st}
	}
	effective := st.EffectiveRevision()
	if !claim.SatisfiedBy(effective) {
		return Decision{Outcome: RejectWrongExpectedVersion, Next: st}
	}
	if eventCount == 0 {
		return Decision{Outcome: AcceptNoop, Next: st}
	}
	next := st
	if st.Deletion == streamindex.SoftDeleted {
		next.Deletion = streamindex.Active
		next.Incarnation++
	}
	next.Revision = effective + int64(eventCount)
	return Decision{Outcome: Accept, FirstEventNumber: effective + 1, Next: next}
}

// DecideDelete checks a soft or hard delete under claim against st.
func DecideDelete(st streamindex.StreamState, claim ExpectedVersion, hard bool) Decision {
	if st.Deletion == streamindex.HardDeleted {
		return Decision{Outcome: RejectStreamDeleted, Next: st}
	}
	if !claim.SatisfiedBy(st.EffectiveRevision()) {
		return Decision{Outcome: RejectWrongExpectedVersion, Next: st}
	}
	next := st
	if st.Deletion == streamindex.Active {
		next.LastRevision = st.Revision
	}
	if hard {
		next.Deletion = streamindex.HardDeleted
		return Decision{Outcome: Accept, Next: next}
	}
	if !st.Exists() {
		return Decision{Outcome: RejectStreamNotFound, Next: st}
	}
	next.Deletion = streamindex.SoftDeleted
	return Decision{Outcome: Accept, Next: next}
}

// rejection builds the typed error for a rejected decision.
func rejection(d Decision, stream string, claim ExpectedVersion, prior streamindex.StreamState) error {
	switch d.Outcome {
	case RejectStreamDeleted:
		return &StreamDeletedError{Stream: stream}
	case RejectWrongExpectedVersion:
		return &WrongExpectedVersionError{
			Stream:         stream,
			Expected:       claim,
			ActualRevision: prior.EffectiveRevision(),
			Deletion:       prior.Deletion,
		}
	case RejectStreamNotFound:
		return &StreamNotFoundError{Stream: stream, Revision: prior.EffectiveRevision(), Deletion: prior.Deletion}
	default:
		return nil
	}
}

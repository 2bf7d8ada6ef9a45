package streamsvc

import (
	"errors"
	"fmt"

	"github.com/rzbill/esdb/internal/streamindex"
)

var (
	// ErrWrongExpectedVersion matches *WrongExpectedVersionError.
	ErrWrongExpectedVersion = errors.New("wrong expected version")
	// ErrStreamDeleted matches *StreamDeletedError.
	ErrStreamDeleted = errors.New("stream deleted")
	// ErrStorageFailure matches *StorageError.
	ErrStorageFailure = errors.New("storage failure")
	// ErrStreamNotFound matches *StreamNotFoundError.
	ErrStreamNotFound = errors.New("stream not found")
	// ErrInvalidRequest is returned for malformed requests.
	ErrInvalidRequest = errors.New("invalid request")
)

// WrongExpectedVersionError reports a failed claim with the state to retry against.
type WrongExpectedVersionError struct {
	Stream         string
	Expected       ExpectedVersion
	ActualRevision int64
	Deletion       streamindex.DeletionState
}

func (e *WrongExpectedVersionError) Error() string {
	return fmt.Sprintf("stream %q: wrong expected version: expected %s, actual %d (%s)",
		e.Stream, e.Expected, e.ActualRevision, e.Deletion)
}

func (e *WrongExpectedVersionError) Is(target error) bool { return target == ErrWrongExpectedVersion }

// StreamDeletedError reports a write to a hard-deleted stream. Permanent.
type StreamDeletedError struct {
	Stream string
}

func (e *StreamDeletedError) Error() string {
	return fmt.Sprintf("stream %q: deleted", e.Stream)
}

func (e *StreamDeletedError) Is(target error) bool { return target == ErrStreamDeleted }

// StreamNotFoundError reports a soft delete of a stream without events.
type StreamNotFoundError struct {
	Stream   string
	Revision int64
	Deletion streamindex.DeletionState
}

func (e *StreamNotFoundError) Error() string {
	return fmt.Sprintf("stream %q: not found (%s)", e.Stream, e.Deletion)
}

func (e *StreamNotFoundError) Is(target error) bool { return target == ErrStreamNotFound }

// StorageError wraps a failed durable write. The stream state is unchanged.
type StorageError struct {
	Op     string
	Stream string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("stream %q: %s: storage failure: %v", e.Stream, e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorageFailure }

func (e *StorageError) Unwrap() error { return e.Err }

func invalidf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

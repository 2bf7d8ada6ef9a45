package streamsvc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rzbill/esdb/internal/streamindex"
)

type claimKind uint8

const (
	claimAny claimKind = iota
	claimNoStream
	claimStreamExists
	claimExact
)

// ExpectedVersion is the caller's claim about a stream's current revision.
// The zero value is Any.
type ExpectedVersion struct {
	kind     claimKind
	revision int64
}

// Any skips the revision check.
func Any() ExpectedVersion { return ExpectedVersion{kind: claimAny} }

// NoStream requires the stream to be empty or never created.
func NoStream() ExpectedVersion { return ExpectedVersion{kind: claimNoStream} }

// EmptyStream is an alias of NoStream.
func EmptyStream() ExpectedVersion { return NoStream() }

// StreamExists requires the stream to currently have at least one event.
func StreamExists() ExpectedVersion { return ExpectedVersion{kind: claimStreamExists} }

// Exact requires the stream's current revision to equal revision. Negative
// revisions are rejected by Validate.
func Exact(revision int64) ExpectedVersion {
	return ExpectedVersion{kind: claimExact, revision: revision}
}

func (ev ExpectedVersion) IsAny() bool          { return ev.kind == claimAny }
func (ev ExpectedVersion) IsNoStream() bool     { return ev.kind == claimNoStream }
func (ev ExpectedVersion) IsStreamExists() bool { return ev.kind == claimStreamExists }
func (ev ExpectedVersion) IsExact() bool        { return ev.kind == claimExact }

// Revision returns the exact revision, or -1 for the other claims.
func (ev ExpectedVersion) Revision() int64 {
	if ev.kind == claimExact {
		return ev.revision
	}
	return streamindex.NoRevision
}

// Validate rejects negative exact revisions and unknown claim kinds.
func (ev ExpectedVersion) Validate() error {
	switch ev.kind {
	case claimAny, claimNoStream, claimStreamExists:
		return nil
	case claimExact:
		if ev.revision < 0 {
			return invalidf("exact expected version must be non-negative, got %d", ev.revision)
		}
		return nil
	default:
		return invalidf("unknown expected version")
	}
}

// SatisfiedBy reports whether the claim holds for an effective revision.
func (ev ExpectedVersion) SatisfiedBy(effective int64) bool {
	switch ev.kind {
	case claimAny:
		return true
	case claimNoStream:
		return effective == streamindex.NoRevision
	case claimStreamExists:
		return effective >= 0
	case claimExact:
		return effective == ev.revision
	default:
		return false
	}
}

func (ev ExpectedVersion) String() string {
	switch ev.kind {
	case claimAny:
		return "Any"
	case claimNoStream:
		return "NoStream"
	case claimStreamExists:
		return "StreamExists"
	default:
		return fmt.Sprintf("Exact(%d)", ev.revision)
	}
}

// ParseExpectedVersion accepts any, no_stream, empty_stream, stream_exists
// or a non-negative revision.
func ParseExpectedVersion(s string) (ExpectedVersion, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return Any(), nil
	case "no_stream", "nostream":
		return NoStream(), nil
	case "empty_stream", "emptystream":
		return EmptyStream(), nil
	case "stream_exists", "streamexists":
		return StreamExists(), nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return ExpectedVersion{}, invalidf("expected version %q", s)
	}
	ev := Exact(n)
	if err := ev.Validate(); err != nil {
		return ExpectedVersion{}, err
	}
	return ev, nil
}

// MarshalJSON encodes named claims as strings and exact revisions as numbers.
func (ev ExpectedVersion) MarshalJSON() ([]byte, error) {
	switch ev.kind {
	case claimAny:
		return []byte(`"any"`), nil
	case claimNoStream:
		return []byte(`"no_stream"`), nil
	case claimStreamExists:
		return []byte(`"stream_exists"`), nil
	default:
		return []byte(strconv.FormatInt(ev.revision, 10)), nil
	}
}

func (ev *ExpectedVersion) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := ParseExpectedVersion(s)
		if err != nil {
			return err
		}
		*ev = parsed
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return invalidf("expected version must be a string or integer")
	}
	parsed := Exact(n)
	if err := parsed.Validate(); err != nil {
		return err
	}
	*ev = parsed
	return nil
}

package eventlog

import (
	"encoding/binary"
	"errors"
	"hash/crc32"

	"github.com/google/uuid"
)

// Record encoding: varint headerLen | header | payload | crc32c(header|payload)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// ErrCorruptRecord is returned when a stored record fails framing or checksum validation.
var ErrCorruptRecord = errors.New("eventlog: corrupt record")

// Kind discriminates log records.
type Kind uint8

const (
	KindPrepare Kind = iota + 1
	// KindCommit commits the prepares of an append batch.
	KindCommit
	// KindTruncate is the soft-delete marker of a stream.
	KindTruncate
	// KindTombstone permanently deletes a stream.
	KindTombstone
)

func (k Kind) String() string {
	switch k {
	case KindPrepare:
		return "prepare"
	case KindCommit:
		return "commit"
	case KindTruncate:
		return "truncate"
	case KindTombstone:
		return "tombstone"
	default:
		return "unknown"
	}
}

// PrepareRecord is one event of a batch as written to the log.
type PrepareRecord struct {
	Stream      string
	Incarnation uint32
	EventNumber int64
	EventID     uuid.UUID
	EventType   string
	IsJSON      bool
	Data        []byte
	Metadata    []byte
}

// CommitRecord finalizes a write. For KindCommit it references EventCount
// prepares starting at PreparePosition. Revision and Deletion carry the
// resulting stream state so the stream index can be rebuilt from commits alone.
type CommitRecord struct {
	Kind             Kind
	Stream           string
	Incarnation      uint32
	PreparePosition  uint64
	FirstEventNumber int64
	EventCount       int
	Revision         int64
	Deletion         uint8
	LastRevision     int64
}

func EncodeRecord(header, payload []byte) []byte {
	out := make([]byte, 0, 10+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)

	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

type Decoded struct {
	Header  []byte
	Payload []byte
}

func DecodeRecord(b []byte) (Decoded, bool) {
	if len(b) < 1+4 {
		return Decoded{}, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 {
		return Decoded{}, false
	}
	if hlen > uint64(len(b)) || uint64(n)+hlen+4 > uint64(len(b)) {
		return Decoded{}, false
	}
	header := b[n : n+int(hlen)]
	payload := b[n+int(hlen) : len(b)-4]
	expect := binary.BigEndian.Uint32(b[len(b)-4:])
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != expect {
		return Decoded{}, false
	}
	return Decoded{Header: append([]byte(nil), header...), Payload: append([]byte(nil), payload...)}, true
}

// EncodePrepare frames a prepare record; the event data is the payload.
func EncodePrepare(p PrepareRecord) []byte {
	h := make([]byte, 0, 48+len(p.Stream)+len(p.EventType)+len(p.Metadata))
	h = append(h, byte(KindPrepare))
	h = appendString(h, p.Stream)
	h = binary.AppendUvarint(h, uint64(p.Incarnation))
	h = binary.AppendVarint(h, p.EventNumber)
	h = append(h, p.EventID[:]...)
	h = appendString(h, p.EventType)
	var flags byte
	if p.IsJSON {
		flags |= 1
	}
	h = append(h, flags)
	h = appendBytes(h, p.Metadata)
	return EncodeRecord(h, p.Data)
}

// EncodeCommit frames a commit, truncate or tombstone record.
func EncodeCommit(c CommitRecord) []byte {
	h := make([]byte, 0, 48+len(c.Stream))
	h = append(h, byte(c.Kind))
	h = appendString(h, c.Stream)
	h = binary.AppendUvarint(h, uint64(c.Incarnation))
	h = binary.AppendUvarint(h, c.PreparePosition)
	h = binary.AppendVarint(h, c.FirstEventNumber)
	h = binary.AppendUvarint(h, uint64(c.EventCount))
	h = binary.AppendVarint(h, c.Revision)
	h = append(h, c.Deletion)
	h = binary.AppendVarint(h, c.LastRevision)
	return EncodeRecord(h, nil)
}

// RecordKind peeks at the kind of a framed record.
func RecordKind(b []byte) (Kind, Decoded, error) {
	dec, ok := DecodeRecord(b)
	if !ok || len(dec.Header) == 0 {
		return 0, Decoded{}, ErrCorruptRecord
	}
	return Kind(dec.Header[0]), dec, nil
}

// DecodePrepare parses a decoded prepare record.
func DecodePrepare(dec Decoded) (PrepareRecord, error) {
	r := headerReader{b: dec.Header}
	if Kind(r.readByte()) != KindPrepare {
		return PrepareRecord{}, ErrCorruptRecord
	}
	var p PrepareRecord
	p.Stream = r.readString()
	p.Incarnation = uint32(r.readUvarint())
	p.EventNumber = r.readVarint()
	copy(p.EventID[:], r.readFixed(16))
	p.EventType = r.readString()
	p.IsJSON = r.readByte()&1 == 1
	p.Metadata = r.readBytes()
	if r.err != nil {
		return PrepareRecord{}, r.err
	}
	p.Data = dec.Payload
	return p, nil
}

// DecodeCommit parses a decoded commit, truncate or tombstone record.
func DecodeCommit(dec Decoded) (CommitRecord, error) {
	r := headerReader{b: dec.Header}
	var c CommitRecord
	c.Kind = Kind(r.readByte())
	switch c.Kind {
	case KindCommit, KindTruncate, KindTombstone:
	default:
		return CommitRecord{}, ErrCorruptRecord
	}
	c.Stream = r.readString()
	c.Incarnation = uint32(r.readUvarint())
	c.PreparePosition = r.readUvarint()
	c.FirstEventNumber = r.readVarint()
	c.EventCount = int(r.readUvarint())
	c.Revision = r.readVarint()
	c.Deletion = r.readByte()
	c.LastRevision = r.readVarint()
	if r.err != nil {
		return CommitRecord{}, r.err
	}
	return c, nil
}

func appendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

func appendBytes(dst, b []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// headerReader consumes header fields; the first failure sticks in err.
type headerReader struct {
	b   []byte
	err error
}

func (r *headerReader) fail() {
	if r.err == nil {
		r.err = ErrCorruptRecord
	}
	r.b = nil
}

func (r *headerReader) readByte() byte {
	if len(r.b) < 1 {
		r.fail()
		return 0
	}
	v := r.b[0]
	r.b = r.b[1:]
	return v
}

func (r *headerReader) readFixed(n int) []byte {
	if len(r.b) < n {
		r.fail()
		return make([]byte, n)
	}
	v := r.b[:n]
	r.b = r.b[n:]
	return v
}

func (r *headerReader) readUvarint() uint64 {
	v, n := binary.Uvarint(r.b)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *headerReader) readVarint() int64 {
	v, n := binary.Varint(r.b)
	if n <= 0 {
		r.fail()
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *headerReader) readBytes() []byte {
	n := r.readUvarint()
	if r.err != nil {
		return nil
	}
	if uint64(len(r.b)) < n {
		r.fail()
		return nil
	}
	v := append([]byte(nil), r.b[:n]...)
	r.b = r.b[n:]
	return v
}

func (r *headerReader) readString() string {
	return string(r.readBytes())
}

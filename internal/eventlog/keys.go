package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - log/m                (last allocated position)
// - log/r/{pos_be8}      (prepare and commit records)

var (
	logMetaKey   = []byte("log/m")
	recordPrefix = []byte("log/r/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// KeyLogMeta returns the key holding the last allocated position.
func KeyLogMeta() []byte { return logMetaKey }

// KeyRecord builds the record key with a big-endian position for proper ordering.
func KeyRecord(pos uint64) []byte {
	k := make([]byte, 0, len(recordPrefix)+8)
	k = append(k, recordPrefix...)
	k = appendBE8(k, pos)
	return k
}

// positionFromKey extracts the position from a record key.
func positionFromKey(k []byte) (uint64, bool) {
	if len(k) != len(recordPrefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(k[len(recordPrefix):]), true
}

// Package streamindex is the stream revision store: the authoritative map
// from stream name to current revision and deletion state.
//
// State lives in a sharded in-memory map for lock-light reads and is made
// durable by writing each entry as a side mutation of the commit record that
// produced it, so an entry and its commit record are one atomic Pebble write.
// Since every commit record carries the resulting stream state, the index can
// also be rebuilt from the log alone.
//
// Keys:
//   - idx/m            (index format marker; absent means rebuild on open)
//   - idx/s/{name}     (stream state)
package streamindex

// Package pebblestore is the storage layer of esdb: one Pebble database that
// holds the transaction log records and the persisted stream index, so a
// commit record and the stream state it produces land in one atomic batch.
//
// The package adds an fsync policy on top of Pebble. FsyncModeAlways and
// FsyncModeInterval make CommitBatch return only after the WAL is synced; the
// interval mode lets Pebble share one sync among concurrent commits.
package pebblestore

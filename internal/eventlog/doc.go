// Package eventlog implements the global transaction log: the log position
// allocator and the durable sequential storage the write path appends to.
//
// # Overview
//
// Every accepted write is persisted as prepare records (one per event)
// followed by a commit record. Positions are logical record slots starting at
// 1 and are assigned by a single writer goroutine in submission order, so
// positions are strictly increasing, never reused, and write order equals
// position order.
//
// Keys are lexicographically ordered for efficient range scans:
//   - log/m              (last allocated position)
//   - log/r/{pos_be8}    (records)
//
// Records are stored as: headerLen(varint) | header | payload | crc32c(header|payload).
//
// # Group commit
//
// The writer drains up to MaxGroupSize queued writes and persists them with
// two durable Pebble batches: first all prepare records, then all commit
// records together with each write's side mutations. A reader never observes
// a batch before its commit record is durable; prepares whose commit failed
// stay invisible.
//
//	l, _ := eventlog.OpenLog(db, eventlog.Options{})
//	res, _ := l.Write(ctx, eventlog.WriteRequest{Events: evs, Commit: rec})
//	_ = res.CommitPosition
//	batches, next, _ := l.Read(eventlog.ReadOptions{From: 1, Limit: 100})
//	_, _ = batches, next
package eventlog

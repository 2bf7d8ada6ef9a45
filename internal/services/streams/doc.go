// Package streamsvc implements the stream write path on top of the global
// transaction log and the stream revision store: expected-version checks,
// appends, and the soft/hard deletion lifecycle. It is consumed by the gRPC
// and HTTP transports.
//
// Example:
//
//	svc := streamsvc.New(rt, streamsvc.WithLogger(logger))
//	res, err := svc.Append(ctx, streamsvc.AppendRequest{
//	    Stream:          "orders-1",
//	    ExpectedVersion: streamsvc.NoStream(),
//	    Events:          []streamsvc.EventData{{Type: "OrderPlaced", Data: body, IsJSON: true}},
//	})
//	var wev *streamsvc.WrongExpectedVersionError
//	if errors.As(err, &wev) {
//	    // re-read wev.ActualRevision and retry
//	}
//	_ = res.NextExpectedVersion
package streamsvc

// Concurrency notes
//
// Every operation on a stream runs read-state, decide, write and commit-state
// inside one exclusive section keyed by the stream name; unrelated streams
// never contend. The section runs on its own goroutine: a caller whose
// context ends stops waiting, but a write that reached the log writer still
// completes and its resulting state is committed to the revision store.
//
// The log writer is the only global ordering point. It assigns positions and
// persists prepares and commit records in group commits, so the time spent
// holding global state is a channel send.

// Package runtime wires storage, the global transaction log and the stream
// revision store into a single-node esdb instance. It exposes Open/Close,
// basic health checks and accessors used by higher-level services.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Fsync: pebblestore.FsyncModeAlways, Config: cfg})
//	defer rt.Close()
//	_ = rt.CheckHealth(context.Background())
//	st := rt.Index().Get("orders-1")
//	_ = st.Revision
package runtime

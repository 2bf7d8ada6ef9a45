// Package httpserver is the REST gateway of esdb: JSON endpoints for
// appending to and deleting streams, stream state lookups, log scans,
// health and Prometheus metrics.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := httpserver.New(rt, streamsvc.New(rt), nil, logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":2113")
package httpserver

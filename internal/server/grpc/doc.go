// Package grpcserver hosts the esdb gRPC API: the esdb.v1.Streams service
// (Append, Delete, GetStream) and the standard gRPC health service.
//
// Messages are plain Go structs carried by a JSON codec registered under the
// "json" content subtype; Client sets it on every call. Append and delete
// rejections are returned in band in the Result field. Invalid requests map
// to InvalidArgument and storage failures to Unavailable.
//
// Example:
//
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: config.Default()})
//	s := grpcserver.New(rt, streamsvc.New(rt), logger)
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = s.ListenAndServe(ctx, ":1113")
package grpcserver

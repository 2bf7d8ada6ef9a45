// Package client provides the `esdb` command-line client.
//
// Stream writes go over gRPC (ESDB_GRPC, default 127.0.0.1:1113); log
// inspection uses the HTTP API, whose base URL the embedding application
// supplies through a BaseURLFunc.
//
// Usage
//
//	esdb stream append --stream orders --expected no_stream \
//	    --type OrderPlaced --data '{"id":1}' --data '{"id":2}'
//
//	esdb stream append --stream orders --expected 1 --type OrderPaid --data '{"id":1}'
//
//	esdb stream state --stream orders
//
//	esdb stream delete --stream orders --expected 2
//	esdb stream delete --stream orders --hard --confirm
//
//	esdb log dump --filter 'stream == "orders" && event_type == "OrderPaid"'
//
// Notes
//
//   - append and delete print the server result as JSON. Rejections
//     (wrong_expected_version, stream_deleted, stream_not_found) also exit
//     non-zero and include the current revision and deletion state.
//   - append stores --data as JSON when it parses as JSON; use --raw to
//     store it as binary.
package client

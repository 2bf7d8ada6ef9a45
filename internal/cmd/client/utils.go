package client

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// grpcAddrFromEnv returns the gRPC server address from ESDB_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("ESDB_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:1113"
}

// dialGRPCContext dials the esdb gRPC endpoint with insecure transport for local/dev.
func dialGRPCContext(_ context.Context) (*grpc.ClientConn, error) {
	return grpc.NewClient(grpcAddrFromEnv(), grpc.WithTransportCredentials(insecure.NewCredentials()))
}

// decodedPayload renders a payload for terminal output: parsed JSON when it
// is JSON, text when it is UTF-8, base64 otherwise.
func decodedPayload(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	// JSON events arrive embedded, binary ones as base64 strings.
	var s string
	if err := json.Unmarshal(payload, &s); err != nil {
		var v any
		if json.Unmarshal(payload, &v) == nil {
			return v
		}
		return string(payload)
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return s
	}
	if utf8.Valid(b) {
		return string(b)
	}
	return s
}

package auth

import (
	"context"
	"crypto/subtle"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// HealthCheckMethod is the full name of the standard gRPC health check. It is
// usually passed as a public method so probes work without a key.
const HealthCheckMethod = "/grpc.health.v1.Health/Check"

// APIKeyInterceptor returns a gRPC UnaryServerInterceptor that enforces the
// same API key rules as APIKeyMiddleware on every call except the listed
// public methods.
//
// When mode is not "apikey" or key is empty, every call passes. Otherwise the
// first value of header in the incoming metadata must equal key; header must
// be lowercase because gRPC normalises metadata keys.
func APIKeyInterceptor(mode, header, key string, public ...string) grpc.UnaryServerInterceptor {
	open := make(map[string]bool, len(public))
	for _, m := range public {
		open[m] = true
	}
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if mode != "apikey" || key == "" || open[info.FullMethod] {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		vals := md.Get(header)
		if len(vals) == 0 || !keyMatches(vals[0], key) {
			slog.Debug("auth: rejected grpc call", "method", info.FullMethod)
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}

		return handler(ctx, req)
	}
}

// keyMatches compares got to want in constant time. An empty got never matches.
func keyMatches(got, want string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

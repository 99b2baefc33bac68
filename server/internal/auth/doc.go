// Package auth provides authentication and admission control for
// senseease-server.
//
// APIKeyInterceptor(mode, header, key) returns a gRPC UnaryServerInterceptor
// and APIKeyMiddleware wraps an http.Handler; both validate the API key from
// the named header. When mode != "apikey" or key == "", all calls pass
// through (useful for local development with auth disabled).
//
// RateLimiter applies a token bucket per client IP to HTTP requests.
package auth

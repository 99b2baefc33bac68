// Package config loads the server configuration from the `server:` section
// of config.yaml.
//
// Config fields:
//   - GRPCPort     : port for the gRPC health service (default 50051)
//   - HTTPPort     : port for the REST API and WebSocket hub (default 8080)
//   - Log.Level    : debug | info | warn | error (default info)
//   - Auth         : "apikey" or "none"; key read from the env var KeyEnv
//   - RateLimit    : per-client requests/second and burst (default 20/40)
//   - State.TTL    : idle cart/session eviction (default 24h)
//   - Pricing      : tax rate, free-shipping threshold, flat shipping
//   - Stress       : window, log capacity, level thresholds, stream interval
//   - Alerts       : calming-mode rules (default "score >= 80") and webhooks
//   - Storage      : memory | sqlite, path, retention, prune schedule
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, fn) reloads on file changes and hands the new Config to fn.
package config

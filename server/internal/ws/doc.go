// Package ws implements the live stress stream for senseease-server.
//
// Hub manages connected clients, each subscribed to one session, and pushes
// that session's stress view to them on a configurable interval (default 5s).
// Every push re-evaluates the calming rules, so calming mode can switch on or
// off without the client asking.
//
// New(store, alerts, metrics, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast ticker and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.ServeHTTP upgrades /ws/stress?session=ID to WebSocket, sends the
// current view immediately, then streams updates on each tick.
//
// Message format sent to clients:
//
//	{
//	  "event": "stress",
//	  "data":  { /* same schema as GET /api/v1/sessions/{id}/stress */ }
//	}
//
// The upgrader accepts all origins. Apply CORS restrictions at the reverse
// proxy level.
package ws

// Package client is the Go client for the senseease HTTP API.
//
// Client wraps the REST endpoints with typed calls. Tracker batches
// interaction events in a bounded buffer and ships them in the background,
// retrying with exponential backoff when the server is unreachable.
// CalmingWatcher polls a session's stress view and reports when calming
// mode switches on or off.
//
// Typical use in a storefront backend:
//
//	c := client.New("http://localhost:8080", client.WithAPIKey("x-api-key", key))
//	tr := client.NewTracker(c, sessionID, client.TrackerOptions{})
//	go tr.Run(ctx)
//	tr.Record(types.InteractionEvent{Type: types.EventRepeatedClicks, Severity: types.SeverityHigh})
package client

// Package api implements the HTTP REST API for senseease-server.
//
// New(store, alerts, prefs, metrics) returns an http.Handler that serves:
//
//	GET    /api/v1/health                        state counts, storage backend, counters
//	POST   /api/v1/quote                         price posted lines and coupons
//	GET    /api/v1/carts/{id}                    cart with totals (empty if unknown)
//	DELETE /api/v1/carts/{id}                    clear the cart
//	POST   /api/v1/carts/{id}/items              add an item
//	PUT    /api/v1/carts/{id}/items/{line}       set quantity; <= 0 removes
//	DELETE /api/v1/carts/{id}/items/{line}       remove a line
//	POST   /api/v1/carts/{id}/coupons            apply a coupon
//	DELETE /api/v1/carts/{id}/coupons/{code}     remove a coupon
//	POST   /api/v1/sessions/{id}/events          record one event or a batch
//	GET    /api/v1/sessions/{id}/events          retained interaction log
//	DELETE /api/v1/sessions/{id}/events          reset the log
//	GET    /api/v1/sessions/{id}/stress          score, level, calming flag, hints
//	GET    /api/v1/users/{id}/preferences        accessibility preferences
//	PUT    /api/v1/users/{id}/preferences        partial update
//	GET    /api/v1/alerts                        firing and recently resolved calming alerts
//
// Errors are returned as {"error": "..."}: 400 for malformed JSON and
// validation failures, 404 for unknown cart lines, 409 for duplicate coupons.
// Wrong methods get 405 from the ServeMux.
//
// JSON types are defined in types.go. No external HTTP framework is used.
package api

// Package types defines shared Go types used by both the server and the
// client library. These are the canonical in-memory representations of
// interaction events, independent of any one transport.
package types

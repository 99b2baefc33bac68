// Package store holds live cart and session state in memory with per-cart
// serialisation and TTL eviction, plus optional write-through persistence to
// SQLite.
package store

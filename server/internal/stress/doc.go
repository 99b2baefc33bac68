// Package stress derives a user's stress level from recent interaction events.
//
// score.go provides the pure Score(events, now) function: events inside the
// trailing window (60s by default) contribute base_weight × severity
// multiplier, the sum is clamped to [0, 100], and the score maps to a level:
// high ≥70, medium ≥40, low otherwise. The score is recomputed from scratch
// on every evaluation; nothing is carried between calls.
//
// eventlog.go provides EventLog, the append-only per-session log capped at
// the most recent 200 events (oldest evicted first).
//
// Switching the UI into calming mode is not decided here; see package alerts.
package stress

package client

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often a CalmingWatcher polls by default.
const DefaultPollInterval = 5 * time.Second

// StressGetter fetches a session's stress view. *Client implements it.
type StressGetter interface {
	Stress(ctx context.Context, sessionID string) (*Stress, error)
}

// CalmingWatcher polls a session's stress view and calls OnChange whenever
// the calming flag flips. Calming is assumed off before the first poll, so
// OnChange fires on the first poll only if calming is already on.
type CalmingWatcher struct {
	getter    StressGetter
	sessionID string
	interval  time.Duration
	onChange  func(calming bool, s Stress)

	mu      sync.Mutex
	calming bool
	last    *Stress
}

// NewCalmingWatcher creates a watcher for sessionID. An interval of zero or
// less uses DefaultPollInterval.
func NewCalmingWatcher(getter StressGetter, sessionID string, interval time.Duration, onChange func(calming bool, s Stress)) *CalmingWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &CalmingWatcher{
		getter:    getter,
		sessionID: sessionID,
		interval:  interval,
		onChange:  onChange,
	}
}

// Calming reports the calming flag as of the last successful poll.
func (w *CalmingWatcher) Calming() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calming
}

// Last returns the last stress view observed, or nil before the first
// successful poll.
func (w *CalmingWatcher) Last() *Stress {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.last == nil {
		return nil
	}
	s := *w.last
	return &s
}

// Run polls immediately and then every interval until ctx is cancelled.
// Poll errors are logged and the previous calming state is kept.
func (w *CalmingWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches the stress view once and fires OnChange on a transition.
func (w *CalmingWatcher) Poll(ctx context.Context) {
	s, err := w.getter.Stress(ctx, w.sessionID)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("watcher: stress poll failed", "session", w.sessionID, "err", err)
		}
		return
	}
	w.Observe(*s)
}

// Observe feeds a stress view obtained elsewhere, such as from a Tracker
// flush, into the watcher.
func (w *CalmingWatcher) Observe(s Stress) {
	w.mu.Lock()
	changed := s.Calming != w.calming
	w.calming = s.Calming
	w.last = &s
	w.mu.Unlock()

	if changed {
		slog.Info("watcher: calming changed",
			"session", w.sessionID, "calming", s.Calming, "score", s.Score)
		if w.onChange != nil {
			w.onChange(s.Calming, s)
		}
	}
}

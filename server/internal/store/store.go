package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/senseease/senseease/pkg/types"
	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/pricing"
	"github.com/senseease/senseease/server/internal/stress"
)

// Persister is the write-through backend behind the Store.
type Persister interface {
	SaveCart(ctx context.Context, doc cart.Document) error
	LoadCarts(ctx context.Context, since time.Time) ([]cart.Document, error)
	AppendEvents(ctx context.Context, sessionID string, events []types.InteractionEvent) error
	LoadEvents(ctx context.Context, sessionID string, limit int) ([]types.InteractionEvent, error)
	ResetEvents(ctx context.Context, sessionID string) error
}

type cartEntry struct {
	mu        sync.Mutex
	cart      *cart.Cart
	updatedAt time.Time
	evicted   bool
}

type sessionEntry struct {
	mu        sync.Mutex
	log       *stress.EventLog
	updatedAt time.Time
	loaded    bool
	evicted   bool
}

// Store is a thread-safe in-memory store of carts keyed by cart ID and
// interaction logs keyed by session ID. Mutations of one cart are serialised;
// different carts proceed in parallel.
//
// Lock order is always s.mu before an entry's mu.
type Store struct {
	mu       sync.RWMutex
	carts    map[string]*cartEntry
	sessions map[string]*sessionEntry
	policy   pricing.Policy
	scorer   stress.Scorer

	ttl     time.Duration
	logCap  int
	persist Persister
	now     func() time.Time // injectable for deterministic tests
}

// Option configures a Store.
type Option func(*Store)

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option { return func(s *Store) { s.persist = p } }

// WithPolicy sets the pricing policy for new and existing carts.
func WithPolicy(p pricing.Policy) Option { return func(s *Store) { s.policy = p } }

// WithScorer sets the stress scorer.
func WithScorer(sc stress.Scorer) Option { return func(s *Store) { s.scorer = sc } }

// WithLogCapacity sets the per-session event log capacity.
func WithLogCapacity(n int) Option { return func(s *Store) { s.logCap = n } }

// New creates a Store that evicts carts and sessions idle for longer than ttl.
func New(ttl time.Duration, opts ...Option) *Store {
	s := &Store{
		carts:    make(map[string]*cartEntry),
		sessions: make(map[string]*sessionEntry),
		policy:   pricing.DefaultPolicy(),
		scorer:   stress.DefaultScorer(),
		ttl:      ttl,
		logCap:   stress.DefaultLogCapacity,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Persistent reports whether a Persister is attached.
func (s *Store) Persistent() bool { return s.persist != nil }

// --- carts ---

// Cart returns a copy of the cart with the given ID. Unknown IDs yield an
// empty cart that is not retained.
func (s *Store) Cart(id string) *cart.Cart {
	s.mu.RLock()
	e, ok := s.carts[id]
	policy := s.policy
	s.mu.RUnlock()
	if !ok {
		return cart.New(id, policy)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cart.Clone()
}

// UpdateCart runs fn on the cart under that cart's lock and returns a copy of
// the result. The cart is created empty if it does not exist. When fn returns
// an error the cart is neither touched nor persisted.
func (s *Store) UpdateCart(ctx context.Context, id string, fn func(*cart.Cart) error) (*cart.Cart, error) {
	for {
		e := s.cartEntry(id)
		e.mu.Lock()
		if e.evicted {
			// Lost a race with Evict; retry against a fresh entry.
			e.mu.Unlock()
			continue
		}
		work := e.cart.Clone()
		if err := fn(work); err != nil {
			e.mu.Unlock()
			return nil, err
		}
		e.cart = work
		e.updatedAt = s.now()
		if s.persist != nil {
			if err := s.persist.SaveCart(ctx, work.Document()); err != nil {
				slog.Warn("store: persist cart failed", "cart", id, "err", err)
			}
		}
		out := work.Clone()
		e.mu.Unlock()
		return out, nil
	}
}

func (s *Store) cartEntry(id string) *cartEntry {
	s.mu.RLock()
	e, ok := s.carts[id]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.carts[id]; ok {
		return e
	}
	e = &cartEntry{cart: cart.New(id, s.policy), updatedAt: s.now()}
	s.carts[id] = e
	return e
}

// SetPolicy switches the pricing policy and reprices every live cart.
func (s *Store) SetPolicy(p pricing.Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
	for _, e := range s.carts {
		e.mu.Lock()
		e.cart.SetPolicy(p)
		e.mu.Unlock()
	}
}

// Policy returns the current pricing policy.
func (s *Store) Policy() pricing.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.policy
}

// Restore loads persisted carts touched within the TTL. It returns the
// number of carts restored.
func (s *Store) Restore(ctx context.Context) (int, error) {
	if s.persist == nil {
		return 0, nil
	}
	docs, err := s.persist.LoadCarts(ctx, s.now().Add(-s.ttl))
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		s.carts[doc.ID] = &cartEntry{cart: cart.FromDocument(doc, s.policy), updatedAt: s.now()}
	}
	return len(docs), nil
}

// --- sessions ---

// RecordEvents appends events to the session log, stamping any event without
// a timestamp with the current time. It returns the number of old events
// evicted from the bounded log.
func (s *Store) RecordEvents(ctx context.Context, sessionID string, events ...types.InteractionEvent) (int, error) {
	now := s.now()
	stamped := make([]types.InteractionEvent, len(events))
	for i, ev := range events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = now
		}
		stamped[i] = ev
	}

	var evicted int
	err := s.withSession(ctx, sessionID, func(e *sessionEntry) error {
		evicted = e.log.Append(stamped...)
		e.updatedAt = now
		if s.persist != nil {
			if err := s.persist.AppendEvents(ctx, sessionID, stamped); err != nil {
				slog.Warn("store: persist events failed", "session", sessionID, "err", err)
			}
		}
		return nil
	})
	return evicted, err
}

// Events returns the retained events of a session, oldest first.
func (s *Store) Events(ctx context.Context, sessionID string) ([]types.InteractionEvent, error) {
	var out []types.InteractionEvent
	err := s.withSession(ctx, sessionID, func(e *sessionEntry) error {
		out = e.log.Events()
		return nil
	})
	return out, err
}

// ResetEvents drops every event of a session. With a persister the stored
// events are deleted first; if that fails the in-memory log is kept.
func (s *Store) ResetEvents(ctx context.Context, sessionID string) error {
	return s.withSession(ctx, sessionID, func(e *sessionEntry) error {
		if s.persist != nil {
			if err := s.persist.ResetEvents(ctx, sessionID); err != nil {
				return fmt.Errorf("reset events of session %q: %w", sessionID, err)
			}
		}
		e.log.Reset()
		e.updatedAt = s.now()
		return nil
	})
}

// Evaluation is a scored view of one session's log.
type Evaluation struct {
	State  stress.State
	Events []types.InteractionEvent
	Scorer stress.Scorer
	At     time.Time
}

// Evaluate scores the session's log at the current time.
func (s *Store) Evaluate(ctx context.Context, sessionID string) (Evaluation, error) {
	events, err := s.Events(ctx, sessionID)
	if err != nil {
		return Evaluation{}, err
	}
	sc := s.Scorer()
	now := s.now()
	return Evaluation{State: sc.Score(events, now), Events: events, Scorer: sc, At: now}, nil
}

// Stress scores the session's log at the current time.
func (s *Store) Stress(ctx context.Context, sessionID string) (stress.State, error) {
	ev, err := s.Evaluate(ctx, sessionID)
	return ev.State, err
}

// SetScorer replaces the stress scorer.
func (s *Store) SetScorer(sc stress.Scorer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scorer = sc
}

// Scorer returns the current stress scorer.
func (s *Store) Scorer() stress.Scorer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scorer
}

func (s *Store) withSession(ctx context.Context, id string, fn func(*sessionEntry) error) error {
	for {
		e := s.sessionEntry(id)
		e.mu.Lock()
		if e.evicted {
			e.mu.Unlock()
			continue
		}
		if !e.loaded {
			if s.persist != nil {
				events, err := s.persist.LoadEvents(ctx, id, e.log.Capacity())
				if err != nil {
					e.mu.Unlock()
					return err
				}
				e.log.Append(events...)
			}
			e.loaded = true
		}
		err := fn(e)
		e.mu.Unlock()
		return err
	}
}

func (s *Store) sessionEntry(id string) *sessionEntry {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return e
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.sessions[id]; ok {
		return e
	}
	e = &sessionEntry{log: stress.NewEventLog(s.logCap), updatedAt: s.now()}
	s.sessions[id] = e
	return e
}

// --- housekeeping ---

// CartCount returns the number of carts held, including idle ones.
func (s *Store) CartCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.carts)
}

// SessionCount returns the number of sessions held, including idle ones.
func (s *Store) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Evict removes carts and sessions whose last update is older than now
// minus TTL. Persisted state is left in place.
func (s *Store) Evict(now time.Time) (carts, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	for id, e := range s.carts {
		e.mu.Lock()
		if !e.updatedAt.After(cutoff) {
			e.evicted = true
			delete(s.carts, id)
			carts++
		}
		e.mu.Unlock()
	}
	for id, e := range s.sessions {
		e.mu.Lock()
		if !e.updatedAt.After(cutoff) {
			e.evicted = true
			delete(s.sessions, id)
			sessions++
		}
		e.mu.Unlock()
	}
	return carts, sessions
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if c, n := s.Evict(now); c+n > 0 {
				slog.Debug("store: evicted idle state", "carts", c, "sessions", n)
			}
		}
	}
}

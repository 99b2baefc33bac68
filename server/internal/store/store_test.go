package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/senseease/senseease/pkg/types"
	"github.com/senseease/senseease/server/internal/cart"
	"github.com/senseease/senseease/server/internal/pricing"
	"github.com/senseease/senseease/server/internal/stress"
)

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func addItem(productID string, qty int, price string) func(*cart.Cart) error {
	return func(c *cart.Cart) error {
		_, err := c.AddItem(productID, qty, decimal.RequireFromString(price), nil)
		return err
	}
}

func TestCart_UnknownIsEmptyAndNotRetained(t *testing.T) {
	st := New(time.Hour)
	c := st.Cart("nope")
	if len(c.Lines()) != 0 {
		t.Errorf("Lines: got %d, want 0", len(c.Lines()))
	}
	if st.CartCount() != 0 {
		t.Errorf("CartCount: got %d, want 0", st.CartCount())
	}
}

func TestUpdateCart_CreatesAndPrices(t *testing.T) {
	st := New(time.Hour)
	c, err := st.UpdateCart(context.Background(), "c1", addItem("p1", 2, "10.00"))
	if err != nil {
		t.Fatalf("UpdateCart: %v", err)
	}
	if got := c.Totals().Subtotal.StringFixed(2); got != "20.00" {
		t.Errorf("Subtotal: got %s, want 20.00", got)
	}
	if got := st.Cart("c1").Totals().Subtotal.StringFixed(2); got != "20.00" {
		t.Errorf("stored Subtotal: got %s, want 20.00", got)
	}
}

func TestUpdateCart_ErrorLeavesCartUntouched(t *testing.T) {
	st := New(time.Hour)
	ctx := context.Background()
	if _, err := st.UpdateCart(ctx, "c1", addItem("p1", 1, "5.00")); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err := st.UpdateCart(ctx, "c1", func(c *cart.Cart) error {
		c.Clear()
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("UpdateCart err: got %v, want boom", err)
	}
	if n := len(st.Cart("c1").Lines()); n != 1 {
		t.Errorf("Lines after failed update: got %d, want 1", n)
	}
}

func TestCart_ReturnsCopy(t *testing.T) {
	st := New(time.Hour)
	ctx := context.Background()
	if _, err := st.UpdateCart(ctx, "c1", addItem("p1", 1, "5.00")); err != nil {
		t.Fatal(err)
	}
	c := st.Cart("c1")
	c.Clear()
	if n := len(st.Cart("c1").Lines()); n != 1 {
		t.Errorf("mutating a returned cart leaked into the store")
	}
}

func TestUpdateCart_ConcurrentNoLostUpdates(t *testing.T) {
	st := New(time.Hour)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := st.UpdateCart(ctx, "shared", addItem("p1", 1, "1.00")); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	lines := st.Cart("shared").Lines()
	if len(lines) != 1 || lines[0].Quantity != 100 {
		t.Fatalf("got %+v, want one line with quantity 100", lines)
	}
}

func TestSetPolicy_Reprices(t *testing.T) {
	st := New(time.Hour)
	ctx := context.Background()
	if _, err := st.UpdateCart(ctx, "c1", addItem("p1", 1, "10.00")); err != nil {
		t.Fatal(err)
	}
	p := pricing.DefaultPolicy()
	p.TaxRate = decimal.Zero
	p.FlatShipping = decimal.Zero
	st.SetPolicy(p)

	if got := st.Cart("c1").Totals().Total.StringFixed(2); got != "10.00" {
		t.Errorf("Total after SetPolicy: got %s, want 10.00", got)
	}
}

func TestRecordEvents_StampsAndScores(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	st := New(time.Hour)
	st.now = fixedClock(base)
	ctx := context.Background()

	ev := types.InteractionEvent{Type: types.EventFailedSubmissions, Severity: types.SeverityHigh}
	if _, err := st.RecordEvents(ctx, "s1", ev, ev); err != nil {
		t.Fatal(err)
	}
	events, err := st.Events(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || !events[0].Timestamp.Equal(base) {
		t.Fatalf("events: got %+v, want 2 stamped at %v", events, base)
	}

	state, err := st.Stress(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	// 2 × 20 × 1.5
	if state.Score != 60 || state.Level != stress.LevelMedium {
		t.Errorf("Stress: got %+v, want score 60 medium", state)
	}
}

func TestRecordEvents_BoundedLog(t *testing.T) {
	st := New(time.Hour, WithLogCapacity(3))
	ctx := context.Background()
	ev := types.InteractionEvent{Type: types.EventRepeatedClicks, Severity: types.SeverityLow}

	evicted, err := st.RecordEvents(ctx, "s1", ev, ev, ev, ev, ev)
	if err != nil {
		t.Fatal(err)
	}
	if evicted != 2 {
		t.Errorf("evicted: got %d, want 2", evicted)
	}
	events, _ := st.Events(ctx, "s1")
	if len(events) != 3 {
		t.Errorf("retained: got %d, want 3", len(events))
	}
}

func TestResetEvents(t *testing.T) {
	st := New(time.Hour)
	ctx := context.Background()
	ev := types.InteractionEvent{Type: types.EventLongPauses, Severity: types.SeverityMedium}
	if _, err := st.RecordEvents(ctx, "s1", ev); err != nil {
		t.Fatal(err)
	}
	if err := st.ResetEvents(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	state, _ := st.Stress(ctx, "s1")
	if state.EventCount != 0 || state.Score != 0 {
		t.Errorf("Stress after reset: got %+v, want zero", state)
	}
}

func TestResetEvents_PersistFailureKeepsLog(t *testing.T) {
	boom := errors.New("database is locked")
	p := newMemPersister()
	p.resetErr = boom
	st := New(time.Hour, WithPersister(p))
	ctx := context.Background()

	ev := types.InteractionEvent{Type: types.EventLongPauses, Severity: types.SeverityMedium}
	if _, err := st.RecordEvents(ctx, "s1", ev); err != nil {
		t.Fatal(err)
	}
	if err := st.ResetEvents(ctx, "s1"); !errors.Is(err, boom) {
		t.Fatalf("ResetEvents: got %v, want %v", err, boom)
	}
	events, err := st.Events(ctx, "s1")
	if err != nil || len(events) != 1 {
		t.Errorf("events after failed reset: got (%d, %v), want 1 retained", len(events), err)
	}

	p.resetErr = nil
	if err := st.ResetEvents(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	if events, _ := st.Events(ctx, "s1"); len(events) != 0 {
		t.Errorf("events after reset: got %d, want 0", len(events))
	}
}

func TestEvict_RemovesIdle(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	ctx := context.Background()
	ev := types.InteractionEvent{Type: types.EventLongPauses}

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.UpdateCart(ctx, "old-cart", addItem("p", 1, "1.00")) //nolint:errcheck
	st.RecordEvents(ctx, "old-session", ev)                 //nolint:errcheck

	st.now = fixedClock(base)
	st.UpdateCart(ctx, "live-cart", addItem("p", 1, "1.00")) //nolint:errcheck

	carts, sessions := st.Evict(base)
	if carts != 1 || sessions != 1 {
		t.Errorf("Evict: got (%d, %d), want (1, 1)", carts, sessions)
	}
	if st.CartCount() != 1 || st.SessionCount() != 0 {
		t.Errorf("counts after evict: carts=%d sessions=%d", st.CartCount(), st.SessionCount())
	}
}

func TestEvict_NoOp_AllLive(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)
	st.now = fixedClock(base)
	st.UpdateCart(context.Background(), "c", addItem("p", 1, "1.00")) //nolint:errcheck

	if c, s := st.Evict(base); c != 0 || s != 0 {
		t.Errorf("Evict on live state: got (%d, %d), want (0, 0)", c, s)
	}
}

func TestConcurrentMixedOps(t *testing.T) {
	st := New(5 * time.Minute)
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			st.UpdateCart(ctx, "c", addItem("p", 1, "1.00")) //nolint:errcheck
		}()
		go func() {
			defer wg.Done()
			st.Cart("c")
		}()
		go func() {
			defer wg.Done()
			st.Evict(time.Now().Add(time.Hour))
		}()
	}
	wg.Wait()
}

// memPersister records calls for write-through assertions.
type memPersister struct {
	mu     sync.Mutex
	carts  map[string]cart.Document
	events map[string][]types.InteractionEvent

	resetErr error
}

func newMemPersister() *memPersister {
	return &memPersister{carts: map[string]cart.Document{}, events: map[string][]types.InteractionEvent{}}
}

func (m *memPersister) SaveCart(_ context.Context, doc cart.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[doc.ID] = doc
	return nil
}

func (m *memPersister) LoadCarts(context.Context, time.Time) ([]cart.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []cart.Document
	for _, d := range m.carts {
		out = append(out, d)
	}
	return out, nil
}

func (m *memPersister) AppendEvents(_ context.Context, id string, evs []types.InteractionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[id] = append(m.events[id], evs...)
	return nil
}

func (m *memPersister) LoadEvents(_ context.Context, id string, limit int) ([]types.InteractionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evs := m.events[id]
	if len(evs) > limit {
		evs = evs[len(evs)-limit:]
	}
	return append([]types.InteractionEvent(nil), evs...), nil
}

func (m *memPersister) ResetEvents(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resetErr != nil {
		return m.resetErr
	}
	delete(m.events, id)
	return nil
}

func TestPersister_WriteThroughAndRestore(t *testing.T) {
	p := newMemPersister()
	ctx := context.Background()

	st := New(time.Hour, WithPersister(p))
	if _, err := st.UpdateCart(ctx, "c1", addItem("p1", 3, "2.50")); err != nil {
		t.Fatal(err)
	}
	ev := types.InteractionEvent{Type: types.EventSearchFrustration, Severity: types.SeverityHigh}
	if _, err := st.RecordEvents(ctx, "s1", ev); err != nil {
		t.Fatal(err)
	}

	restarted := New(time.Hour, WithPersister(p))
	n, err := restarted.Restore(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Restore: got (%d, %v), want (1, nil)", n, err)
	}
	if got := restarted.Cart("c1").Totals().Subtotal.StringFixed(2); got != "7.50" {
		t.Errorf("restored Subtotal: got %s, want 7.50", got)
	}
	events, err := restarted.Events(ctx, "s1")
	if err != nil || len(events) != 1 {
		t.Errorf("restored events: got (%d, %v), want 1", len(events), err)
	}
}

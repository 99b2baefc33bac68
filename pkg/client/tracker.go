package client

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/senseease/senseease/pkg/types"
)

const (
	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
	sendTimeout       = 10 * time.Second

	defaultBufferSize    = 200
	defaultBatchSize     = 50
	defaultFlushInterval = 2 * time.Second
)

// EventSender delivers a batch of events for one session. *Client
// implements it.
type EventSender interface {
	RecordEvents(ctx context.Context, sessionID string, events []types.InteractionEvent) (*RecordResult, error)
}

// TrackerOptions tunes a Tracker. Zero values take the defaults.
type TrackerOptions struct {
	// BufferSize is the number of events held while the server is
	// unreachable. Default 200.
	BufferSize int

	// BatchSize caps the events sent per request. Default 50.
	BatchSize int

	// FlushInterval is how often the buffer is drained. Default 2s.
	FlushInterval time.Duration

	// OnStress, if set, receives the stress view returned by each
	// successful flush.
	OnStress func(Stress)
}

// Tracker buffers interaction events for one session and ships them in
// batches. Record is non-blocking; when the buffer is full the oldest event
// is evicted. Run must be called in a goroutine to drain the buffer.
type Tracker struct {
	sender    EventSender
	sessionID string
	buf       chan types.InteractionEvent
	batchSize int
	interval  time.Duration
	onStress  func(Stress)
	now       func() time.Time
}

// NewTracker creates a Tracker that sends sessionID's events through sender.
func NewTracker(sender EventSender, sessionID string, opts TrackerOptions) *Tracker {
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultBufferSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	return &Tracker{
		sender:    sender,
		sessionID: sessionID,
		buf:       make(chan types.InteractionEvent, opts.BufferSize),
		batchSize: opts.BatchSize,
		interval:  opts.FlushInterval,
		onStress:  opts.OnStress,
		now:       time.Now,
	}
}

// Record enqueues ev. A zero timestamp is stamped with the current time so
// the server scores the event at the moment it was observed, not sent. An
// empty severity is recorded as medium.
func (t *Tracker) Record(ev types.InteractionEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = t.now()
	}
	ev.Severity = ev.Severity.Effective()
	select {
	case t.buf <- ev:
	default:
		select {
		case <-t.buf:
			slog.Warn("tracker: buffer full, evicted oldest event",
				"session", t.sessionID, "buffer_cap", cap(t.buf))
		default:
		}
		select {
		case t.buf <- ev:
		default:
		}
	}
}

// Pending returns the number of buffered events.
func (t *Tracker) Pending() int { return len(t.buf) }

// Run flushes the buffer every FlushInterval until ctx is cancelled. Failed
// sends are retried with exponential backoff; batches the server rejects as
// invalid are discarded. On cancellation one final flush is attempted.
func (t *Tracker) Run(ctx context.Context) {
	bo := newBackoff()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.finalFlush()
			return
		case <-ticker.C:
		}

		if err := t.flush(ctx); err != nil {
			if ctx.Err() != nil {
				t.finalFlush()
				return
			}
			wait := bo.next()
			slog.Warn("tracker: send failed, will retry",
				"session", t.sessionID, "err", err, "retry_in", wait, "pending", len(t.buf))
			select {
			case <-ctx.Done():
				t.finalFlush()
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.reset()
	}
}

// flush sends buffered events in batches until the buffer is empty or a
// send fails with a retryable error.
func (t *Tracker) flush(ctx context.Context) error {
	for {
		batch := t.take()
		if len(batch) == 0 {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
		res, err := t.sender.RecordEvents(sendCtx, t.sessionID, batch)
		cancel()

		if err != nil {
			if IsPermanent(err) {
				slog.Error("tracker: permanent send error, discarding batch",
					"session", t.sessionID, "events", len(batch), "err", err)
				continue
			}
			t.requeue(batch)
			return err
		}

		slog.Debug("tracker: batch delivered",
			"session", t.sessionID, "events", res.Recorded, "score", res.Stress.Score)
		if t.onStress != nil {
			t.onStress(res.Stress)
		}
	}
}

func (t *Tracker) take() []types.InteractionEvent {
	var batch []types.InteractionEvent
	for len(batch) < t.batchSize {
		select {
		case ev := <-t.buf:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

// requeue puts a failed batch back. Events recorded meanwhile may leave no
// room, in which case the excess is dropped.
func (t *Tracker) requeue(batch []types.InteractionEvent) {
	dropped := 0
	for _, ev := range batch {
		select {
		case t.buf <- ev:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		slog.Warn("tracker: buffer full, dropped events from failed batch",
			"session", t.sessionID, "dropped", dropped)
	}
}

func (t *Tracker) finalFlush() {
	if len(t.buf) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := t.flush(ctx); err != nil {
		slog.Warn("tracker: final flush failed",
			"session", t.sessionID, "err", err, "pending", len(t.buf))
	}
}

// backoff implements truncated exponential backoff with jitter.
type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// ±25% jitter
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}

package stress

import (
	"testing"
	"time"

	"github.com/senseease/senseease/pkg/types"
)

func numbered(i int) types.InteractionEvent {
	return types.InteractionEvent{
		Type:      types.EventRepeatedClicks,
		Timestamp: now.Add(time.Duration(i) * time.Millisecond),
		Metadata:  map[string]any{"n": i},
	}
}

func TestEventLog_DefaultCapacity(t *testing.T) {
	l := NewEventLog(0)
	if l.Capacity() != DefaultLogCapacity {
		t.Errorf("capacity: got %d, want %d", l.Capacity(), DefaultLogCapacity)
	}
}

func TestEventLog_KeepsOrder(t *testing.T) {
	l := NewEventLog(10)
	for i := 0; i < 3; i++ {
		l.Append(numbered(i))
	}
	evs := l.Events()
	if len(evs) != 3 {
		t.Fatalf("len: got %d, want 3", len(evs))
	}
	for i, e := range evs {
		if e.Metadata["n"] != i {
			t.Errorf("events[%d]: got n=%v", i, e.Metadata["n"])
		}
	}
}

func TestEventLog_EvictsOldestAt201(t *testing.T) {
	l := NewEventLog(DefaultLogCapacity)
	for i := 0; i < 200; i++ {
		if n := l.Append(numbered(i)); n != 0 {
			t.Fatalf("append %d evicted %d, want 0", i, n)
		}
	}
	if n := l.Append(numbered(200)); n != 1 {
		t.Fatalf("201st append evicted %d, want 1", n)
	}
	if l.Len() != 200 {
		t.Fatalf("len: got %d, want 200", l.Len())
	}
	evs := l.Events()
	if evs[0].Metadata["n"] != 1 {
		t.Errorf("oldest retained: got n=%v, want 1", evs[0].Metadata["n"])
	}
	if evs[199].Metadata["n"] != 200 {
		t.Errorf("newest: got n=%v, want 200", evs[199].Metadata["n"])
	}
}

func TestEventLog_BatchLargerThanCapacity(t *testing.T) {
	l := NewEventLog(5)
	batch := make([]types.InteractionEvent, 8)
	for i := range batch {
		batch[i] = numbered(i)
	}
	if n := l.Append(batch...); n != 3 {
		t.Errorf("evicted: got %d, want 3", n)
	}
	if got := l.Events()[0].Metadata["n"]; got != 3 {
		t.Errorf("oldest retained: got %v, want 3", got)
	}
}

func TestEventLog_EvictedSlotsCleared(t *testing.T) {
	l := NewEventLog(2)
	l.events = make([]types.InteractionEvent, 0, 8)
	backing := l.events[:cap(l.events)]

	l.Append(numbered(0), numbered(1), numbered(2))
	if backing[0].Metadata != nil || !backing[0].Timestamp.IsZero() {
		t.Errorf("evicted slot still holds %+v", backing[0])
	}
	if backing[1].Metadata["n"] != 1 || backing[2].Metadata["n"] != 2 {
		t.Errorf("retained slots changed: %v, %v", backing[1].Metadata, backing[2].Metadata)
	}
}

func TestEventLog_EventsIsACopy(t *testing.T) {
	l := NewEventLog(5)
	l.Append(numbered(0))
	evs := l.Events()
	evs[0].Type = "mutated"
	if l.Events()[0].Type != types.EventRepeatedClicks {
		t.Error("Events() must not alias the log")
	}
}

func TestEventLog_Reset(t *testing.T) {
	l := NewEventLog(5)
	l.Append(numbered(0), numbered(1))
	l.Reset()
	if l.Len() != 0 {
		t.Errorf("len after reset: got %d", l.Len())
	}
}

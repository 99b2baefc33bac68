package stress

import (
	"time"

	"github.com/senseease/senseease/pkg/types"
)

// Level is the discrete stress level derived from a score.
type Level string

// Stress levels returned by the scorer.
const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Defaults for the scoring window and level thresholds.
const (
	DefaultWindow          = 60 * time.Second
	DefaultMediumThreshold = 40.0
	DefaultHighThreshold   = 70.0

	// MaxScore is the upper bound of the score range.
	MaxScore = 100.0

	// defaultWeight applies to event types outside the weight table.
	defaultWeight = 10.0
)

// baseWeights is the contribution of one event of each type before the
// severity multiplier is applied.
var baseWeights = map[types.EventType]float64{
	types.EventRapidNavigation:   15,
	types.EventLongPauses:        10,
	types.EventFailedSubmissions: 20,
	types.EventErraticScrolling:  12,
	types.EventRepeatedClicks:    18,
	types.EventBackButtonUsage:   8,
	types.EventFormAbandonment:   25,
	types.EventSearchFrustration: 15,
}

// severityMultipliers scale an event's base weight. Empty or unrecognised
// severities use the medium multiplier.
var severityMultipliers = map[types.Severity]float64{
	types.SeverityLow:    1.0,
	types.SeverityMedium: 1.2,
	types.SeverityHigh:   1.5,
}

// State is the result of a stress evaluation.
type State struct {
	// Score is the clamped weighted sum, in the range 0–100.
	Score float64 `json:"score"`

	// Level is derived from Score.
	Level Level `json:"level"`

	// EventCount is the number of events that fell inside the window.
	EventCount int `json:"event_count"`
}

// Scorer holds the tunable parameters of the heuristic.
type Scorer struct {
	// Window is how far back from now events are considered.
	Window time.Duration

	// MediumThreshold and HighThreshold are the inclusive lower bounds of
	// the medium and high levels.
	MediumThreshold float64
	HighThreshold   float64
}

// DefaultScorer returns a Scorer with the standard 60s window and 40/70 thresholds.
func DefaultScorer() Scorer {
	return Scorer{
		Window:          DefaultWindow,
		MediumThreshold: DefaultMediumThreshold,
		HighThreshold:   DefaultHighThreshold,
	}
}

// Score evaluates events at now using DefaultScorer.
func Score(events []types.InteractionEvent, now time.Time) State {
	return DefaultScorer().Score(events, now)
}

// Score evaluates events at now.
//
// Only events with now−Window ≤ timestamp ≤ now count. Events stamped after
// now are ignored. With no events in the window the result is score 0, low.
func (s Scorer) Score(events []types.InteractionEvent, now time.Time) State {
	cutoff := now.Add(-s.Window)

	var sum float64
	n := 0
	for _, e := range events {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		sum += Weight(e)
		n++
	}

	score := clamp(sum, 0, MaxScore)
	return State{
		Score:      score,
		Level:      s.LevelFor(score),
		EventCount: n,
	}
}

// LevelFor maps a score to a level using s's thresholds.
func (s Scorer) LevelFor(score float64) Level {
	switch {
	case score >= s.HighThreshold:
		return LevelHigh
	case score >= s.MediumThreshold:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Weight returns the weighted contribution of a single event.
func Weight(e types.InteractionEvent) float64 {
	base, ok := baseWeights[e.Type]
	if !ok {
		base = defaultWeight
	}
	mult, ok := severityMultipliers[e.Severity]
	if !ok {
		mult = severityMultipliers[types.SeverityMedium]
	}
	return base * mult
}

// KnownType reports whether t has an entry in the weight table.
func KnownType(t types.EventType) bool {
	_, ok := baseWeights[t]
	return ok
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package types

import "time"

// EventType names a recorded user interaction. Values outside the known set
// are accepted and scored with the default weight.
type EventType string

// Known interaction event types.
const (
	EventRapidNavigation   EventType = "rapid_navigation"
	EventLongPauses        EventType = "long_pauses"
	EventFailedSubmissions EventType = "failed_submissions"
	EventErraticScrolling  EventType = "erratic_scrolling"
	EventRepeatedClicks    EventType = "repeated_clicks"
	EventBackButtonUsage   EventType = "back_button_usage"
	EventFormAbandonment   EventType = "form_abandonment"
	EventSearchFrustration EventType = "search_frustration"
)

// Severity qualifies how strongly an event was observed.
type Severity string

// Severity values. An empty Severity is treated as SeverityMedium.
const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Effective returns s, or SeverityMedium when s is empty.
func (s Severity) Effective() Severity {
	if s == "" {
		return SeverityMedium
	}
	return s
}

// InteractionEvent is one entry of a session's interaction log.
type InteractionEvent struct {
	Type      EventType      `json:"type"`
	Severity  Severity       `json:"severity,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

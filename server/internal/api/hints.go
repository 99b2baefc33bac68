package api

import (
	"fmt"
	"sort"
	"time"

	"github.com/senseease/senseease/pkg/types"
	"github.com/senseease/senseease/server/internal/stress"
)

// StressHint is one plain-language explanation of what is driving a
// session's stress score. Clients can show these next to calming UI.
type StressHint struct {
	// Key is the event type the hint is about, or "all_clear".
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical".
	Level string `json:"level"`
	// Title is a short label.
	Title string `json:"title"`
	// Detail suggests how the interface could ease the friction.
	Detail string `json:"detail"`
	// Value is the event type's contribution to the score.
	Value *float64 `json:"value,omitempty"`
}

type hintText struct {
	title  string
	detail string
}

var hintTexts = map[types.EventType]hintText{
	types.EventRapidNavigation: {"Jumping between pages",
		"The shopper is moving quickly between pages without settling. " +
			"Showing a simpler navigation or a short summary of where things are may help."},
	types.EventLongPauses: {"Long pauses",
		"The shopper has stopped for long stretches. " +
			"They may be unsure what to do next; a clear next step or gentle prompt can help."},
	types.EventFailedSubmissions: {"Form errors",
		"Submissions keep failing. " +
			"Highlight exactly which fields need attention and keep what was already typed."},
	types.EventErraticScrolling: {"Erratic scrolling",
		"Scrolling is back and forth. " +
			"The content may be hard to scan; reducing density or motion often helps."},
	types.EventRepeatedClicks: {"Repeated clicks",
		"The same control is being clicked again and again. " +
			"Make sure it gives immediate, visible feedback."},
	types.EventBackButtonUsage: {"Going back often",
		"The back button is used a lot. " +
			"Consider keeping cart and form state visible so nothing feels lost."},
	types.EventFormAbandonment: {"Abandoned forms",
		"Forms are being left unfinished. " +
			"Shorter steps and saved progress reduce the effort to continue."},
	types.EventSearchFrustration: {"Search not helping",
		"Searches are not finding what the shopper wants. " +
			"Offer suggestions or broaden the results."},
}

// stressHints derives hints from the events that fall inside the scoring
// window. Hints are ordered by contribution, largest first.
func stressHints(events []types.InteractionEvent, st stress.State, sc stress.Scorer, now time.Time) []StressHint {
	cutoff := now.Add(-sc.Window)
	contrib := make(map[types.EventType]float64)
	counts := make(map[types.EventType]int)
	for _, e := range events {
		if e.Timestamp.Before(cutoff) || e.Timestamp.After(now) {
			continue
		}
		contrib[e.Type] += stress.Weight(e)
		counts[e.Type]++
	}

	if len(contrib) == 0 {
		score := st.Score
		return []StressHint{{
			Key:    "all_clear",
			Level:  "ok",
			Title:  "All calm",
			Detail: "No friction signals in the last minute.",
			Value:  &score,
		}}
	}

	keys := make([]types.EventType, 0, len(contrib))
	for k := range contrib {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if contrib[keys[i]] != contrib[keys[j]] {
			return contrib[keys[i]] > contrib[keys[j]]
		}
		return keys[i] < keys[j]
	})

	hints := make([]StressHint, 0, len(keys))
	for _, k := range keys {
		v := contrib[k]
		txt, ok := hintTexts[k]
		if !ok {
			txt = hintText{title: string(k), detail: "Unrecognised interaction signal."}
		}
		hints = append(hints, StressHint{
			Key:    string(k),
			Level:  hintLevel(v, sc),
			Title:  fmt.Sprintf("%s (%d)", txt.title, counts[k]),
			Detail: txt.detail,
			Value:  &v,
		})
	}
	return hints
}

// hintLevel grades a single contribution against the scorer's thresholds.
func hintLevel(v float64, sc stress.Scorer) string {
	switch {
	case v >= sc.HighThreshold:
		return "critical"
	case v >= sc.MediumThreshold:
		return "warning"
	default:
		return "info"
	}
}

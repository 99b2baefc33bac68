package alerts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/senseease/senseease/server/internal/config"
	"github.com/senseease/senseease/server/internal/stress"
)

// evalCondition evaluates a rule condition string against a stress State.
//
// Supported expressions (field operator value):
//
//	score >= 80
//	event_count > 12
//	level == high
//
// Returns (fires bool, triggering value float64). The value for level
// conditions is the score.
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, st stress.State) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "level":
		if op == "==" {
			return string(st.Level) == rhs, st.Score
		}
		return false, 0

	case "score", "event_count":
		v := numericField(field, st)
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v

	default:
		return false, 0
	}
}

// numericField maps a field name to its value in the state.
func numericField(field string, st stress.State) float64 {
	switch field {
	case "score":
		return st.Score
	case "event_count":
		return float64(st.EventCount)
	default:
		return 0
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}

// CheckRules reports the first rule whose condition cannot be evaluated.
func CheckRules(rules []config.AlertRule) error {
	for _, r := range rules {
		if err := checkCondition(r.Condition); err != nil {
			return fmt.Errorf("alerts: rule %q: %w", r.Name, err)
		}
	}
	return nil
}

func checkCondition(cond string) error {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return fmt.Errorf("condition %q: want \"field op value\"", cond)
	}
	field, op, rhs := parts[0], parts[1], parts[2]
	switch field {
	case "level":
		if op != "==" {
			return fmt.Errorf("condition %q: level supports only ==", cond)
		}
		switch stress.Level(rhs) {
		case stress.LevelLow, stress.LevelMedium, stress.LevelHigh:
			return nil
		}
		return fmt.Errorf("condition %q: unknown level %q", cond, rhs)
	case "score", "event_count":
		switch op {
		case ">", ">=", "<", "<=", "==":
		default:
			return fmt.Errorf("condition %q: unknown operator %q", cond, op)
		}
		if _, err := strconv.ParseFloat(rhs, 64); err != nil {
			return fmt.Errorf("condition %q: %w", cond, err)
		}
		return nil
	default:
		return fmt.Errorf("condition %q: unknown field %q", cond, field)
	}
}

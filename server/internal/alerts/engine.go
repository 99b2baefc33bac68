package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/senseease/senseease/server/internal/config"
	"github.com/senseease/senseease/server/internal/stress"
)

const (
	defaultCooldown = 5 * time.Minute
	maxHistoryLen   = 200
	recentWindow    = time.Hour
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Alert represents a single alert event produced by the rule engine.
type Alert struct {
	ID         string     `json:"id"`
	RuleName   string     `json:"rule_name"`
	SessionID  string     `json:"session_id"`
	Severity   string     `json:"severity"`
	Message    string     `json:"message"`
	Value      float64    `json:"value"`
	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"` // "firing" | "resolved"

	quiet bool      // activated within cooldown; never announced
	seen  time.Time // last evaluation that kept it firing
}

// Engine evaluates calming rules against session stress states and delivers
// webhook notifications when rules fire or resolve.
//
// Engine is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	rules    []config.AlertRule
	webhooks []config.WebhookConfig
	active   map[string]*Alert    // key: "ruleName:sessionID"
	lastFire map[string]time.Time // last fire time per key (for cooldown)
	history  []*Alert             // recently resolved alerts
	notify   func(Alert)

	client *http.Client
	now    func() time.Time
}

// New creates an Engine from the server alert configuration.
// An Engine with empty rules is valid; Evaluate then never fires.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		rules:    cfg.Rules,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
}

// SetRules swaps rules and webhooks. Firing alerts for rules that no longer
// exist resolve on the next evaluation of their session.
func (e *Engine) SetRules(cfg config.AlertsConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = cfg.Rules
	e.webhooks = cfg.Webhooks
}

// OnTransition registers fn to be called, outside the engine lock, whenever
// an alert fires or resolves.
func (e *Engine) OnTransition(fn func(Alert)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notify = fn
}

// Evaluate tests all rules against the session's state and reports whether
// calming mode is active for the session afterwards.
// Alerts that fire are stored and webhook delivery is triggered asynchronously.
// Alerts that were firing but whose condition is now false are resolved.
func (e *Engine) Evaluate(sessionID string, st stress.State) bool {
	now := e.now()

	e.mu.Lock()
	rules := e.rules
	webhooks := e.webhooks
	notify := e.notify
	var transitions []Alert

	seen := make(map[string]bool, len(rules))
	for _, rule := range rules {
		key := rule.Name + ":" + sessionID
		seen[key] = true
		fires, value := evalCondition(rule.Condition, st)

		if fires {
			if a, ok := e.active[key]; ok {
				a.seen = now
				continue
			}
			cooldown := rule.Cooldown
			if cooldown <= 0 {
				cooldown = defaultCooldown
			}
			// Within the cooldown the alert still activates calming mode
			// but is not announced again.
			quiet := false
			if last, ok := e.lastFire[key]; ok && now.Sub(last) <= cooldown {
				quiet = true
			}
			sev := rule.Severity
			if sev == "" {
				sev = "warning"
			}
			a := &Alert{
				ID:        fmt.Sprintf("%s:%s:%d", rule.Name, sessionID, now.UnixNano()),
				RuleName:  rule.Name,
				SessionID: sessionID,
				Severity:  sev,
				Value:     value,
				Message: fmt.Sprintf("[%s] %s fired for session %s: %s (score %.2f, level %s)",
					sev, rule.Name, sessionID, rule.Condition, st.Score, st.Level),
				FiredAt: now,
				State:   StateFiring,
				quiet:   quiet,
				seen:    now,
			}
			e.active[key] = a
			if quiet {
				slog.Debug("alerts: calming rule re-entered within cooldown",
					"rule", rule.Name, "session", sessionID)
				continue
			}
			e.lastFire[key] = now
			transitions = append(transitions, *a)

			slog.Warn("alerts: calming rule fired",
				"rule", rule.Name,
				"session", sessionID,
				"value", value,
				"severity", sev,
			)
		} else if a, ok := e.active[key]; ok {
			if r := e.resolveLocked(key, a, now); !r.quiet {
				transitions = append(transitions, r)
			}
			slog.Info("alerts: calming rule resolved",
				"rule", rule.Name,
				"session", sessionID,
			)
		}
	}

	// Resolve alerts whose rule was removed by SetRules.
	for key, a := range e.active {
		if a.SessionID == sessionID && !seen[key] {
			if r := e.resolveLocked(key, a, now); !r.quiet {
				transitions = append(transitions, r)
			}
		}
	}

	calming := e.calmingLocked(sessionID)
	e.mu.Unlock()

	e.emit(transitions, notify, webhooks)
	return calming
}

// ResolveIdle resolves firing alerts whose session has not been evaluated
// since before, such as a session abandoned while in calming mode. It
// returns the number of alerts resolved.
func (e *Engine) ResolveIdle(before time.Time) int {
	now := e.now()

	e.mu.Lock()
	webhooks := e.webhooks
	notify := e.notify
	var transitions []Alert
	n := 0
	for key, a := range e.active {
		if !a.seen.Before(before) {
			continue
		}
		slog.Info("alerts: idle session, calming rule resolved",
			"rule", a.RuleName,
			"session", a.SessionID,
			"last_evaluated", a.seen,
		)
		if r := e.resolveLocked(key, a, now); !r.quiet {
			transitions = append(transitions, r)
		}
		n++
	}
	e.mu.Unlock()

	e.emit(transitions, notify, webhooks)
	return n
}

// emit runs the transition hook and starts webhook delivery. It must be
// called without e.mu held.
func (e *Engine) emit(transitions []Alert, notify func(Alert), webhooks []config.WebhookConfig) {
	for i := range transitions {
		a := transitions[i]
		if notify != nil {
			notify(a)
		}
		go e.deliver(webhooks, &a)
	}
}

func (e *Engine) resolveLocked(key string, a *Alert, now time.Time) Alert {
	resolved := now
	a.State = StateResolved
	a.ResolvedAt = &resolved
	delete(e.active, key)

	e.history = append(e.history, a)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	return *a
}

// CalmingActive reports whether any alert is firing for the session.
func (e *Engine) CalmingActive(sessionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calmingLocked(sessionID)
}

func (e *Engine) calmingLocked(sessionID string) bool {
	for _, a := range e.active {
		if a.SessionID == sessionID {
			return true
		}
	}
	return false
}

// Active returns copies of all currently firing alerts plus any alerts
// resolved within the past hour.
func (e *Engine) Active() []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := e.now().Add(-recentWindow)
	out := make([]*Alert, 0, len(e.active))

	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

// FiringCount returns the number of firing alerts.
func (e *Engine) FiringCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

// Prune forgets cooldown bookkeeping older than before for keys that are not
// firing. It returns the number of entries removed.
func (e *Engine) Prune(before time.Time) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for key, t := range e.lastFire {
		if _, firing := e.active[key]; firing {
			continue
		}
		if t.Before(before) {
			delete(e.lastFire, key)
			n++
		}
	}
	return n
}

package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/senseease/senseease/server/internal/config"
)

const webhookTimeout = 10 * time.Second

// payloadFunc renders an alert in one webhook format.
type payloadFunc func(a *Alert) interface{}

var payloads = map[string]payloadFunc{
	"slack": slackPayload,
	"teams": teamsPayload,
	"http":  httpPayload,
}

// deliver posts a to every configured webhook. Failures are logged only.
func (e *Engine) deliver(webhooks []config.WebhookConfig, a *Alert) {
	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}
		render, ok := payloads[wh.Type]
		if !ok {
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.post(url, render(a)); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type, "rule", a.RuleName, "session", a.SessionID, "err", err)
			continue
		}
		slog.Debug("alerts: webhook delivered",
			"type", wh.Type, "rule", a.RuleName, "session", a.SessionID, "state", a.State)
	}
}

// summary is the one-line human text shared by the chat formats.
func summary(a *Alert) string {
	if a.State == StateResolved {
		return fmt.Sprintf("Calming mode off for session %s (%s resolved)", a.SessionID, a.RuleName)
	}
	return a.Message
}

type slackMessage struct {
	Text string `json:"text"`
}

func slackPayload(a *Alert) interface{} {
	label := "[RESOLVED]"
	if a.State == StateFiring {
		label = severityStyle(a.Severity).label
	}
	return slackMessage{Text: fmt.Sprintf("*%s* %s", label, summary(a))}
}

// teamsCard is the legacy Office 365 connector MessageCard.
type teamsCard struct {
	Type       string `json:"@type"`
	Context    string `json:"@context"`
	ThemeColor string `json:"themeColor"`
	Summary    string `json:"summary"`
	Title      string `json:"title"`
	Text       string `json:"text"`
}

func teamsPayload(a *Alert) interface{} {
	return teamsCard{
		Type:       "MessageCard",
		Context:    "http://schema.org/extensions",
		ThemeColor: severityStyle(a.Severity).color,
		Summary:    a.RuleName + " " + a.State,
		Title:      "SenseEase calming alert: " + a.RuleName,
		Text:       summary(a),
	}
}

func httpPayload(a *Alert) interface{} {
	return struct {
		Alert *Alert `json:"alert"`
	}{a}
}

func (e *Engine) post(url string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

type style struct {
	label string
	color string
}

var severityStyles = map[string]style{
	"critical": {"[CRITICAL]", "FF4F6A"},
	"warning":  {"[WARNING]", "FFAB40"},
	"info":     {"[INFO]", "00D4FF"},
}

func severityStyle(s string) style {
	if st, ok := severityStyles[s]; ok {
		return st
	}
	return severityStyles["info"]
}

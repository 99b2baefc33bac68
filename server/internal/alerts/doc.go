// Package alerts implements the calming-mode rule engine and webhook
// delivery. Rules are evaluated against a session's stress state; an alert
// that is firing for a session means calming mode should be on for it.
// Webhooks are delivered to Teams, Slack, or generic HTTP targets.
package alerts

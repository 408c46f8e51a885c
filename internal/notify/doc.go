// Package notify delivers run reports to Slack, Microsoft Teams and generic
// HTTP webhooks for the statuses selected in notify.on.
package notify

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/pipeline"
)

// defaultOn is used when notify.on is empty: every status except success.
var defaultOn = []pipeline.Status{
	pipeline.StatusDegraded,
	pipeline.StatusPublishFailed,
	pipeline.StatusFailed,
}

// Report is the JSON body posted to "http" webhooks.
type Report struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Routes     int       `json:"routes"`
	Files      int       `json:"files"`
	Committed  bool      `json:"committed"`
	CommitSHA  string    `json:"commit_sha,omitempty"`
	Pushed     bool      `json:"pushed"`
	Error      string    `json:"error,omitempty"`
}

// Notifier posts run reports to webhooks. It implements pipeline.Observer;
// delivery is synchronous and failures are only logged.
type Notifier struct {
	on       map[pipeline.Status]bool
	webhooks []config.WebhookConfig
	client   *http.Client
}

// New creates a Notifier from the notify configuration.
// A Notifier with no webhooks is valid; Observe becomes a no-op.
func New(cfg config.NotifyConfig) *Notifier {
	on := make(map[pipeline.Status]bool)
	for _, s := range cfg.On {
		on[pipeline.Status(s)] = true
	}
	if len(on) == 0 {
		for _, s := range defaultOn {
			on[s] = true
		}
	}
	return &Notifier{
		on:       on,
		webhooks: cfg.Webhooks,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Observe sends res to every configured webhook when its status is selected.
func (n *Notifier) Observe(ctx context.Context, res *pipeline.Result) {
	if !n.on[res.Status] {
		return
	}
	rep := newReport(res)

	for _, wh := range n.webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = n.sendSlack(ctx, url, rep)
		case "teams":
			err = n.sendTeams(ctx, url, rep)
		case "http":
			err = n.sendHTTP(ctx, url, rep)
		default:
			slog.Warn("notify: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("notify: webhook delivery failed",
				"type", wh.Type,
				"run_id", rep.RunID,
				"err", err,
			)
		} else {
			slog.Debug("notify: webhook delivered",
				"type", wh.Type,
				"run_id", rep.RunID,
				"status", rep.Status,
			)
		}
	}
}

func newReport(res *pipeline.Result) Report {
	rep := Report{
		RunID:      res.RunID,
		Status:     string(res.Status),
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration().Milliseconds(),
		Routes:     res.Routes,
		Files:      res.FilesWritten,
		Committed:  res.Committed,
		CommitSHA:  res.CommitSHA,
		Pushed:     res.Pushed,
	}
	switch {
	case res.Err != nil:
		rep.Error = res.Err.Error()
	case res.PublishErr != nil:
		rep.Error = res.PublishErr.Error()
	case res.FetchErr != nil:
		rep.Error = res.FetchErr.Error()
	}
	return rep
}

// summary is the one-line human text used by chat webhooks.
func summary(rep Report) string {
	s := fmt.Sprintf("alertsync run %s: %d routes, %d files", rep.Status, rep.Routes, rep.Files)
	if rep.Committed {
		s += fmt.Sprintf(", committed %.7s", rep.CommitSHA)
	}
	if rep.Error != "" {
		s += " (" + rep.Error + ")"
	}
	return s
}

func (n *Notifier) sendSlack(ctx context.Context, url string, rep Report) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s", statusLabel(rep.Status), summary(rep)),
	})
	return n.post(ctx, url, body)
}

func (n *Notifier) sendTeams(ctx context.Context, url string, rep Report) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": statusColor(rep.Status),
		"summary":    rep.RunID,
		"title":      fmt.Sprintf("alertsync run %s", rep.Status),
		"text":       summary(rep),
	}
	body, _ := json.Marshal(payload)
	return n.post(ctx, url, body)
}

func (n *Notifier) sendHTTP(ctx context.Context, url string, rep Report) error {
	body, _ := json.Marshal(map[string]interface{}{"run": rep})
	return n.post(ctx, url, body)
}

func (n *Notifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func statusLabel(s string) string {
	switch pipeline.Status(s) {
	case pipeline.StatusFailed:
		return "[FAILED]"
	case pipeline.StatusPublishFailed:
		return "[PUBLISH FAILED]"
	case pipeline.StatusDegraded:
		return "[DEGRADED]"
	default:
		return "[OK]"
	}
}

func statusColor(s string) string {
	switch pipeline.Status(s) {
	case pipeline.StatusFailed, pipeline.StatusPublishFailed:
		return "FF4F6A"
	case pipeline.StatusDegraded:
		return "FFAB40"
	default:
		return "00D4FF"
	}
}

package status

import (
	"time"

	"github.com/alertsync/alertsync/internal/pipeline"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	// State is the last run's status, or "unknown" before the first run.
	State               string       `json:"state"`
	RunCount            int          `json:"run_count"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccessAt       string       `json:"last_success_at,omitempty"` // RFC3339
	LastRun             *RunResponse `json:"last_run,omitempty"`
}

// RunResponse is one run in GET /api/v1/runs or GET /api/v1/runs/{id}.
type RunResponse struct {
	RunID      string `json:"run_id"`
	Status     string `json:"status"`
	StartedAt  string `json:"started_at"`  // RFC3339
	FinishedAt string `json:"finished_at"` // RFC3339
	DurationMS int64  `json:"duration_ms"`

	Routes        int    `json:"routes"`
	FetchAttempts int    `json:"fetch_attempts"`
	FetchError    string `json:"fetch_error,omitempty"`

	FilesWritten   int      `json:"files_written"`
	FilesCreated   int      `json:"files_created"`
	FilesUpdated   int      `json:"files_updated"`
	FilesUnchanged int      `json:"files_unchanged"`
	Pruned         []string `json:"pruned"`
	Collisions     int      `json:"collisions"`
	Skipped        int      `json:"skipped"`

	Committed bool   `json:"committed"`
	CommitSHA string `json:"commit_sha,omitempty"`

	PublishEnabled  bool   `json:"publish_enabled"`
	Pushed          bool   `json:"pushed"`
	PublishAttempts int    `json:"publish_attempts"`
	PublishError    string `json:"publish_error,omitempty"`

	Error string `json:"error,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// toRunResponse maps a pipeline.Result to its JSON representation.
func toRunResponse(r *pipeline.Result) RunResponse {
	pruned := r.Pruned
	if pruned == nil {
		pruned = []string{}
	}
	return RunResponse{
		RunID:           r.RunID,
		Status:          string(r.Status),
		StartedAt:       r.StartedAt.UTC().Format(time.RFC3339),
		FinishedAt:      r.FinishedAt.UTC().Format(time.RFC3339),
		DurationMS:      r.Duration().Milliseconds(),
		Routes:          r.Routes,
		FetchAttempts:   r.FetchAttempts,
		FetchError:      errString(r.FetchErr),
		FilesWritten:    r.FilesWritten,
		FilesCreated:    r.FilesCreated,
		FilesUpdated:    r.FilesUpdated,
		FilesUnchanged:  r.FilesUnchanged,
		Pruned:          pruned,
		Collisions:      r.Collisions,
		Skipped:         r.Skipped,
		Committed:       r.Committed,
		CommitSHA:       r.CommitSHA,
		PublishEnabled:  r.PublishEnabled,
		Pushed:          r.Pushed,
		PublishAttempts: r.PublishAttempts,
		PublishError:    errString(r.PublishErr),
		Error:           errString(r.Err),
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

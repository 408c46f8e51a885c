package pipeline

import (
	"context"
	"time"
)

// Status is the overall outcome of a run.
type Status string

const (
	// StatusSuccess: routes fetched, files committed and, if enabled, pushed.
	StatusSuccess Status = "success"
	// StatusDegraded: the inventory endpoint was unavailable; the run went
	// ahead with zero routes.
	StatusDegraded Status = "degraded"
	// StatusPublishFailed: the commit exists locally but the push failed.
	StatusPublishFailed Status = "publish_failed"
	// StatusFailed: a fatal error stopped the run.
	StatusFailed Status = "failed"
)

// Result describes one pipeline run.
type Result struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     Status

	// Fetch
	Routes        int
	FetchAttempts int
	FetchErr      error

	// Synthesis
	FilesWritten   int
	FilesCreated   int
	FilesUpdated   int
	FilesUnchanged int
	Pruned         []string
	Collisions     int
	Skipped        int

	// Repository
	Committed bool
	CommitSHA string

	// Publish
	PublishEnabled  bool
	Pushed          bool
	PublishAttempts int
	PublishErr      error

	// Err is the fatal error when Status is StatusFailed.
	Err error
}

// Duration returns how long the run took.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ExitCode maps the status to the process exit code of `alertsync run`.
func (r *Result) ExitCode() int {
	switch r.Status {
	case StatusSuccess:
		return 0
	case StatusPublishFailed:
		return 2
	case StatusDegraded:
		return 3
	default:
		return 1
	}
}

// Observer receives every finished run, successful or not.
type Observer interface {
	Observe(ctx context.Context, res *Result)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, res *Result)

// Observe calls f.
func (f ObserverFunc) Observe(ctx context.Context, res *Result) {
	f(ctx, res)
}

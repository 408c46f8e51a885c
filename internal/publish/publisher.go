package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/gitrepo"
)

// Pusher pushes a local branch to a remote. *gitrepo.Repo implements it.
type Pusher interface {
	Push(ctx context.Context, remote, branch string) error
}

// Result is the outcome of one Publish call.
type Result struct {
	Pushed   bool
	Attempts int

	// Permanent is true when the last failure was classified as not worth
	// retrying (rejection, authentication, unknown remote).
	Permanent bool
	Err       error
}

// Publisher pushes the alert branch with bounded retries.
type Publisher struct {
	cfg        config.PublishConfig
	remote     string
	branch     string
	newBackOff func() backoff.BackOff
}

// New returns a Publisher pushing branch to remote.
func New(cfg config.PublishConfig, remote, branch string) *Publisher {
	return &Publisher{
		cfg:    cfg,
		remote: remote,
		branch: branch,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = cfg.InitialBackoff
			b.MaxInterval = cfg.MaxBackoff
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Publish pushes the branch. It never returns an error: failures are logged
// and reported in the Result so the caller can finish the run. Each attempt
// is bounded by the configured timeout; transient failures are retried up to
// the configured number of attempts.
func (p *Publisher) Publish(ctx context.Context, pusher Pusher) *Result {
	res := &Result{}

	op := func() error {
		res.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()

		err := pusher.Push(attemptCtx, p.remote, p.branch)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || IsPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(p.newBackOff(), uint64(p.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		slog.Warn("publish: push failed, will retry",
			"remote", p.remote, "branch", p.branch, "attempt", res.Attempts,
			"err", err, "retry_in", wait)
	})
	if err != nil {
		res.Permanent = IsPermanent(err)
		res.Err = fmt.Errorf("publish: push %s to %s: %w", p.branch, p.remote, err)
		slog.Error("publish: giving up, branch stays ahead locally",
			"remote", p.remote, "branch", p.branch, "attempts", res.Attempts,
			"permanent", res.Permanent, "err", err)
		return res
	}

	res.Pushed = true
	slog.Info("publish: branch pushed",
		"remote", p.remote, "branch", p.branch, "attempts", res.Attempts)
	return res
}

// permanentMarkers are git output fragments for failures a retry cannot fix.
var permanentMarkers = []string{
	"[rejected]",
	"[remote rejected]",
	"non-fast-forward",
	"fetch first",
	"authentication failed",
	"permission denied",
	"could not read username",
	"repository not found",
	"does not appear to be a git repository",
	"does not match any",
}

// IsPermanent reports whether a push error should not be retried.
func IsPermanent(err error) bool {
	var cmdErr *gitrepo.CommandError
	if !errors.As(err, &cmdErr) {
		return false
	}
	out := strings.ToLower(cmdErr.Output)
	for _, m := range permanentMarkers {
		if strings.Contains(out, m) {
			return true
		}
	}
	return false
}

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/inventory"
	"github.com/alertsync/alertsync/internal/publish"
	"github.com/alertsync/alertsync/internal/reconcile"
	"github.com/alertsync/alertsync/internal/synth"
)

// Pipeline runs fetch, synthesis, commit and publish for one configuration.
type Pipeline struct {
	cfg       *config.Config
	fetcher   *inventory.Fetcher
	publisher *publish.Publisher
	observers []Observer
}

// New builds a Pipeline. Observers are called in order after every run.
func New(cfg *config.Config, observers ...Observer) (*Pipeline, error) {
	fetcher, err := inventory.New(cfg.Inventory)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		publisher: publish.New(cfg.Publish, cfg.Repository.RemoteName, cfg.Repository.Branch),
		observers: observers,
	}, nil
}

// Run executes one run. The returned Result is never nil; on a fatal error
// it has StatusFailed and the error is also returned.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	res := &Result{
		RunID:          uuid.NewString(),
		StartedAt:      time.Now().UTC(),
		PublishEnabled: p.cfg.Publish.IsEnabled(),
	}
	log := slog.With("run_id", res.RunID)
	log.Info("pipeline: run started", "url", p.cfg.Inventory.URL, "branch", p.cfg.Repository.Branch)

	err := p.run(ctx, res, log)
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		res.Err = err
		res.Status = StatusFailed
		log.Error("pipeline: run failed", "err", err, "duration", res.Duration())
	} else {
		res.Status = status(res)
		log.Info("pipeline: run finished",
			"status", res.Status,
			"routes", res.Routes,
			"files", res.FilesWritten,
			"committed", res.Committed,
			"pushed", res.Pushed,
			"duration", res.Duration())
	}

	for _, o := range p.observers {
		o.Observe(ctx, res)
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result, log *slog.Logger) error {
	lock, err := reconcile.AcquireLock(p.cfg.Repository.LockPath(), p.cfg.Repository.LockStaleAfter)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			log.Warn("pipeline: release lock", "err", err)
		}
	}()

	inv, err := p.fetcher.Fetch(ctx)
	if err != nil {
		return err
	}
	res.Routes = len(inv.Routes)
	res.FetchAttempts = inv.Attempts
	res.FetchErr = inv.Err

	plan := synth.NewPlan(inv.Routes)
	res.Collisions = len(plan.Collisions)
	res.Skipped = len(plan.Skipped)
	if err := plan.Check(p.cfg.Output.OnCollision == config.CollisionOverwrite); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	rec := reconcile.New(p.cfg.Repository, p.cfg.Commit)
	if err := rec.Prepare(ctx); err != nil {
		return err
	}

	wres, err := synth.NewWriter(p.cfg.OutputPath()).Write(plan)
	if wres != nil {
		res.FilesWritten = wres.Written
		res.FilesCreated = wres.Created
		res.FilesUpdated = wres.Updated
		res.FilesUnchanged = wres.Unchanged
	}
	if err != nil {
		return err
	}

	if p.cfg.Output.PruneOrphans {
		if inv.Degraded() {
			log.Warn("pipeline: inventory degraded, skipping prune")
		} else {
			removed, err := synth.Prune(p.cfg.OutputPath(), plan.Keys(), p.cfg.Output.Keep)
			res.Pruned = removed
			if err != nil {
				return err
			}
		}
	}

	cres, err := rec.Commit(ctx)
	if err != nil {
		return err
	}
	res.Committed = cres.Committed
	res.CommitSHA = cres.SHA

	if !res.PublishEnabled {
		log.Info("pipeline: publishing disabled")
		return nil
	}
	if rec.Unborn() {
		log.Info("pipeline: branch has no commits, nothing to publish")
		return nil
	}
	// Pushing even without a new commit delivers commits left by a run whose
	// publish failed.
	pres := p.publisher.Publish(ctx, rec.Repo())
	res.Pushed = pres.Pushed
	res.PublishAttempts = pres.Attempts
	res.PublishErr = pres.Err
	return nil
}

func status(res *Result) Status {
	switch {
	case res.PublishErr != nil:
		return StatusPublishFailed
	case res.FetchErr != nil:
		return StatusDegraded
	default:
		return StatusSuccess
	}
}

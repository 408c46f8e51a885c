package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/alertsync/alertsync/internal/config"
	"github.com/alertsync/alertsync/internal/gitrepo"
)

// State is the reconciler's view of the local working copy.
type State int

const (
	// Absent means no working copy exists at the local path yet.
	Absent State = iota
	// Detached means a working copy exists but HEAD is not on the target branch.
	Detached
	// OnTargetBranch means HEAD is on the target branch.
	OnTargetBranch
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Detached:
		return "detached"
	case OnTargetBranch:
		return "on_target_branch"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CommitResult describes the outcome of Commit.
type CommitResult struct {
	// Committed is false when nothing was staged and empty commits are off.
	Committed bool
	SHA       string

	// Files lists the paths staged for the commit, relative to the working copy.
	Files []string
}

// Reconciler owns the local working copy for the duration of a run.
// It is not safe for concurrent use; callers serialize runs with AcquireLock.
type Reconciler struct {
	repoCfg   config.RepositoryConfig
	commitCfg config.CommitConfig

	repo   *gitrepo.Repo
	state  State
	unborn bool
}

// New creates a Reconciler. No filesystem or git work happens until Prepare.
func New(repoCfg config.RepositoryConfig, commitCfg config.CommitConfig) *Reconciler {
	return &Reconciler{repoCfg: repoCfg, commitCfg: commitCfg, state: Absent}
}

// State returns the current repository state.
func (r *Reconciler) State() State {
	return r.state
}

// Repo returns the working copy acquired by Prepare, or nil before it.
func (r *Reconciler) Repo() *gitrepo.Repo {
	return r.repo
}

// Unborn reports whether the target branch has no commits yet.
func (r *Reconciler) Unborn() bool {
	return r.unborn
}

// Prepare acquires the working copy, puts HEAD on the target branch and
// hard-resets the index and working tree to its tip. After Prepare the state
// is OnTargetBranch.
func (r *Reconciler) Prepare(ctx context.Context) error {
	if err := r.acquire(ctx); err != nil {
		return err
	}
	if err := r.selectBranch(ctx); err != nil {
		return err
	}

	has, err := r.repo.HasCommits(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: inspect HEAD: %w", err)
	}
	r.unborn = !has
	if r.unborn {
		slog.Info("reconcile: target branch is unborn, skipping reset", "branch", r.repoCfg.Branch)
		return nil
	}

	if err := r.repo.ResetHard(ctx); err != nil {
		return fmt.Errorf("reconcile: reset to %s: %w", r.repoCfg.Branch, err)
	}
	slog.Debug("reconcile: working tree reset", "branch", r.repoCfg.Branch)
	return nil
}

// acquire clones the remote when the local path is absent and opens it
// otherwise. The local copy is reused as is; nothing is fetched.
func (r *Reconciler) acquire(ctx context.Context) error {
	path := r.repoCfg.LocalPath

	_, err := os.Stat(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("reconcile: cloning repository", "remote", r.repoCfg.RemoteURL, "path", path)
		repo, err := gitrepo.Clone(ctx, r.repoCfg.RemoteURL, path)
		if err != nil {
			return fmt.Errorf("reconcile: acquire: %w", err)
		}
		r.repo = repo
	case err != nil:
		return fmt.Errorf("reconcile: acquire: %w", err)
	default:
		repo, err := gitrepo.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("reconcile: acquire: %w", err)
		}
		r.repo = repo
		slog.Debug("reconcile: reusing working copy", "path", repo.Dir())
	}

	r.state = Detached
	return nil
}

func (r *Reconciler) selectBranch(ctx context.Context) error {
	branch := r.repoCfg.Branch
	if err := r.repo.ValidateBranchName(ctx, branch); err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}

	current, ok, err := r.repo.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("reconcile: read HEAD: %w", err)
	}
	if ok && current == branch {
		r.state = OnTargetBranch
		return nil
	}

	exists, err := r.repo.BranchExists(ctx, branch)
	if err != nil {
		return fmt.Errorf("reconcile: look up branch %s: %w", branch, err)
	}
	if !exists {
		has, err := r.repo.HasCommits(ctx)
		if err != nil {
			return fmt.Errorf("reconcile: inspect HEAD: %w", err)
		}
		// In an empty repository the branch is born by the first commit.
		if has {
			if err := r.repo.CreateBranch(ctx, branch); err != nil {
				return fmt.Errorf("reconcile: create branch %s: %w", branch, err)
			}
			slog.Info("reconcile: created branch", "branch", branch, "from", current)
		}
	}

	if err := r.repo.PointHEAD(ctx, branch); err != nil {
		return fmt.Errorf("reconcile: switch to %s: %w", branch, err)
	}
	r.state = OnTargetBranch
	return nil
}

// Commit stages every change in the working copy and records a commit with
// the configured message and identity. When nothing is staged the commit is
// skipped unless commit.allow_empty is set.
func (r *Reconciler) Commit(ctx context.Context) (*CommitResult, error) {
	if r.state != OnTargetBranch {
		return nil, fmt.Errorf("reconcile: commit in state %s", r.state)
	}

	if err := r.repo.AddAll(ctx); err != nil {
		return nil, fmt.Errorf("reconcile: stage: %w", err)
	}
	files, err := r.repo.StagedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconcile: list staged: %w", err)
	}

	res := &CommitResult{Files: files}
	if len(files) == 0 && !r.commitCfg.AllowEmpty {
		slog.Info("reconcile: nothing to commit", "branch", r.repoCfg.Branch)
		return res, nil
	}

	id := gitrepo.Identity{Name: r.commitCfg.AuthorName, Email: r.commitCfg.AuthorEmail}
	sha, err := r.repo.Commit(ctx, r.commitCfg.Message, id, r.commitCfg.AllowEmpty)
	if err != nil {
		return nil, fmt.Errorf("reconcile: commit: %w", err)
	}
	r.unborn = false
	res.Committed = true
	res.SHA = sha

	slog.Info("reconcile: committed",
		"branch", r.repoCfg.Branch, "sha", sha, "files", len(files))
	return res, nil
}

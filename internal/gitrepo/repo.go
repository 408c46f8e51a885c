package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNotRepository is returned by Open when dir is not the top level of a
// git working tree.
var ErrNotRepository = errors.New("not a git repository")

// CommandError describes a failed git invocation.
type CommandError struct {
	Args   []string
	Output string
	Err    error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns the git process exit code, or -1 if it did not exit.
func (e *CommandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// Identity is the author and committer recorded on commits.
type Identity struct {
	Name  string
	Email string
}

// Repo is a git working copy driven through the git CLI.
type Repo struct {
	dir string
}

// Clone clones url into dir and returns the new working copy.
func Clone(ctx context.Context, url, dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: resolve %q: %w", dir, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("gitrepo: create parent of %q: %w", abs, err)
	}
	if _, err := run(ctx, filepath.Dir(abs), "clone", "--quiet", "--", url, abs); err != nil {
		return nil, fmt.Errorf("gitrepo: clone: %w", err)
	}
	return &Repo{dir: abs}, nil
}

// Open returns the working copy rooted at dir. A directory that merely sits
// inside some other repository is rejected.
func Open(ctx context.Context, dir string) (*Repo, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("gitrepo: resolve %q: %w", dir, err)
	}
	out, err := run(ctx, abs, "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("gitrepo: open %s: %w: %v", abs, ErrNotRepository, err)
	}
	if !sameDir(strings.TrimSpace(out), abs) {
		return nil, fmt.Errorf("gitrepo: open %s: %w (enclosing repository is %s)",
			abs, ErrNotRepository, strings.TrimSpace(out))
	}
	return &Repo{dir: abs}, nil
}

// Dir returns the absolute path of the working copy.
func (r *Repo) Dir() string {
	return r.dir
}

// CurrentBranch returns the branch HEAD points at. ok is false when HEAD is
// detached.
func (r *Repo) CurrentBranch(ctx context.Context) (name string, ok bool, err error) {
	out, err := r.run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if exitCode(err) == 1 {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(out), true, nil
}

// HasCommits reports whether HEAD resolves to a commit. It is false in a
// freshly initialized or cloned-empty repository.
func (r *Repo) HasCommits(ctx context.Context) (bool, error) {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	if exitCode(err) == 1 {
		return false, nil
	}
	return err == nil, err
}

// BranchExists reports whether a local branch exists.
func (r *Repo) BranchExists(ctx context.Context, name string) (bool, error) {
	_, err := r.run(ctx, "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	if exitCode(err) == 1 {
		return false, nil
	}
	return err == nil, err
}

// ValidateBranchName checks name with git check-ref-format.
func (r *Repo) ValidateBranchName(ctx context.Context, name string) error {
	if strings.HasPrefix(name, "-") {
		return fmt.Errorf("gitrepo: invalid branch name %q", name)
	}
	if _, err := r.run(ctx, "check-ref-format", "--branch", name); err != nil {
		return fmt.Errorf("gitrepo: invalid branch name %q: %w", name, err)
	}
	return nil
}

// CreateBranch creates a branch at the current HEAD commit.
func (r *Repo) CreateBranch(ctx context.Context, name string) error {
	_, err := r.run(ctx, "branch", "--", name)
	return err
}

// PointHEAD makes HEAD a symbolic reference to the branch without touching
// the index or working tree. The branch does not need to exist yet.
func (r *Repo) PointHEAD(ctx context.Context, branch string) error {
	_, err := r.run(ctx, "symbolic-ref", "HEAD", "refs/heads/"+branch)
	return err
}

// ResetHard makes the index and working tree match HEAD. Untracked files are
// kept.
func (r *Repo) ResetHard(ctx context.Context) error {
	_, err := r.run(ctx, "reset", "--hard", "--quiet", "HEAD")
	return err
}

// AddAll stages every change in the working tree, including deletions.
func (r *Repo) AddAll(ctx context.Context) error {
	_, err := r.run(ctx, "add", "--all")
	return err
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Repo) HasStagedChanges(ctx context.Context) (bool, error) {
	_, err := r.run(ctx, "diff", "--cached", "--quiet")
	if exitCode(err) == 1 {
		return true, nil
	}
	return false, err
}

// StagedFiles lists paths staged relative to HEAD.
func (r *Repo) StagedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// Commit records the index as a new commit and returns its SHA. With
// allowEmpty a commit is created even when the tree equals the parent's.
func (r *Repo) Commit(ctx context.Context, message string, id Identity, allowEmpty bool) (string, error) {
	args := []string{
		"-c", "user.name=" + id.Name,
		"-c", "user.email=" + id.Email,
		"-c", "commit.gpgsign=false",
		"commit", "--quiet", "-m", message,
	}
	if allowEmpty {
		args = append(args, "--allow-empty")
	}
	if _, err := r.run(ctx, args...); err != nil {
		return "", err
	}
	return r.HeadSHA(ctx)
}

// HeadSHA returns the commit HEAD points at.
func (r *Repo) HeadSHA(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// CommitCount returns the number of commits reachable from HEAD, 0 for an
// unborn branch.
func (r *Repo) CommitCount(ctx context.Context) (int, error) {
	has, err := r.HasCommits(ctx)
	if err != nil || !has {
		return 0, err
	}
	out, err := r.run(ctx, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("gitrepo: parse commit count %q: %w", out, err)
	}
	return n, nil
}

// Push pushes the local branch to the same-named branch on remote.
func (r *Repo) Push(ctx context.Context, remote, branch string) error {
	ref := "refs/heads/" + branch
	_, err := r.run(ctx, "push", "--porcelain", remote, ref+":"+ref)
	return err
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	return run(ctx, r.dir, args...)
}

// run executes git in dir. Prompts are disabled so a missing credential
// fails instead of blocking, and messages are forced to English so callers
// can classify them.
func run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")

	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), &CommandError{Args: args, Output: string(output), Err: err}
	}
	return string(output), nil
}

func exitCode(err error) int {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.ExitCode()
	}
	return -1
}

func sameDir(a, b string) bool {
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		ra = a
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		rb = b
	}
	return filepath.Clean(ra) == filepath.Clean(rb)
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

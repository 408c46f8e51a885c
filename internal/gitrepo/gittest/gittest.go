// Package gittest builds throwaway git repositories for tests.
package gittest

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// RequireGit skips the test when no git binary is available.
func RequireGit(t testing.TB) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// Run executes git in dir with a fixed identity and fails the test on error.
func Run(t testing.TB, dir string, args ...string) string {
	t.Helper()
	full := append([]string{
		"-c", "user.name=Test User",
		"-c", "user.email=test@example.com",
		"-c", "commit.gpgsign=false",
		"-c", "init.defaultBranch=main",
	}, args...)
	cmd := exec.Command("git", full...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return strings.TrimSpace(string(out))
}

// NewRemote creates a bare repository whose main branch holds files, and
// returns its path. With no files the remote is empty (no commits).
func NewRemote(t testing.TB, files map[string]string) string {
	t.Helper()
	RequireGit(t)

	root := t.TempDir()
	bare := filepath.Join(root, "remote.git")
	Run(t, root, "init", "--quiet", "--bare", bare)
	Run(t, bare, "symbolic-ref", "HEAD", "refs/heads/main")
	if len(files) == 0 {
		return bare
	}

	seed := filepath.Join(root, "seed")
	Run(t, root, "init", "--quiet", seed)
	Run(t, seed, "symbolic-ref", "HEAD", "refs/heads/main")
	for name, content := range files {
		path := filepath.Join(seed, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	Run(t, seed, "add", "--all")
	Run(t, seed, "commit", "--quiet", "-m", "initial commit")
	Run(t, seed, "push", "--quiet", bare, "main:main")
	return bare
}

// CommitCount returns the number of commits on ref in the repository at dir.
func CommitCount(t testing.TB, dir, ref string) int {
	t.Helper()
	n, err := strconv.Atoi(Run(t, dir, "rev-list", "--count", ref))
	if err != nil {
		t.Fatalf("parse commit count: %v", err)
	}
	return n
}

// RefSHA returns the commit ref resolves to, or "" when it does not exist.
func RefSHA(t testing.TB, dir, ref string) string {
	t.Helper()
	cmd := exec.Command("git", "rev-parse", "--verify", "--quiet", ref)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// ShowFile returns the content of path at ref.
func ShowFile(t testing.TB, dir, ref, path string) string {
	t.Helper()
	return Run(t, dir, "show", ref+":"+path)
}

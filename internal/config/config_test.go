package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
inventory:
  url: "http://localhost:8080/actuator/mappings"
repository:
  remote_url: "https://git.example.com/ops/alerts.git"
`

func TestLoad_Valid(t *testing.T) {
	yaml := `
inventory:
  url: "https://app.internal:8443/actuator/mappings"
  timeout: 5s
  max_attempts: 4
  auth:
    mode: bearer
    token_env: ACTUATOR_TOKEN
output:
  dir: monitor
  prune_orphans: true
  keep: ["manual/**"]
  on_collision: error
repository:
  remote_url: "git@git.example.com:ops/alerts.git"
  branch: feature/create-alarms
  local_path: /var/lib/alertsync/repo
commit:
  message: "feat: created alarms for all endpoints"
  allow_empty: true
`
	cfg := loadFromString(t, yaml)

	if cfg.Inventory.Timeout != 5*time.Second {
		t.Errorf("timeout: got %v", cfg.Inventory.Timeout)
	}
	if cfg.Inventory.MaxAttempts != 4 {
		t.Errorf("max_attempts: got %d", cfg.Inventory.MaxAttempts)
	}
	if cfg.Inventory.Auth.Mode != "bearer" {
		t.Errorf("auth mode: got %q", cfg.Inventory.Auth.Mode)
	}
	if !cfg.Output.PruneOrphans || cfg.Output.OnCollision != CollisionError {
		t.Errorf("output: got %+v", cfg.Output)
	}
	if cfg.Repository.Branch != "feature/create-alarms" {
		t.Errorf("branch: got %q", cfg.Repository.Branch)
	}
	if got, want := cfg.OutputPath(), "/var/lib/alertsync/repo/monitor"; got != want {
		t.Errorf("OutputPath(): got %q, want %q", got, want)
	}
	if !cfg.Commit.AllowEmpty {
		t.Error("allow_empty: got false")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, minimalYAML)

	if cfg.Inventory.Context != DefaultContext || cfg.Inventory.Servlet != DefaultServlet {
		t.Errorf("context/servlet defaults: got %q/%q", cfg.Inventory.Context, cfg.Inventory.Servlet)
	}
	if cfg.Inventory.Timeout != DefaultFetchTimeout {
		t.Errorf("default timeout: got %v, want %v", cfg.Inventory.Timeout, DefaultFetchTimeout)
	}
	if cfg.Repository.Branch != DefaultBranch {
		t.Errorf("default branch: got %q, want %q", cfg.Repository.Branch, DefaultBranch)
	}
	if cfg.Repository.RemoteName != DefaultRemoteName {
		t.Errorf("default remote: got %q", cfg.Repository.RemoteName)
	}
	if cfg.Output.OnCollision != CollisionOverwrite {
		t.Errorf("default on_collision: got %q", cfg.Output.OnCollision)
	}
	if cfg.Output.PruneOrphans {
		t.Error("prune_orphans should default to false")
	}
	if cfg.Commit.AllowEmpty {
		t.Error("allow_empty should default to false")
	}
	if !cfg.Publish.IsEnabled() {
		t.Error("publish should default to enabled")
	}
	if cfg.Commit.Message != DefaultCommitMessage {
		t.Errorf("default commit message: got %q", cfg.Commit.Message)
	}
	if got, want := cfg.Repository.LockPath(), "repo-alertas.lock"; got != want {
		t.Errorf("LockPath(): got %q, want %q", got, want)
	}
}

func TestLoad_PublishDisabled(t *testing.T) {
	cfg := loadFromString(t, minimalYAML+"publish:\n  enabled: false\n")
	if cfg.Publish.IsEnabled() {
		t.Error("publish.enabled: false was ignored")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing url", `
repository:
  remote_url: "x"
`},
		{"non-http url", `
inventory:
  url: "ftp://host/mappings"
repository:
  remote_url: "x"
`},
		{"missing remote", `
inventory:
  url: "http://localhost/actuator/mappings"
`},
		{"unknown auth mode", `
inventory:
  url: "http://localhost/actuator/mappings"
  auth:
    mode: magictoken
repository:
  remote_url: "x"
`},
		{"apikey without header", `
inventory:
  url: "http://localhost/actuator/mappings"
  auth:
    mode: apikey
    key_env: K
repository:
  remote_url: "x"
`},
		{"output escapes working copy", minimalYAML + `
output:
  dir: ../elsewhere
`},
		{"unknown collision policy", minimalYAML + `
output:
  on_collision: merge
`},
		{"unknown notify status", minimalYAML + `
notify:
  on: [sometimes]
`},
		{"unknown webhook type", minimalYAML + `
notify:
  webhooks:
    - type: pagerduty
      url_env: PD_URL
`},
		{"empty branch", minimalYAML + `
  branch: ""
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := loadStringErr(t, tc.yaml); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAuthConfig_Secrets(t *testing.T) {
	t.Setenv("TEST_API_KEY", "supersecret")
	t.Setenv("TEST_BEARER_TOKEN", "mytoken")
	t.Setenv("TEST_PASSWORD", "hunter2")
	a := AuthConfig{KeyEnv: "TEST_API_KEY", TokenEnv: "TEST_BEARER_TOKEN", PasswordEnv: "TEST_PASSWORD"}

	if got := a.Key(); got != "supersecret" {
		t.Errorf("Key(): got %q", got)
	}
	if got := a.Token(); got != "mytoken" {
		t.Errorf("Token(): got %q", got)
	}
	if got := a.Password(); got != "hunter2" {
		t.Errorf("Password(): got %q", got)
	}
	if got := (AuthConfig{}).Key(); got != "" {
		t.Errorf("Key() with no KeyEnv: got %q, want empty", got)
	}
}

func TestServerAuthConfig_EffectiveHeader(t *testing.T) {
	if got := (ServerAuthConfig{}).EffectiveHeader(); got != DefaultAPIKeyHeader {
		t.Errorf("EffectiveHeader(): got %q", got)
	}
	if got := (ServerAuthConfig{Header: "X-Token"}).EffectiveHeader(); got != "X-Token" {
		t.Errorf("EffectiveHeader(): got %q", got)
	}
}

func TestWebhookConfig_URL(t *testing.T) {
	t.Setenv("TEAMS_URL", "https://teams.example.com/webhook")
	w := WebhookConfig{Type: "teams", URLEnv: "TEAMS_URL"}
	if got := w.URL(); got != "https://teams.example.com/webhook" {
		t.Errorf("URL(): got %q", got)
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alertsync.yaml")
	if err := os.WriteFile(path, []byte(minimalYAML), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *Config, 4)
	go func() {
		_ = Watch(ctx, path, func(c *Config) { changed <- c })
	}()

	updated := minimalYAML + "  branch: reloaded\n"
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changed:
			if c.Repository.Branch != "reloaded" {
				t.Fatalf("reloaded branch: got %q", c.Repository.Branch)
			}
			return
		case <-tick.C:
			// The watcher may not be registered yet; keep rewriting until it fires.
			if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("Watch did not report the change")
		}
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alertsync.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

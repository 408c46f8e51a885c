package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultContext        = "application"
	DefaultServlet        = "dispatcherServlet"
	DefaultFetchTimeout   = 10 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Second
	DefaultOutputDir      = "alerts"
	DefaultRemoteName     = "origin"
	DefaultBranch         = "auto-alerts-branch"
	DefaultLocalPath      = "./repo-alertas"
	DefaultLockStaleAfter = 1 * time.Hour
	DefaultCommitMessage  = "Automated alerts for new endpoints"
	DefaultAuthorName     = "alertsync"
	DefaultAuthorEmail    = "alertsync@localhost"
	DefaultPushTimeout    = 2 * time.Minute
	DefaultSchedule       = "@every 15m"
	DefaultListen         = ":8090"
	DefaultHistory        = 50
	DefaultAPIKeyHeader   = "X-API-Key"
)

// Collision policies for output.on_collision.
const (
	CollisionOverwrite = "overwrite"
	CollisionError     = "error"
)

// Config is the top-level alertsync configuration.
// Fields map 1:1 to alertsync.example.yaml.
type Config struct {
	Inventory  InventoryConfig  `yaml:"inventory"`
	Output     OutputConfig     `yaml:"output"`
	Repository RepositoryConfig `yaml:"repository"`
	Commit     CommitConfig     `yaml:"commit"`
	Publish    PublishConfig    `yaml:"publish"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Server     ServerConfig     `yaml:"server"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Notify     NotifyConfig     `yaml:"notify"`
}

// InventoryConfig describes the route introspection endpoint.
type InventoryConfig struct {
	// URL is the full URL of the actuator mappings endpoint.
	URL string `yaml:"url"`

	// Context and Servlet name the two map levels of the mappings document:
	// contexts.<Context>.mappings.dispatcherServlets.<Servlet>.
	Context string `yaml:"context"`
	Servlet string `yaml:"servlet"`

	// Timeout bounds a single HTTP attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxAttempts is the total number of attempts for transient failures.
	MaxAttempts int `yaml:"max_attempts"`

	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`

	Auth AuthConfig `yaml:"auth"`
	TLS  TLSConfig  `yaml:"tls"`
}

// AuthConfig specifies the authentication mode for the introspection endpoint.
type AuthConfig struct {
	// Mode is one of: mtls | apikey | bearer | basic | none.
	Mode string `yaml:"mode"`

	// mTLS fields: used when Mode == "mtls".
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
	CAFile   string `yaml:"ca_file"`

	// API key fields: used when Mode == "apikey".
	// Header is the HTTP header name to send the key in.
	Header string `yaml:"header"`
	// KeyEnv is the name of the environment variable that holds the key value.
	KeyEnv string `yaml:"key_env"`

	// TokenEnv holds the bearer token variable name (Mode == "bearer").
	TokenEnv string `yaml:"token_env"`

	// Basic auth fields: used when Mode == "basic".
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
}

// Key returns the API key value resolved from the environment.
// Returns empty string if KeyEnv is unset or the variable is not found.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// Token returns the bearer token value resolved from the environment.
func (a AuthConfig) Token() string {
	if a.TokenEnv == "" {
		return ""
	}
	return os.Getenv(a.TokenEnv)
}

// Password returns the basic-auth password resolved from the environment.
func (a AuthConfig) Password() string {
	if a.PasswordEnv == "" {
		return ""
	}
	return os.Getenv(a.PasswordEnv)
}

// TLSConfig holds TLS dial options for the introspection endpoint.
type TLSConfig struct {
	// InsecureSkipVerify disables TLS certificate verification.
	// Only use this for internal CAs in development environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// OutputConfig controls where and how alert definitions are written.
type OutputConfig struct {
	// Dir is the alert directory. Relative paths are resolved against
	// repository.local_path; the result must stay inside the working copy.
	Dir string `yaml:"dir"`

	// PruneOrphans deletes alert files whose route no longer exists.
	PruneOrphans bool `yaml:"prune_orphans"`

	// Keep lists doublestar patterns (relative to Dir) that pruning never removes.
	Keep []string `yaml:"keep"`

	// OnCollision is one of: overwrite | error.
	OnCollision string `yaml:"on_collision"`
}

// RepositoryConfig locates the alert-definitions repository.
type RepositoryConfig struct {
	RemoteURL  string `yaml:"remote_url"`
	RemoteName string `yaml:"remote_name"`
	Branch     string `yaml:"branch"`
	LocalPath  string `yaml:"local_path"`

	// LockStaleAfter is the age after which a leftover run lock is taken over.
	LockStaleAfter time.Duration `yaml:"lock_stale_after"`
}

// LockPath returns the run lock file, a sibling of the working copy.
func (r RepositoryConfig) LockPath() string {
	return filepath.Clean(r.LocalPath) + ".lock"
}

// CommitConfig controls the commit created by each run.
type CommitConfig struct {
	Message string `yaml:"message"`

	// AllowEmpty commits even when nothing changed, giving one commit per run.
	AllowEmpty bool `yaml:"allow_empty"`

	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// PublishConfig controls pushing the branch to the remote.
type PublishConfig struct {
	// Enabled is a pointer so an absent key defaults to true.
	Enabled *bool `yaml:"enabled"`

	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// IsEnabled reports whether pushing is enabled.
func (p PublishConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ScheduleConfig is used by the serve command.
type ScheduleConfig struct {
	// Spec is a cron expression, an @every/@hourly descriptor or a Go duration.
	Spec string `yaml:"spec"`

	// RunOnStart triggers one run immediately when serve starts.
	RunOnStart bool `yaml:"run_on_start"`
}

// ServerConfig holds the serve-mode status API settings.
type ServerConfig struct {
	Listen string `yaml:"listen"`

	// History is how many run reports are kept in memory.
	History int `yaml:"history"`

	Auth ServerAuthConfig `yaml:"auth"`
}

// ServerAuthConfig configures status API authentication.
type ServerAuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// Header is the request header carrying the key. Defaults to X-API-Key.
	Header string `yaml:"header"`

	// KeyEnv is the name of the environment variable holding the expected API key.
	KeyEnv string `yaml:"key_env"`
}

// Key returns the server API key resolved from the environment.
func (a ServerAuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns Header or the default header name.
func (a ServerAuthConfig) EffectiveHeader() string {
	if a.Header == "" {
		return DefaultAPIKeyHeader
	}
	return a.Header
}

// MetricsConfig controls run metrics export.
type MetricsConfig struct {
	// Textfile, when set, receives the metrics in Prometheus text format after
	// every run (for node_exporter's textfile collector).
	Textfile string `yaml:"textfile"`
}

// NotifyConfig holds run-report webhook targets.
type NotifyConfig struct {
	// On lists the run statuses that trigger delivery:
	// success | degraded | publish_failed | failed.
	On []string `yaml:"on"`

	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: teams | slack | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// OutputPath returns the absolute-or-relative alert directory, resolved
// against the working copy when Output.Dir is relative.
func (c *Config) OutputPath() string {
	if filepath.IsAbs(c.Output.Dir) {
		return filepath.Clean(c.Output.Dir)
	}
	return filepath.Join(c.Repository.LocalPath, c.Output.Dir)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Inventory: InventoryConfig{
			Context:        DefaultContext,
			Servlet:        DefaultServlet,
			Timeout:        DefaultFetchTimeout,
			MaxAttempts:    DefaultMaxAttempts,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
		Output: OutputConfig{
			Dir:         DefaultOutputDir,
			OnCollision: CollisionOverwrite,
		},
		Repository: RepositoryConfig{
			RemoteName:     DefaultRemoteName,
			Branch:         DefaultBranch,
			LocalPath:      DefaultLocalPath,
			LockStaleAfter: DefaultLockStaleAfter,
		},
		Commit: CommitConfig{
			Message:     DefaultCommitMessage,
			AuthorName:  DefaultAuthorName,
			AuthorEmail: DefaultAuthorEmail,
		},
		Publish: PublishConfig{
			Timeout:        DefaultPushTimeout,
			MaxAttempts:    DefaultMaxAttempts,
			InitialBackoff: DefaultInitialBackoff,
			MaxBackoff:     DefaultMaxBackoff,
		},
		Schedule: ScheduleConfig{
			Spec: DefaultSchedule,
		},
		Server: ServerConfig{
			Listen:  DefaultListen,
			History: DefaultHistory,
		},
	}
}

// validate checks required fields and structural constraints.
func validate(cfg *Config) error {
	inv := cfg.Inventory
	if inv.URL == "" {
		return fmt.Errorf("inventory.url is required")
	}
	if !strings.HasPrefix(inv.URL, "http://") && !strings.HasPrefix(inv.URL, "https://") {
		return fmt.Errorf("inventory.url must be an http(s) URL, got %q", inv.URL)
	}
	if inv.Context == "" || inv.Servlet == "" {
		return fmt.Errorf("inventory.context and inventory.servlet must not be empty")
	}
	if inv.Timeout <= 0 {
		return fmt.Errorf("inventory.timeout must be positive")
	}
	if inv.MaxAttempts <= 0 {
		return fmt.Errorf("inventory.max_attempts must be positive")
	}
	switch inv.Auth.Mode {
	case "mtls", "apikey", "bearer", "basic", "none", "":
	default:
		return fmt.Errorf("inventory.auth: unknown mode %q", inv.Auth.Mode)
	}
	if inv.Auth.Mode == "apikey" && inv.Auth.Header == "" {
		return fmt.Errorf("inventory.auth.header is required for apikey mode")
	}
	if inv.Auth.Mode == "mtls" && (inv.Auth.CertFile == "" || inv.Auth.KeyFile == "") {
		return fmt.Errorf("inventory.auth.cert_file and key_file are required for mtls mode")
	}

	repo := cfg.Repository
	if repo.RemoteURL == "" {
		return fmt.Errorf("repository.remote_url is required")
	}
	if repo.Branch == "" {
		return fmt.Errorf("repository.branch is required")
	}
	if repo.LocalPath == "" {
		return fmt.Errorf("repository.local_path is required")
	}
	if repo.LockStaleAfter <= 0 {
		return fmt.Errorf("repository.lock_stale_after must be positive")
	}

	if cfg.Output.Dir == "" {
		return fmt.Errorf("output.dir is required")
	}
	if err := withinDir(repo.LocalPath, cfg.OutputPath()); err != nil {
		return fmt.Errorf("output.dir: %w", err)
	}
	switch cfg.Output.OnCollision {
	case CollisionOverwrite, CollisionError:
	default:
		return fmt.Errorf("output.on_collision: unknown policy %q", cfg.Output.OnCollision)
	}

	if strings.TrimSpace(cfg.Commit.Message) == "" {
		return fmt.Errorf("commit.message is required")
	}
	if cfg.Commit.AuthorName == "" || cfg.Commit.AuthorEmail == "" {
		return fmt.Errorf("commit.author_name and commit.author_email are required")
	}

	if cfg.Publish.MaxAttempts <= 0 {
		return fmt.Errorf("publish.max_attempts must be positive")
	}
	if cfg.Publish.Timeout <= 0 {
		return fmt.Errorf("publish.timeout must be positive")
	}

	if cfg.Server.History <= 0 {
		return fmt.Errorf("server.history must be positive")
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth: unknown mode %q", cfg.Server.Auth.Mode)
	}

	for _, s := range cfg.Notify.On {
		switch s {
		case "success", "degraded", "publish_failed", "failed":
		default:
			return fmt.Errorf("notify.on: unknown status %q", s)
		}
	}
	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("notify.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}
	return nil
}

// withinDir returns an error unless target is base or lies beneath it.
func withinDir(base, target string) error {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", base, err)
	}
	absTarget, err := filepath.Abs(target)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", target, err)
	}
	if absTarget == absBase {
		return nil
	}
	if !strings.HasPrefix(absTarget, absBase+string(filepath.Separator)) {
		return fmt.Errorf("%q must be inside repository.local_path %q", target, base)
	}
	return nil
}

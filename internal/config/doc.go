// Package config loads and watches the alertsync configuration file.
//
// Top-level types:
//   - Config: full config tree parsed from YAML
//   - InventoryConfig: actuator url, context/servlet names, timeout, retry
//     budget, auth (mtls|apikey|bearer|basic|none) and tls options
//   - OutputConfig: alert directory, orphan pruning, keep globs, collision policy
//   - RepositoryConfig: remote url/name, target branch, local working copy, lock age
//   - CommitConfig, PublishConfig: commit identity/message, push retry budget
//   - ScheduleConfig, ServerConfig: used by the serve command only
//   - MetricsConfig, NotifyConfig: run observers
//
// Secrets never live in the file: *_env fields name environment variables,
// resolved lazily by Key(), Token(), Password() and URL().
//
// Load(path) reads the YAML file, applies defaults, then validates required
// fields and enums. Output.Dir must resolve inside Repository.LocalPath so
// generated files are always staged.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config. It re-adds the watch after every
// event to survive the rename→create pattern of atomic-save editors.
package config

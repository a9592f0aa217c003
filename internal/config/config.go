// Package config handles loading, validating, and writing the chainlog
// configuration from ~/.chainlog/config.yaml.
//
// The config defines:
//   - Digest algorithm for the hash chain
//   - Storage backend (daily JSONL files, SQLite, PostgreSQL, or in-memory)
//   - Redaction patterns applied to payloads before hashing
//   - Entry size limit, write retry policy, and retention window
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chainlog/chainlog/internal/audit"
)

// Duration reads and writes YAML as a Go duration string ("100ms", "2160h").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the top-level chainlog configuration. Loaded from config.yaml,
// with sensible defaults for fields that are not explicitly set.
type Config struct {
	Digest    string          `yaml:"digest"`
	Storage   StorageConfig   `yaml:"storage"`
	Redact    RedactConfig    `yaml:"redact"`
	Limits    LimitsConfig    `yaml:"limits"`
	Retry     RetryConfig     `yaml:"retry"`
	Retention RetentionConfig `yaml:"retention"`
}

// StorageConfig selects and parameterizes the persistence backend.
// Dir applies to the file and sqlite backends, DSN and MaxConns to postgres.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Dir      string `yaml:"dir"`
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// RedactConfig controls payload sanitization. Fields are case-insensitive
// glob patterns matched against map keys anywhere in a payload.
type RedactConfig struct {
	Fields   []string `yaml:"fields"`
	Marker   string   `yaml:"marker"`
	MaxDepth int      `yaml:"max_depth"`
}

// LimitsConfig bounds what a single entry may carry.
type LimitsConfig struct {
	MaxEntryBytes int `yaml:"max_entry_bytes"`
}

// RetryConfig shapes the bounded write retry: attempts total tries, with
// exponential backoff starting at BaseDelay.
type RetryConfig struct {
	Attempts  int      `yaml:"attempts"`
	BaseDelay Duration `yaml:"base_delay"`
}

// RetentionConfig sets how old an entry must be before it is reported as
// archive-eligible. Entries are never deleted by chainlog itself.
type RetentionConfig struct {
	Window Duration `yaml:"window"`
}

// Load reads and parses config.yaml from the given path.
// If the file doesn't exist, returns defaults (not an error).
// Invalid YAML or validation failures return an error.
func Load(path string) (*Config, error) {
	cfg := applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file, use defaults. Normal before `chainlog
			// init-config` creates the file.
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a default config.yaml with all fields populated and a
// comment header. Used by `chainlog init-config`.
func WriteDefault(path string) error {
	cfg := applyDefaults()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling default config: %w", err)
	}

	header := `# chainlog configuration
#
# digest:
#   Hash algorithm for the chain: sha256 (default) or sha512.
#   Changing this on an existing chain breaks verification of old entries.
#
# storage:
#   backend: file | sqlite | postgres | memory
#   dir:     data directory for the file and sqlite backends
#   dsn:     connection string for the postgres backend
#
# redact:
#   fields:    glob patterns for payload keys to redact (case-insensitive)
#   marker:    replacement value for redacted fields
#   max_depth: payload nesting ceiling; deeper subtrees are replaced whole
#
# limits:
#   max_entry_bytes: reject entries whose serialized form exceeds this
#
# retry:
#   attempts:   total write attempts before giving up
#   base_delay: first backoff delay, doubled per attempt
#
# retention:
#   window: age after which entries are reported archive-eligible

`
	return os.WriteFile(path, []byte(header+string(data)), 0o644)
}

// applyDefaults returns a Config with all fields set to their default values.
func applyDefaults() *Config {
	return &Config{
		Digest: "sha256",
		Storage: StorageConfig{
			Backend:  "file",
			Dir:      defaultDir(),
			MaxConns: 4,
		},
		Redact: RedactConfig{
			Fields:   append([]string(nil), audit.DefaultRedactFields...),
			Marker:   audit.DefaultRedactMarker,
			MaxDepth: audit.DefaultRedactDepth,
		},
		Limits: LimitsConfig{
			MaxEntryBytes: audit.DefaultMaxEntryBytes,
		},
		Retry: RetryConfig{
			Attempts:  audit.DefaultRetryAttempts,
			BaseDelay: Duration(audit.DefaultRetryBaseDelay),
		},
		Retention: RetentionConfig{
			Window: Duration(audit.DefaultRetentionWindow),
		},
	}
}

func defaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chainlog"
	}
	return home + "/.chainlog"
}

// validate checks the config for logical errors after parsing.
func validate(cfg *Config) error {
	switch cfg.Digest {
	case "sha256", "sha512":
	default:
		return fmt.Errorf("digest %q not supported (use sha256 or sha512)", cfg.Digest)
	}

	switch cfg.Storage.Backend {
	case "file", "sqlite", "memory":
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q not supported (use file, sqlite, postgres, or memory)", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend != "postgres" && cfg.Storage.Backend != "memory" && cfg.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty for the %s backend", cfg.Storage.Backend)
	}

	if cfg.Redact.MaxDepth < 1 {
		return fmt.Errorf("redact.max_depth must be at least 1")
	}
	if cfg.Limits.MaxEntryBytes < 1 {
		return fmt.Errorf("limits.max_entry_bytes must be positive")
	}
	if cfg.Retry.Attempts < 1 {
		return fmt.Errorf("retry.attempts must be at least 1")
	}
	if cfg.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must not be negative")
	}
	if cfg.Retention.Window < 0 {
		return fmt.Errorf("retention.window must not be negative")
	}

	return nil
}

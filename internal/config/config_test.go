package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestLoad_NonexistentFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load with nonexistent file should not error: %v", err)
	}

	// Verify defaults.
	if cfg.Digest != "sha256" {
		t.Errorf("default digest: expected sha256, got %q", cfg.Digest)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("default backend: expected file, got %q", cfg.Storage.Backend)
	}
	if cfg.Redact.Marker != "[REDACTED]" {
		t.Errorf("default marker: expected [REDACTED], got %q", cfg.Redact.Marker)
	}
	if len(cfg.Redact.Fields) == 0 {
		t.Error("default redact fields: expected a non-empty set")
	}
	if cfg.Limits.MaxEntryBytes != 256*1024 {
		t.Errorf("default max_entry_bytes: expected 262144, got %d", cfg.Limits.MaxEntryBytes)
	}
	if cfg.Retry.Attempts != 3 {
		t.Errorf("default retry attempts: expected 3, got %d", cfg.Retry.Attempts)
	}
	if time.Duration(cfg.Retry.BaseDelay) != 100*time.Millisecond {
		t.Errorf("default base delay: expected 100ms, got %v", time.Duration(cfg.Retry.BaseDelay))
	}
	if time.Duration(cfg.Retention.Window) != 90*24*time.Hour {
		t.Errorf("default retention: expected 2160h, got %v", time.Duration(cfg.Retention.Window))
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
digest: sha512
storage:
  backend: sqlite
  dir: /var/lib/chainlog
redact:
  fields: ["password", "*_secret"]
  marker: "<hidden>"
  max_depth: 4
limits:
  max_entry_bytes: 1024
retry:
  attempts: 5
  base_delay: 250ms
retention:
  window: 48h
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Digest != "sha512" {
		t.Errorf("digest: expected sha512, got %q", cfg.Digest)
	}
	if cfg.Storage.Backend != "sqlite" || cfg.Storage.Dir != "/var/lib/chainlog" {
		t.Errorf("storage: got %+v", cfg.Storage)
	}
	if len(cfg.Redact.Fields) != 2 || cfg.Redact.Fields[1] != "*_secret" {
		t.Errorf("redact fields: got %v", cfg.Redact.Fields)
	}
	if cfg.Redact.Marker != "<hidden>" || cfg.Redact.MaxDepth != 4 {
		t.Errorf("redact: got %+v", cfg.Redact)
	}
	if cfg.Limits.MaxEntryBytes != 1024 {
		t.Errorf("max_entry_bytes: expected 1024, got %d", cfg.Limits.MaxEntryBytes)
	}
	if cfg.Retry.Attempts != 5 || time.Duration(cfg.Retry.BaseDelay) != 250*time.Millisecond {
		t.Errorf("retry: got %+v", cfg.Retry)
	}
	if time.Duration(cfg.Retention.Window) != 48*time.Hour {
		t.Errorf("retention: expected 48h, got %v", time.Duration(cfg.Retention.Window))
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(`{{{invalid yaml`), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "retry:\n  base_delay: soon\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "soon") {
		t.Errorf("expected a duration parse error naming the value, got %v", err)
	}
}

func TestLoad_PartialOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "digest: sha512\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	// Digest overridden.
	if cfg.Digest != "sha512" {
		t.Errorf("digest: expected sha512, got %q", cfg.Digest)
	}
	// Everything else retains defaults.
	if cfg.Storage.Backend != "file" {
		t.Errorf("backend should default to file, got %q", cfg.Storage.Backend)
	}
	if cfg.Redact.Marker != "[REDACTED]" {
		t.Errorf("marker should keep its default, got %q", cfg.Redact.Marker)
	}
}

func TestValidate(t *testing.T) {
	valid := func(modify func(*Config)) Config {
		cfg := applyDefaults()
		modify(cfg)
		return *cfg
	}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     *applyDefaults(),
			wantErr: false,
		},
		{
			name:    "unsupported digest",
			cfg:     valid(func(c *Config) { c.Digest = "md5" }),
			wantErr: true,
		},
		{
			name:    "unsupported backend",
			cfg:     valid(func(c *Config) { c.Storage.Backend = "s3" }),
			wantErr: true,
		},
		{
			name: "postgres without dsn",
			cfg: valid(func(c *Config) {
				c.Storage.Backend = "postgres"
				c.Storage.DSN = ""
			}),
			wantErr: true,
		},
		{
			name: "postgres with dsn",
			cfg: valid(func(c *Config) {
				c.Storage.Backend = "postgres"
				c.Storage.DSN = "postgres://localhost/chainlog"
			}),
			wantErr: false,
		},
		{
			name: "file backend without dir",
			cfg: valid(func(c *Config) {
				c.Storage.Backend = "file"
				c.Storage.Dir = ""
			}),
			wantErr: true,
		},
		{
			name: "memory backend needs no dir",
			cfg: valid(func(c *Config) {
				c.Storage.Backend = "memory"
				c.Storage.Dir = ""
			}),
			wantErr: false,
		},
		{
			name:    "zero max depth",
			cfg:     valid(func(c *Config) { c.Redact.MaxDepth = 0 }),
			wantErr: true,
		},
		{
			name:    "zero entry limit",
			cfg:     valid(func(c *Config) { c.Limits.MaxEntryBytes = 0 }),
			wantErr: true,
		},
		{
			name:    "zero retry attempts",
			cfg:     valid(func(c *Config) { c.Retry.Attempts = 0 }),
			wantErr: true,
		},
		{
			name:    "negative retention",
			cfg:     valid(func(c *Config) { c.Retention.Window = Duration(-time.Hour) }),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validate(&tt.cfg)
			if tt.wantErr && err == nil {
				t.Error("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestWriteDefault_Roundtrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	// Verify file was created.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("file not created: %v", err)
	}

	// Load it back and verify defaults survive the trip.
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load after WriteDefault: %v", err)
	}

	if cfg.Digest != "sha256" {
		t.Errorf("roundtrip digest: expected sha256, got %q", cfg.Digest)
	}
	if time.Duration(cfg.Retention.Window) != 90*24*time.Hour {
		t.Errorf("roundtrip retention: expected 2160h, got %v", time.Duration(cfg.Retention.Window))
	}
	if time.Duration(cfg.Retry.BaseDelay) != 100*time.Millisecond {
		t.Errorf("roundtrip base delay: got %v", time.Duration(cfg.Retry.BaseDelay))
	}
}

func TestDuration_YAML(t *testing.T) {
	out, err := yaml.Marshal(RetryConfig{Attempts: 3, BaseDelay: Duration(1500 * time.Millisecond)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "base_delay: 1.5s") {
		t.Errorf("durations should marshal as duration strings, got %q", out)
	}

	var rc RetryConfig
	if err := yaml.Unmarshal([]byte("attempts: 2\nbase_delay: 250ms\n"), &rc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if time.Duration(rc.BaseDelay) != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %v", time.Duration(rc.BaseDelay))
	}
}

func TestRedactEqual(t *testing.T) {
	base := RedactConfig{Fields: []string{"password", "token"}, Marker: "[REDACTED]", MaxDepth: 8}

	if !redactEqual(base, RedactConfig{Fields: []string{"password", "token"}, Marker: "[REDACTED]", MaxDepth: 8}) {
		t.Error("identical configs should compare equal")
	}
	if redactEqual(base, RedactConfig{Fields: []string{"password"}, Marker: "[REDACTED]", MaxDepth: 8}) {
		t.Error("different field sets should not compare equal")
	}
	if redactEqual(base, RedactConfig{Fields: []string{"password", "token"}, Marker: "<x>", MaxDepth: 8}) {
		t.Error("different markers should not compare equal")
	}
}

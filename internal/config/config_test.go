package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Remote.FolderName != "KhataApp" || cfg.Remote.DocumentName != "KB_MAIN_DATA.json" {
		t.Errorf("unexpected remote defaults: %+v", cfg.Remote)
	}
	if cfg.Sync.Interval != 5*time.Minute || cfg.Sync.Debounce != 500*time.Millisecond {
		t.Errorf("unexpected sync defaults: %+v", cfg.Sync)
	}
	if cfg.Sync.SaveTimeout != 30*time.Second || cfg.Sync.SummaryPrefix != "KB" {
		t.Errorf("unexpected save defaults: %+v", cfg.Sync)
	}
	if cfg.Ledger.RetentionDays != 30 || cfg.Ledger.InactivityWindow != 14*24*time.Hour {
		t.Errorf("unexpected ledger defaults: %+v", cfg.Ledger)
	}
	if cfg.Cache.Backend != CacheSQLite || !strings.HasSuffix(cfg.Cache.Path, filepath.Join(".khata", "cache.db")) {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
}

func TestLoadFile(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "yaml",
			file: "config.yaml",
			content: `
store:
  name: Sharma General Store
sync:
  interval: 2m
  debounce: 250ms
cache:
  backend: redis
  redis:
    addr: redis:6379
`,
		},
		{
			name: "toml",
			file: "config.toml",
			content: `
[store]
name = "Sharma General Store"

[sync]
interval = "2m"
debounce = "250ms"

[cache]
backend = "redis"

[cache.redis]
addr = "redis:6379"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Store.Name != "Sharma General Store" {
				t.Errorf("Store.Name = %q", cfg.Store.Name)
			}
			if cfg.Sync.Interval != 2*time.Minute || cfg.Sync.Debounce != 250*time.Millisecond {
				t.Errorf("unexpected sync: %+v", cfg.Sync)
			}
			if cfg.Cache.Backend != CacheRedis || cfg.Cache.Redis.Addr != "redis:6379" {
				t.Errorf("unexpected cache: %+v", cfg.Cache)
			}
			// Untouched keys keep their defaults.
			if cfg.Remote.FolderName != "KhataApp" {
				t.Errorf("Remote.FolderName = %q", cfg.Remote.FolderName)
			}
		})
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KHATA_OAUTH_CLIENT_SECRET", "from-env")
	t.Setenv("KHATA_CACHE_REDIS_ADDR", "cache.internal:6380")
	t.Setenv("KHATA_LEDGER_RETENTION_DAYS", "7")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OAuth.ClientSecret != "from-env" {
		t.Errorf("OAuth.ClientSecret = %q", cfg.OAuth.ClientSecret)
	}
	if cfg.Cache.Redis.Addr != "cache.internal:6380" {
		t.Errorf("Cache.Redis.Addr = %q", cfg.Cache.Redis.Addr)
	}
	if cfg.Ledger.RetentionDays != 7 {
		t.Errorf("Ledger.RetentionDays = %d", cfg.Ledger.RetentionDays)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		path    func(t *testing.T) string
		wantErr string
	}{
		{
			name:    "explicit file missing",
			path:    func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
			wantErr: "failed to read config",
		},
		{
			name: "unknown remote backend",
			path: func(t *testing.T) string {
				return writeFile(t, "config.yaml", "remote:\n  backend: s3\n")
			},
			wantErr: "unknown remote.backend",
		},
		{
			name: "unknown cache backend",
			path: func(t *testing.T) string {
				return writeFile(t, "config.yaml", "cache:\n  backend: etcd\n")
			},
			wantErr: "unknown cache.backend",
		},
		{
			name: "zero retention",
			path: func(t *testing.T) string {
				return writeFile(t, "config.yaml", "ledger:\n  retention_days: 0\n")
			},
			wantErr: "retention_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestRenderRedactsSecrets(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("KHATA_OAUTH_CLIENT_SECRET", "s3cret")
	t.Setenv("KHATA_CACHE_REDIS_PASSWORD", "hunter2")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	for _, format := range []string{"yaml", "toml"} {
		t.Run(format, func(t *testing.T) {
			out, err := cfg.Render(format)
			if err != nil {
				t.Fatalf("Render(%s) error = %v", format, err)
			}
			text := string(out)
			if strings.Contains(text, "s3cret") || strings.Contains(text, "hunter2") {
				t.Errorf("secrets leaked:\n%s", text)
			}
			if !strings.Contains(text, Redacted) || !strings.Contains(text, "KB_MAIN_DATA.json") {
				t.Errorf("unexpected output:\n%s", text)
			}
		})
	}

	if cfg.OAuth.ClientSecret != "s3cret" {
		t.Error("Render must not modify the config")
	}

	if _, err := cfg.Render("xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

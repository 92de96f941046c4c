// Package config loads khata settings from a yaml or toml file, KHATA_*
// environment variables and built-in defaults, in that order of precedence
// (env wins).
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "KHATA"

// Redacted replaces secrets in rendered output.
const Redacted = "********"

// Backends.
const (
	RemoteDrive  = "drive"
	RemoteMemory = "memory"
	CacheSQLite  = "sqlite"
	CacheRedis   = "redis"
	CacheMemory  = "memory"
)

// Config is the effective configuration.
type Config struct {
	Store     StoreConfig     `mapstructure:"store" yaml:"store" toml:"store"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote" toml:"remote"`
	OAuth     OAuthConfig     `mapstructure:"oauth" yaml:"oauth" toml:"oauth"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache" toml:"cache"`
	Sync      SyncConfig      `mapstructure:"sync" yaml:"sync" toml:"sync"`
	Ledger    LedgerConfig    `mapstructure:"ledger" yaml:"ledger" toml:"ledger"`
	Log       LogConfig       `mapstructure:"log" yaml:"log" toml:"log"`
	Dashboard DashboardConfig `mapstructure:"dashboard" yaml:"dashboard" toml:"dashboard"`
}

type StoreConfig struct {
	// Name is only a fallback; the snapshot and the cache take precedence.
	Name string `mapstructure:"name" yaml:"name" toml:"name"`
}

type RemoteConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend" toml:"backend"`
	FolderName   string `mapstructure:"folder_name" yaml:"folder_name" toml:"folder_name"`
	DocumentName string `mapstructure:"document_name" yaml:"document_name" toml:"document_name"`
	// Endpoint overrides the Drive API base URL.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
}

type OAuthConfig struct {
	ClientID     string   `mapstructure:"client_id" yaml:"client_id" toml:"client_id"`
	ClientSecret string   `mapstructure:"client_secret" yaml:"client_secret" toml:"client_secret"`
	RedirectURL  string   `mapstructure:"redirect_url" yaml:"redirect_url" toml:"redirect_url"`
	Scopes       []string `mapstructure:"scopes" yaml:"scopes,omitempty" toml:"scopes,omitempty"`
}

type CacheConfig struct {
	Backend string      `mapstructure:"backend" yaml:"backend" toml:"backend"`
	Path    string      `mapstructure:"path" yaml:"path" toml:"path"`
	Redis   RedisConfig `mapstructure:"redis" yaml:"redis" toml:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr" toml:"addr"`
	Password string `mapstructure:"password" yaml:"password" toml:"password"`
	DB       int    `mapstructure:"db" yaml:"db" toml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix" toml:"prefix"`
}

type SyncConfig struct {
	Interval       time.Duration `mapstructure:"interval" yaml:"interval" toml:"interval"`
	Debounce       time.Duration `mapstructure:"debounce" yaml:"debounce" toml:"debounce"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout" yaml:"load_timeout" toml:"load_timeout"`
	AuthTimeout    time.Duration `mapstructure:"auth_timeout" yaml:"auth_timeout" toml:"auth_timeout"`
	SaveTimeout    time.Duration `mapstructure:"save_timeout" yaml:"save_timeout" toml:"save_timeout"`
	SummaryPrefix  string        `mapstructure:"summary_prefix" yaml:"summary_prefix" toml:"summary_prefix"`
	DisableSummary bool          `mapstructure:"disable_summary" yaml:"disable_summary" toml:"disable_summary"`
	ProbeAddr      string        `mapstructure:"probe_addr" yaml:"probe_addr" toml:"probe_addr"`
	ProbeInterval  time.Duration `mapstructure:"probe_interval" yaml:"probe_interval" toml:"probe_interval"`
	RolloverDelay  time.Duration `mapstructure:"rollover_delay" yaml:"rollover_delay" toml:"rollover_delay"`
}

type LedgerConfig struct {
	RetentionDays    int           `mapstructure:"retention_days" yaml:"retention_days" toml:"retention_days"`
	InactivityWindow time.Duration `mapstructure:"inactivity_window" yaml:"inactivity_window" toml:"inactivity_window"`
	// Node is the snowflake node id; distinct devices should differ.
	Node int64 `mapstructure:"node" yaml:"node" toml:"node"`
}

type LogConfig struct {
	// File enables rotation through lumberjack; empty means stderr.
	File       string `mapstructure:"file" yaml:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days" toml:"max_age_days"`
	Quiet      bool   `mapstructure:"quiet" yaml:"quiet" toml:"quiet"`
}

type DashboardConfig struct {
	Host string `mapstructure:"host" yaml:"host" toml:"host"`
	Port int    `mapstructure:"port" yaml:"port" toml:"port"`
}

// Dir returns $HOME/.khata, or .khata when the home directory is unknown.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".khata"
	}
	return filepath.Join(home, ".khata")
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	dir := Dir()

	v.SetDefault("store.name", "")

	v.SetDefault("remote.backend", RemoteDrive)
	v.SetDefault("remote.folder_name", "KhataApp")
	v.SetDefault("remote.document_name", "KB_MAIN_DATA.json")
	v.SetDefault("remote.endpoint", "")

	v.SetDefault("oauth.client_id", "")
	v.SetDefault("oauth.client_secret", "")
	v.SetDefault("oauth.redirect_url", "http://127.0.0.1:8085/callback")
	v.SetDefault("oauth.scopes", []string{})

	v.SetDefault("cache.backend", CacheSQLite)
	v.SetDefault("cache.path", filepath.Join(dir, "cache.db"))
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "khata:")

	v.SetDefault("sync.interval", 5*time.Minute)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("sync.load_timeout", 5*time.Second)
	v.SetDefault("sync.auth_timeout", 5*time.Second)
	v.SetDefault("sync.save_timeout", 30*time.Second)
	v.SetDefault("sync.summary_prefix", "KB")
	v.SetDefault("sync.disable_summary", false)
	v.SetDefault("sync.probe_addr", "www.googleapis.com:443")
	v.SetDefault("sync.probe_interval", 15*time.Second)
	v.SetDefault("sync.rollover_delay", 5*time.Second)

	v.SetDefault("ledger.retention_days", 30)
	v.SetDefault("ledger.inactivity_window", 14*24*time.Hour)
	v.SetDefault("ledger.node", 1)

	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.quiet", false)

	v.SetDefault("dashboard.host", "127.0.0.1")
	v.SetDefault("dashboard.port", 8080)
}

// Load reads the config file at path (or $HOME/.khata/config.{yaml,toml}
// when path is empty), applies KHATA_* overrides and validates the result.
// A missing default file is not an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(Dir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks backend names and intervals.
func (c *Config) Validate() error {
	switch c.Remote.Backend {
	case RemoteDrive, RemoteMemory:
	default:
		return fmt.Errorf("unknown remote.backend %q", c.Remote.Backend)
	}
	switch c.Cache.Backend {
	case CacheSQLite, CacheRedis, CacheMemory:
	default:
		return fmt.Errorf("unknown cache.backend %q", c.Cache.Backend)
	}
	if c.Sync.Interval <= 0 || c.Sync.Debounce <= 0 {
		return fmt.Errorf("sync.interval and sync.debounce must be positive")
	}
	if c.Ledger.RetentionDays <= 0 {
		return fmt.Errorf("ledger.retention_days must be positive")
	}
	if c.Ledger.Node < 0 || c.Ledger.Node > 3 {
		return fmt.Errorf("ledger.node must be between 0 and 3")
	}
	return nil
}

// Redact returns a copy with secrets masked.
func (c Config) Redact() Config {
	if c.OAuth.ClientSecret != "" {
		c.OAuth.ClientSecret = Redacted
	}
	if c.Cache.Redis.Password != "" {
		c.Cache.Redis.Password = Redacted
	}
	c.OAuth.Scopes = append([]string(nil), c.OAuth.Scopes...)
	return c
}

// Render encodes the redacted config as "yaml" or "toml".
func (c Config) Render(format string) ([]byte, error) {
	red := c.Redact()
	switch strings.ToLower(format) {
	case "", "yaml", "yml":
		return yaml.Marshal(red)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(red); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want yaml or toml)", format)
	}
}

// Package config loads controller settings from an optional YAML file and
// the environment. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// EnvConfigFile names the optional YAML file.
	EnvConfigFile = "RENDERFLEET_CONFIG"
	// EnvRoot names the shared queue root.
	EnvRoot = "RENDERFLEET_ROOT"

	defaultHTTPHost       = "127.0.0.1"
	defaultHTTPPort       = "8080"
	defaultJournalKey     = "renderfleet:dispatches"
	defaultJournalMax     = 500
	defaultRequestTimeout = 60 * time.Second
)

// GDriveConfig enables the gdrive:// source provider when ClientID is set.
type GDriveConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// Enabled reports whether Drive credentials were supplied.
func (g GDriveConfig) Enabled() bool { return g.ClientID != "" }

// MinIOConfig enables the minio:// source provider when Endpoint is set.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
}

func (m MinIOConfig) Enabled() bool { return m.Endpoint != "" }

// Config is the full controller configuration.
type Config struct {
	// Root is the absolute base of the shared queue tree. Every inbox,
	// outbox and heartbeat path is derived from it.
	Root string `yaml:"root"`

	// SourceRoot confines file:// asset references to one directory tree.
	// When empty, any absolute path readable by the process is accepted.
	SourceRoot string `yaml:"source_root"`

	HTTPHost       string        `yaml:"http_host"`
	HTTPPort       string        `yaml:"http_port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	CORSOrigins    []string      `yaml:"cors_allowed_origins"`

	// CleanupOnFailure removes a video job directory created by a dispatch
	// that failed part way. Off by default.
	CleanupOnFailure bool `yaml:"cleanup_on_failure"`

	DatabaseURL string `yaml:"database_url"`
	RedisAddr   string `yaml:"redis_addr"`
	JournalKey  string `yaml:"journal_key"`
	JournalMax  int64  `yaml:"journal_max"`

	GDrive GDriveConfig `yaml:"gdrive"`
	MinIO  MinIOConfig  `yaml:"minio"`
}

// Default returns a Config with every optional value filled in.
func Default() Config {
	return Config{
		HTTPHost:       defaultHTTPHost,
		HTTPPort:       defaultHTTPPort,
		RequestTimeout: defaultRequestTimeout,
		CORSOrigins:    []string{"http://localhost:1420", "http://localhost:5173"},
		JournalKey:     defaultJournalKey,
		JournalMax:     defaultJournalMax,
	}
}

// FromEnv loads configuration from the process environment.
func FromEnv() (Config, error) {
	return Load(os.Getenv)
}

// Load builds a Config: defaults, then the YAML file named by
// RENDERFLEET_CONFIG (if any), then environment overrides. getenv is
// injectable for tests.
func Load(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv(EnvConfigFile)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: file %s does not exist", path)
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	env := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	env(EnvRoot, &c.Root)
	env("SOURCE_ROOT", &c.SourceRoot)
	env("HTTP_HOST", &c.HTTPHost)
	env("HTTP_PORT", &c.HTTPPort)
	env("DATABASE_URL", &c.DatabaseURL)
	env("REDIS_ADDR", &c.RedisAddr)
	env("JOURNAL_KEY", &c.JournalKey)
	env("GDRIVE_CLIENT_ID", &c.GDrive.ClientID)
	env("GDRIVE_CLIENT_SECRET", &c.GDrive.ClientSecret)
	env("GDRIVE_REFRESH_TOKEN", &c.GDrive.RefreshToken)
	env("MINIO_ENDPOINT", &c.MinIO.Endpoint)
	env("MINIO_ACCESS_KEY", &c.MinIO.AccessKey)
	env("MINIO_SECRET_KEY", &c.MinIO.SecretKey)

	if v := strings.TrimSpace(getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		c.CORSOrigins = splitCSV(v)
	}
	if v := strings.TrimSpace(getenv("JOURNAL_MAX")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: JOURNAL_MAX: %w", err)
		}
		c.JournalMax = n
	}
	if v := strings.TrimSpace(getenv("REQUEST_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	for key, dst := range map[string]*bool{
		"DISPATCH_CLEANUP_ON_FAILURE": &c.CleanupOnFailure,
		"MINIO_USE_SSL":               &c.MinIO.UseSSL,
	} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = b
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Root = strings.TrimSpace(c.Root)
	if c.Root != "" {
		c.Root = filepath.Clean(c.Root)
	}
	c.SourceRoot = strings.TrimSpace(c.SourceRoot)
	if c.SourceRoot != "" {
		c.SourceRoot = filepath.Clean(c.SourceRoot)
	}
	if c.HTTPHost == "" {
		c.HTTPHost = defaultHTTPHost
	}
	if c.HTTPPort == "" {
		c.HTTPPort = defaultHTTPPort
	}
	if c.JournalKey == "" {
		c.JournalKey = defaultJournalKey
	}
}

// Validate checks the values that cannot be defaulted.
func (c Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("config: %s is required", EnvRoot)
	}
	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("config: root must be an absolute path, got %q", c.Root)
	}
	if c.SourceRoot != "" && !filepath.IsAbs(c.SourceRoot) {
		return fmt.Errorf("config: source_root must be an absolute path, got %q", c.SourceRoot)
	}
	if c.JournalMax < 1 {
		return fmt.Errorf("config: journal_max must be >= 1")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("config: request_timeout must not be negative")
	}
	if c.GDrive.Enabled() && (c.GDrive.ClientSecret == "" || c.GDrive.RefreshToken == "") {
		return fmt.Errorf("config: gdrive requires client_secret and refresh_token")
	}
	return nil
}

// ListenAddr is the host:port the HTTP server binds.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.HTTPHost, c.HTTPPort)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

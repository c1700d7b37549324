package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendRedis  = "redis"

	DefaultMaxUploadBytes = 10 * 1024 * 1024
)

type Config struct {
	API     APIConfig     `yaml:"api"`
	Session SessionConfig `yaml:"session"`
	Upload  UploadConfig  `yaml:"upload"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	DataDir string        `yaml:"data_dir" env:"CHEMVIZ_DATA_DIR, overwrite"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" env:"CHEMVIZ_API_URL, overwrite"`
	Timeout time.Duration `yaml:"timeout"  env:"CHEMVIZ_HTTP_TIMEOUT, overwrite"`
}

type SessionConfig struct {
	Backend   string `yaml:"backend"    env:"CHEMVIZ_SESSION_BACKEND, overwrite"`
	RedisAddr string `yaml:"redis_addr" env:"CHEMVIZ_REDIS_ADDR, overwrite"`
	RedisDB   int    `yaml:"redis_db"   env:"CHEMVIZ_REDIS_DB, overwrite"`
}

type UploadConfig struct {
	MaxBytes int64 `yaml:"max_bytes" env:"CHEMVIZ_MAX_UPLOAD_BYTES, overwrite"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"  env:"CHEMVIZ_LOG_LEVEL, overwrite"`
	Pretty bool   `yaml:"pretty" env:"CHEMVIZ_LOG_PRETTY, overwrite"`
}

// MetricsConfig.File, when set, receives a Prometheus text dump on exit.
type MetricsConfig struct {
	File string `yaml:"file" env:"CHEMVIZ_METRICS_FILE, overwrite"`
}

func DefaultConfig() Config {
	cfg := Config{}
	cfg.API.BaseURL = "http://localhost:8000/api"
	cfg.Session.Backend = BackendFile
	cfg.Session.RedisAddr = "localhost:6379"
	cfg.Upload.MaxBytes = DefaultMaxUploadBytes
	cfg.Logging.Level = "info"
	cfg.DataDir = defaultDataDir()
	return cfg
}

// Load layers DefaultConfig, the optional YAML file at path, and the
// environment, in that order.
func Load(ctx context.Context, path string) (Config, error) {
	return LoadWith(ctx, path, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	c.Session.Backend = strings.ToLower(strings.TrimSpace(c.Session.Backend))
	if c.Session.Backend == "" {
		c.Session.Backend = BackendFile
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = DefaultMaxUploadBytes
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir()
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: invalid api base url %q", c.API.BaseURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("config: unsupported api scheme %q", u.Scheme)
	}
	switch c.Session.Backend {
	case BackendFile, BackendMemory:
	case BackendRedis:
		if c.Session.RedisAddr == "" {
			return fmt.Errorf("config: redis session backend needs CHEMVIZ_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown session backend %q", c.Session.Backend)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config: negative http timeout")
	}
	return nil
}

func (c Config) LogPath() string {
	return filepath.Join(c.DataDir, "chemviz.log")
}

func (c Config) SessionPath() string {
	return filepath.Join(c.DataDir, "session.json")
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".chemviz"
	}
	return filepath.Join(home, ".chemviz")
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL      = "http://localhost:8080"
	defaultPollInterval = time.Second
	defaultPollTimeout  = 5 * time.Minute
	defaultStubPort     = 8080
	defaultJobDelay     = 2 * time.Second
	defaultLogLevel     = "info"
)

// Environment variables consulted after the config file. The first
// non-empty base URL variable wins.
const (
	EnvAPIBase       = "OPTIFLOW_API_BASE"
	EnvPublicAPIBase = "NUXT_PUBLIC_API_BASE"
	EnvLogLevel      = "OPTIFLOW_LOG_LEVEL"
)

// Config represents the application configuration parsed from YAML.
type Config struct {
	API     APIConfig     `yaml:"api"`
	Poll    PollConfig    `yaml:"poll"`
	Stub    StubConfig    `yaml:"stub"`
	Logging LoggingConfig `yaml:"logging"`
}

// APIConfig describes how to reach the backend.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	Headers Headers       `yaml:"headers"`
}

// Headers contains additional HTTP headers to send with every request.
type Headers map[string]string

// PollConfig controls how long and how often job status is polled.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// StubConfig configures the local stub backend.
type StubConfig struct {
	Port     int           `yaml:"port"`
	JobDelay time.Duration `yaml:"job_delay"`
}

// LoggingConfig selects the slog level.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Default returns a configuration populated with defaults only.
func Default() Config {
	var cfg Config
	cfg.applyDefaults()
	return cfg
}

// Load reads the optional YAML file at path, applies .env and environment
// overrides, fills defaults and validates the result. An empty path skips
// the file.
func Load(path string) (Config, error) {
	var cfg Config

	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return Config{}, fmt.Errorf("resolve config path: %w", err)
		}

		data, err := os.ReadFile(absPath)
		if err != nil {
			return Config{}, fmt.Errorf("read config file %q: %w", absPath, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %q: %w", absPath, err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	for _, key := range []string{EnvAPIBase, EnvPublicAPIBase} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			c.API.BaseURL = v
			break
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		c.Logging.Level = v
	}
}

func (c *Config) applyDefaults() {
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultBaseURL
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = defaultPollInterval
	}
	if c.Poll.Timeout == 0 {
		c.Poll.Timeout = defaultPollTimeout
	}
	if c.Stub.Port == 0 {
		c.Stub.Port = defaultStubPort
	}
	if c.Stub.JobDelay == 0 {
		c.Stub.JobDelay = defaultJobDelay
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaultLogLevel
	}
}

// Validate performs strict sanity checks on the configuration.
func (c Config) Validate() error {
	if err := ValidateBaseURL(c.API.BaseURL); err != nil {
		return fmt.Errorf("api.base_url: %w", err)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative, got %s", c.API.Timeout)
	}
	for headerKey := range c.API.Headers {
		if !isCanonicalHTTPHeader(headerKey) {
			return fmt.Errorf("api.headers: %q is not a valid canonical HTTP header", headerKey)
		}
	}
	if c.Poll.Interval < 0 || c.Poll.Timeout < 0 {
		return errors.New("poll.interval and poll.timeout must not be negative")
	}
	if c.Stub.Port <= 0 || c.Stub.Port > 65535 {
		return fmt.Errorf("stub.port must be a valid TCP port, got %d", c.Stub.Port)
	}
	if c.Stub.JobDelay < 0 {
		return fmt.Errorf("stub.job_delay must not be negative, got %s", c.Stub.JobDelay)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	return nil
}

// ValidateBaseURL checks that raw is an absolute http(s) URL.
func ValidateBaseURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q must use http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("%q must not carry a query or fragment", raw)
	}
	return nil
}

func isCanonicalHTTPHeader(header string) bool {
	if header == "" {
		return false
	}

	for _, r := range header {
		if !(r == '-' || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

// Package common holds configuration, logging and key handling shared by the
// lay binaries.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then LAY_* environment variables (DATABASE_URL for the store DSN). Command
// line flags are applied last by each binary.
package common

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/flashbots/lay/storage"
	"gopkg.in/yaml.v3"
)

// PackageName is used as the metrics namespace.
const PackageName = "lay"

// LogConfig selects log verbosity and format.
type LogConfig struct {
	Level string `yaml:"level" env:"LAY_LOG_LEVEL"`
	JSON  bool   `yaml:"json" env:"LAY_LOG_JSON"`
}

// RelayConfig configures cmd/relay.
type RelayConfig struct {
	HTTPAddr    string `yaml:"http_addr" env:"LAY_HTTP_ADDR"`
	MetricsAddr string `yaml:"metrics_addr" env:"LAY_METRICS_ADDR"`
	EnablePprof bool   `yaml:"pprof" env:"LAY_PPROF"`

	ServerID      string   `yaml:"server_id" env:"LAY_SERVER_ID"`
	ChannelFilter bool     `yaml:"channel_filter" env:"LAY_CHANNEL_FILTER"`
	MaxBodyBytes  int64    `yaml:"max_body_bytes" env:"LAY_MAX_BODY_BYTES"`
	CORSOrigins   []string `yaml:"cors_origins" env:"LAY_CORS_ORIGINS" envSeparator:","`

	DrainDuration            time.Duration `yaml:"drain_duration" env:"LAY_DRAIN_DURATION"`
	GracefulShutdownDuration time.Duration `yaml:"graceful_shutdown_duration" env:"LAY_SHUTDOWN_DURATION"`
	ReadTimeout              time.Duration `yaml:"read_timeout" env:"LAY_READ_TIMEOUT"`
	WriteTimeout             time.Duration `yaml:"write_timeout" env:"LAY_WRITE_TIMEOUT"`

	Store storage.Config `yaml:"store"`
	Log   LogConfig      `yaml:"log"`
}

// DefaultRelayConfig returns a relay listening on :8080 with a local SQLite file.
func DefaultRelayConfig() *RelayConfig {
	return &RelayConfig{
		HTTPAddr:                 ":8080",
		MaxBodyBytes:             1 << 20,
		DrainDuration:            time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		Store:                    storage.Config{Driver: storage.DriverSQLite, DSN: "lay.db"},
		Log:                      LogConfig{Level: "info"},
	}
}

// Validate rejects configurations the relay cannot start with.
func (c *RelayConfig) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	switch c.Store.Driver {
	case storage.DriverSQLite:
		if c.Store.DSN == "" {
			errs = append(errs, errors.New("store.dsn is required for sqlite"))
		}
	case storage.DriverPostgres:
		if c.Store.DSN == "" && c.Store.Postgres.Host == "" {
			errs = append(errs, errors.New("store.dsn or store.postgres.host is required for postgres"))
		}
	case storage.DriverMemory:
	case "":
		errs = append(errs, errors.New("store.driver is required"))
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}
	if c.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("max_body_bytes must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadRelayConfig layers the YAML file at path (optional) and the environment
// over DefaultRelayConfig.
func LoadRelayConfig(path string) (*RelayConfig, error) {
	cfg := DefaultRelayConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ClientConfig configures cmd/lay.
type ClientConfig struct {
	RelayURL string `yaml:"relay_url" env:"LAY_RELAY_URL"`
	KeyFile  string `yaml:"key_file" env:"LAY_KEY_FILE"`
	Origin   string `yaml:"origin" env:"LAY_ORIGIN"`
	Channel  string `yaml:"channel" env:"LAY_CHANNEL"`

	PollInterval    time.Duration `yaml:"poll_interval" env:"LAY_POLL_INTERVAL"`
	Timeout         time.Duration `yaml:"timeout" env:"LAY_TIMEOUT"`
	GuestRetryAfter time.Duration `yaml:"guest_retry_after" env:"LAY_GUEST_RETRY_AFTER"`
	ChannelCapacity int           `yaml:"channel_capacity" env:"LAY_CHANNEL_CAPACITY"`
	PostQueries     bool          `yaml:"post_queries" env:"LAY_POST_QUERIES"`
	WindowHeight    int           `yaml:"window_height" env:"LAY_WINDOW_HEIGHT"`

	Log LogConfig `yaml:"log"`
}

// DefaultClientConfig targets a relay on localhost with the key stored in the
// user config directory.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		RelayURL:        "http://localhost:8080",
		KeyFile:         DefaultKeyFile(),
		Origin:          "0",
		Channel:         "general",
		PollInterval:    time.Second,
		Timeout:         10 * time.Second,
		ChannelCapacity: 16,
		WindowHeight:    20,
		Log:             LogConfig{Level: "warn"},
	}
}

func (c *ClientConfig) Validate() error {
	var errs []error
	if c.RelayURL == "" {
		errs = append(errs, errors.New("relay_url is required"))
	} else if u, err := url.Parse(c.RelayURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("relay_url %q is not an absolute URL", c.RelayURL))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if c.GuestRetryAfter < 0 {
		errs = append(errs, errors.New("guest_retry_after must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadClientConfig layers the YAML file at path (optional) and the environment
// over DefaultClientConfig.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := load(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultKeyFile is <user config dir>/lay/key.pem, or key.pem when the config
// dir is unknown.
func DefaultKeyFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "key.pem"
	}
	return filepath.Join(dir, "lay", "key.pem")
}

func load(path string, cfg any) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parsing environment: %w", err)
	}
	return nil
}

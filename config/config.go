// Package config loads and validates the server configuration. Layering is
// fixed: built-in defaults, then the config file (JSON or YAML by
// extension), then environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/jsonrender/errors"
	"github.com/c360/jsonrender/input/natsfeed"
	"github.com/c360/jsonrender/input/websocket"
	"github.com/c360/jsonrender/producer/openai"
)

// Config is the complete server configuration.
type Config struct {
	Version   string           `json:"version" yaml:"version"`
	Server    ServerConfig     `json:"server" yaml:"server"`
	Catalog   CatalogConfig    `json:"catalog" yaml:"catalog"`
	Logging   LoggingConfig    `json:"logging" yaml:"logging"`
	WebSocket websocket.Config `json:"websocket" yaml:"websocket"`
	NATS      NATSConfig       `json:"nats" yaml:"nats"`
	Producer  ProducerConfig   `json:"producer" yaml:"producer"`
}

// ServerConfig holds process-level settings.
type ServerConfig struct {
	// MetricsPort serves the prometheus exposition endpoint.
	MetricsPort int `json:"metrics_port" yaml:"metrics_port"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// CatalogConfig locates the component catalog definition.
type CatalogConfig struct {
	// Path is the catalog file (JSON or YAML).
	Path string `json:"path" yaml:"path"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info, warn, error
	Format string `json:"format" yaml:"format"` // text or json
}

// NATSConfig configures the optional broker integration: the stream feed
// input and the session event stream share one connection.
type NATSConfig struct {
	Enabled bool            `json:"enabled" yaml:"enabled"`
	URL     string          `json:"url" yaml:"url"`
	Feed    natsfeed.Config `json:"feed" yaml:"feed"`

	// PublishEvents enables the session lifecycle event stream.
	PublishEvents bool `json:"publish_events" yaml:"publish_events"`
}

// ProducerConfig configures the optional model-side producer. Generations
// are triggered by prompts published on PromptSubject.
type ProducerConfig struct {
	Enabled       bool          `json:"enabled" yaml:"enabled"`
	PromptSubject string        `json:"prompt_subject" yaml:"prompt_subject"`
	OpenAI        openai.Config `json:"openai" yaml:"openai"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Version: "1.0.0",
		Server: ServerConfig{
			MetricsPort:     9091,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		WebSocket: websocket.DefaultConfig(),
		NATS: NATSConfig{
			URL:  "nats://localhost:4222",
			Feed: natsfeed.DefaultConfig(),
		},
		Producer: ProducerConfig{
			PromptSubject: "ui.prompt",
			OpenAI:        openai.DefaultConfig(),
		},
	}
}

// Validate checks the whole configuration tree.
func (c *Config) Validate() error {
	if c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("metrics_port %d out of range", c.Server.MetricsPort),
			"config", "Validate", "server check")
	}
	if c.Catalog.Path == "" {
		return errors.WrapInvalid(
			fmt.Errorf("catalog.path is required"),
			"config", "Validate", "catalog check")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log level %q", c.Logging.Level),
			"config", "Validate", "logging check")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unknown log format %q", c.Logging.Format),
			"config", "Validate", "logging check")
	}
	if err := c.WebSocket.Validate(); err != nil {
		return err
	}
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			return errors.WrapInvalid(
				fmt.Errorf("nats.url is required when nats is enabled"),
				"config", "Validate", "nats check")
		}
		if err := c.NATS.Feed.Validate(); err != nil {
			return err
		}
	}
	if c.Producer.Enabled {
		if !c.NATS.Enabled {
			return errors.WrapInvalid(
				fmt.Errorf("producer requires nats for prompt delivery"),
				"config", "Validate", "producer check")
		}
		if c.Producer.PromptSubject == "" {
			return errors.WrapInvalid(
				fmt.Errorf("producer.prompt_subject is required"),
				"config", "Validate", "producer check")
		}
		if err := c.Producer.OpenAI.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Logger builds the process logger from the logging section.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	switch c.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.Logging.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// Loader loads configuration with a fixed layering order.
type Loader struct {
	path      string
	envPrefix string
}

// NewLoader creates a loader for path. envPrefix defaults to JSONRENDER.
func NewLoader(path, envPrefix string) *Loader {
	if envPrefix == "" {
		envPrefix = "JSONRENDER"
	}
	return &Loader{path: path, envPrefix: envPrefix}
}

// Load produces the validated configuration: defaults, then the file (if
// path is set), then environment overrides.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.path != "" {
		data, err := os.ReadFile(l.path)
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "config file read")
		}
		switch strings.ToLower(filepath.Ext(l.path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, cfg)
		default:
			err = json.Unmarshal(data, cfg)
		}
		if err != nil {
			return nil, errors.WrapFatal(err, "config", "Load", "config file parse")
		}
	}

	l.applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides for the settings
// that commonly differ per deployment.
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_CATALOG_PATH"); val != "" {
		cfg.Catalog.Path = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.Server.MetricsPort = port
		}
	}
	if val := os.Getenv(l.envPrefix + "_WS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			cfg.WebSocket.HTTPPort = port
		}
	}
	if val := os.Getenv(l.envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
		cfg.NATS.Feed.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_OPENAI_BASE_URL"); val != "" {
		cfg.Producer.OpenAI.BaseURL = val
	}
	if val := os.Getenv(l.envPrefix + "_OPENAI_MODEL"); val != "" {
		cfg.Producer.OpenAI.Model = val
	}
}

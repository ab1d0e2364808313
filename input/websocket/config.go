package websocket

import (
	"fmt"
	"time"

	"github.com/c360/jsonrender/errors"
)

// Config holds configuration for the WebSocket stream input.
type Config struct {
	// HTTPPort is the port the WebSocket endpoint listens on.
	HTTPPort int `json:"http_port" yaml:"http_port"`

	// Path is the WebSocket endpoint path.
	Path string `json:"path" yaml:"path"`

	// ReadBufferSize and WriteBufferSize size the connection buffers.
	ReadBufferSize  int `json:"read_buffer_size" yaml:"read_buffer_size"`
	WriteBufferSize int `json:"write_buffer_size" yaml:"write_buffer_size"`

	// MaxMessageBytes caps a single WebSocket message.
	MaxMessageBytes int64 `json:"max_message_bytes" yaml:"max_message_bytes"`

	// ChunksPerSecond rate-limits chunk ingestion per connection. Zero
	// disables limiting.
	ChunksPerSecond float64 `json:"chunks_per_second" yaml:"chunks_per_second"`

	// Burst is the rate limiter burst size.
	Burst int `json:"burst" yaml:"burst"`

	// ReadTimeout bounds each blocking read so shutdown stays responsive.
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout"`

	// Auth configures endpoint authentication.
	Auth *AuthConfig `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration. Credentials come from the
// environment, never from config files.
type AuthConfig struct {
	Type           string `json:"type" yaml:"type"` // none or bearer
	BearerTokenEnv string `json:"bearer_token_env,omitempty" yaml:"bearer_token_env,omitempty"`
}

// DefaultConfig returns the default WebSocket input configuration.
func DefaultConfig() Config {
	return Config{
		HTTPPort:        8081,
		Path:            "/stream",
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		MaxMessageBytes: 1 << 20,
		ChunksPerSecond: 200,
		Burst:           50,
		ReadTimeout:     time.Second,
		Auth:            &AuthConfig{Type: "none"},
	}
}

// Validate checks the configuration for usability.
func (c Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return errors.WrapInvalid(
			fmt.Errorf("http_port %d out of range", c.HTTPPort),
			"websocket_input", "Validate", "port check")
	}
	if c.Path == "" {
		return errors.WrapInvalid(
			fmt.Errorf("path must not be empty"),
			"websocket_input", "Validate", "path check")
	}
	if c.ChunksPerSecond < 0 {
		return errors.WrapInvalid(
			fmt.Errorf("chunks_per_second must not be negative"),
			"websocket_input", "Validate", "rate check")
	}
	if c.Auth != nil {
		switch c.Auth.Type {
		case "", "none":
		case "bearer":
			if c.Auth.BearerTokenEnv == "" {
				return errors.WrapInvalid(
					fmt.Errorf("bearer auth requires bearer_token_env"),
					"websocket_input", "Validate", "auth check")
			}
		default:
			return errors.WrapInvalid(
				fmt.Errorf("unknown auth type %q", c.Auth.Type),
				"websocket_input", "Validate", "auth check")
		}
	}
	return nil
}

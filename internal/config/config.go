// Package config provides configuration parsing and validation for the
// socks5d demo server.
package config

import (
	"fmt"
	"net"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete socks5d configuration.
type Config struct {
	Listen  ListenConfig  `yaml:"listen"`
	Auth    AuthConfig    `yaml:"auth"`
	UDP     UDPConfig     `yaml:"udp"`
	Limits  LimitsConfig  `yaml:"limits"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ListenConfig configures the TCP listener accepting control connections.
type ListenConfig struct {
	Address string `yaml:"address"`
}

// AuthConfig selects and configures the single Authenticator the listener
// advertises. Mode is one of "none" or "password"; Users is only consulted
// when Mode is "password".
type AuthConfig struct {
	Mode  string     `yaml:"mode"`
	Users []UserSpec `yaml:"users"`
}

// UserSpec is one entry in the password user list. Exactly one of Password
// or PasswordHash should be set; PasswordHash (bcrypt) takes precedence
// when both are present.
type UserSpec struct {
	Username     string `yaml:"username"`
	Password     string `yaml:"password,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
}

// UDPConfig configures the UDP ASSOCIATE relay.
type UDPConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxDatagramSize int           `yaml:"max_datagram_size"`
}

// LimitsConfig bounds resource usage of the accept loop.
type LimitsConfig struct {
	MaxConnections int     `yaml:"max_connections"`
	AcceptsPerSec  float64 `yaml:"accepts_per_sec"`
	AcceptBurst    int     `yaml:"accept_burst"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// Default returns the configuration a freshly initialized socks5d starts
// from: no-auth on localhost, UDP relay disabled, metrics disabled.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Address: "127.0.0.1:1080"},
		Auth:   AuthConfig{Mode: "none"},
		UDP: UDPConfig{
			Enabled:         false,
			IdleTimeout:     5 * time.Minute,
			MaxDatagramSize: 1472, // MTU minus IP/UDP headers
		},
		Limits: LimitsConfig{
			MaxConnections: 1000,
			AcceptsPerSec:  50,
			AcceptBurst:    20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Address: ":9090",
		},
	}
}

// Load reads and parses a configuration file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// envVarRegex matches ${VAR} or $VAR references so operators can keep
// secrets like password hashes out of the config file itself.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(s string) string {
	return envVarRegex.ReplaceAllStringFunc(s, func(match string) string {
		var name string
		if strings.HasPrefix(match, "${") {
			name = match[2 : len(match)-1]
		} else {
			name = match[1:]
		}
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return match
	})
}

// Parse parses configuration from YAML bytes, starting from Default and
// validating the result.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen.Address); err != nil {
		return fmt.Errorf("listen.address: %w", err)
	}

	switch c.Auth.Mode {
	case "none":
	case "password":
		if len(c.Auth.Users) == 0 {
			return fmt.Errorf("auth.users: at least one user is required when auth.mode is %q", "password")
		}
		for i, u := range c.Auth.Users {
			if u.Username == "" {
				return fmt.Errorf("auth.users[%d]: username is required", i)
			}
			if u.Password == "" && u.PasswordHash == "" {
				return fmt.Errorf("auth.users[%d]: password or password_hash is required", i)
			}
		}
	default:
		return fmt.Errorf("auth.mode: unsupported mode %q (want %q or %q)", c.Auth.Mode, "none", "password")
	}

	if !isValidLogLevel(c.Log.Level) {
		return fmt.Errorf("log.level: unsupported level %q", c.Log.Level)
	}
	if !isValidLogFormat(c.Log.Format) {
		return fmt.Errorf("log.format: unsupported format %q", c.Log.Format)
	}

	if c.Limits.MaxConnections < 0 {
		return fmt.Errorf("limits.max_connections must be >= 0")
	}

	return nil
}

func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return true
	default:
		return false
	}
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	default:
		return false
	}
}

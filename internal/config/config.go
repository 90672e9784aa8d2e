// Package config loads lobby server settings from a TOML file, an optional
// .env file and LOBBY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOBBY_"

type Config struct {
	Server    ServerConfig    `toml:"server" envPrefix:"SERVER_"`
	RateLimit RateLimitConfig `toml:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Database  DatabaseConfig  `toml:"database" envPrefix:"DATABASE_"`
	Content   ContentConfig   `toml:"content" envPrefix:"CONTENT_"`
	Auth      AuthConfig      `toml:"auth" envPrefix:"AUTH_"`
	Logging   LoggingConfig   `toml:"logging" envPrefix:"LOGGING_"`
}

type ServerConfig struct {
	Addr           string        `toml:"addr" env:"ADDR"`
	TLSCert        string        `toml:"tls_cert" env:"TLS_CERT"`
	TLSKey         string        `toml:"tls_key" env:"TLS_KEY"`
	WebsocketAddr  string        `toml:"websocket_addr" env:"WEBSOCKET_ADDR"`
	AllowedOrigins []string      `toml:"allowed_origins" env:"ALLOWED_ORIGINS"` // empty allows same-origin only
	MaxFrameSize   int           `toml:"max_frame_size" env:"MAX_FRAME_SIZE"`
	QueueSize      int           `toml:"queue_size" env:"QUEUE_SIZE"`
	WriteTimeout   time.Duration `toml:"write_timeout" env:"WRITE_TIMEOUT"`
	IdleTimeout    time.Duration `toml:"idle_timeout" env:"IDLE_TIMEOUT"`
}

type RateLimitConfig struct {
	Enabled           bool    `toml:"enabled" env:"ENABLED"`
	MessagesPerSecond float64 `toml:"messages_per_second" env:"MESSAGES_PER_SECOND"`
	Burst             int     `toml:"burst" env:"BURST"`
}

type DatabaseConfig struct {
	Driver       string        `toml:"driver" env:"DRIVER"` // "sqlite" or "postgres"
	DSN          string        `toml:"dsn" env:"DSN"`
	QueryTimeout time.Duration `toml:"query_timeout" env:"QUERY_TIMEOUT"`
}

type ContentConfig struct {
	AvatarDir      string `toml:"avatar_dir" env:"AVATAR_DIR"`
	AvatarURL      string `toml:"avatar_url" env:"AVATAR_URL"`
	ModVaultLimit  int    `toml:"modvault_limit" env:"MODVAULT_LIMIT"`
	MaxAvatarBytes int64  `toml:"max_avatar_bytes" env:"MAX_AVATAR_BYTES"`
}

type AuthConfig struct {
	TokenSecret string        `toml:"token_secret" env:"TOKEN_SECRET"` // empty disables resume tokens
	TokenTTL    time.Duration `toml:"token_ttl" env:"TOKEN_TTL"`
}

type LoggingConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"` // "json" or "console"
}

// Load returns the defaults overlaid with the TOML file at path (skipped when
// path is empty) and then the environment. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from .env style files into the process
// environment without overriding variables already set. Missing files are
// skipped.
func LoadEnvFile(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:8001",
			MaxFrameSize: 10 << 20,
			QueueSize:    256,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  3 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			MessagesPerSecond: 100,
			Burst:             200,
		},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "lobby.db",
			QueryTimeout: 5 * time.Second,
		},
		Content: ContentConfig{
			AvatarDir:      "avatars",
			AvatarURL:      "http://localhost/avatars",
			ModVaultLimit:  100,
			MaxAvatarBytes: 1 << 20,
		},
		Auth: AuthConfig{
			TokenTTL: 72 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" && c.Server.WebsocketAddr == "" {
		errs = append(errs, errors.New("server: addr or websocket_addr is required"))
	}
	if (c.Server.TLSCert == "") != (c.Server.TLSKey == "") {
		errs = append(errs, errors.New("server: tls_cert and tls_key must be set together"))
	}
	if c.Server.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("server: max_frame_size must be positive"))
	}
	if c.Server.QueueSize <= 0 {
		errs = append(errs, errors.New("server: queue_size must be positive"))
	}
	if c.Server.WriteTimeout <= 0 || c.Server.IdleTimeout <= 0 {
		errs = append(errs, errors.New("server: write_timeout and idle_timeout must be positive"))
	}
	if c.RateLimit.Enabled && (c.RateLimit.MessagesPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate_limit: messages_per_second and burst must be positive when enabled"))
	}
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("database: unsupported driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database: dsn is required"))
	}
	if c.Database.QueryTimeout <= 0 {
		errs = append(errs, errors.New("database: query_timeout must be positive"))
	}
	if c.Content.AvatarDir == "" {
		errs = append(errs, errors.New("content: avatar_dir is required"))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging: unsupported format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

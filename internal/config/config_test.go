package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

// TestDefaultIsValid tests that the defaults pass validation
func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	if err := Default().Validate(); err != nil {
		t.Errorf("Default().Validate() error = %v", err)
	}
}

// TestLoadFile tests overlaying a TOML file on the defaults
func TestLoadFile(t *testing.T) {
	path := writeFile(t, "lobby.toml", `
[server]
addr = "127.0.0.1:9001"
websocket_addr = "127.0.0.1:9002"
allowed_origins = ["https://faforever.com"]
idle_timeout = "90s"

[database]
driver = "postgres"
dsn = "postgres://lobby@localhost/lobby?sslmode=disable"

[logging]
level = "debug"
format = "console"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9001" || cfg.Server.WebsocketAddr != "127.0.0.1:9002" {
		t.Errorf("server addrs = %q, %q", cfg.Server.Addr, cfg.Server.WebsocketAddr)
	}
	if !reflect.DeepEqual(cfg.Server.AllowedOrigins, []string{"https://faforever.com"}) {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.IdleTimeout != 90*time.Second {
		t.Errorf("IdleTimeout = %v, want 90s", cfg.Server.IdleTimeout)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("Driver = %q, want postgres", cfg.Database.Driver)
	}
	if cfg.Logging.Format != "console" || cfg.Logging.Level != "debug" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	// Untouched sections keep their defaults.
	if cfg.RateLimit != Default().RateLimit {
		t.Errorf("RateLimit = %+v, want defaults", cfg.RateLimit)
	}
}

// TestLoadEnvOverrides tests that LOBBY_* variables win over the file
func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "lobby.toml", `
[server]
addr = "127.0.0.1:9001"

[auth]
token_secret = "from-file"
`)
	t.Setenv("LOBBY_SERVER_ADDR", "127.0.0.1:7000")
	t.Setenv("LOBBY_RATE_LIMIT_ENABLED", "false")
	t.Setenv("LOBBY_DATABASE_QUERY_TIMEOUT", "2s")
	t.Setenv("LOBBY_AUTH_TOKEN_SECRET", "from-env")
	t.Setenv("LOBBY_CONTENT_MODVAULT_LIMIT", "25")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:7000" {
		t.Errorf("Addr = %q, want env value", cfg.Server.Addr)
	}
	if cfg.RateLimit.Enabled {
		t.Error("RateLimit.Enabled = true, want env override false")
	}
	if cfg.Database.QueryTimeout != 2*time.Second {
		t.Errorf("QueryTimeout = %v, want 2s", cfg.Database.QueryTimeout)
	}
	if cfg.Auth.TokenSecret != "from-env" {
		t.Errorf("TokenSecret = %q, want from-env", cfg.Auth.TokenSecret)
	}
	if cfg.Content.ModVaultLimit != 25 {
		t.Errorf("ModVaultLimit = %d, want 25", cfg.Content.ModVaultLimit)
	}
}

// TestLoadErrors tests unreadable, unparsable and invalid files
func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(t.TempDir(), "absent.toml")},
		{"bad toml", writeFile(t, "bad.toml", "[server\naddr = 1")},
		{"invalid values", writeFile(t, "invalid.toml", "[database]\ndriver = \"mysql\"\n")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := Load(tt.path); err == nil {
				t.Errorf("Load(%s) succeeded", tt.path)
			}
		})
	}
}

// TestValidate tests each rejected setting
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no listeners", func(c *Config) { c.Server.Addr = "" }},
		{"cert without key", func(c *Config) { c.Server.TLSCert = "cert.pem" }},
		{"zero frame size", func(c *Config) { c.Server.MaxFrameSize = 0 }},
		{"zero queue", func(c *Config) { c.Server.QueueSize = 0 }},
		{"zero idle timeout", func(c *Config) { c.Server.IdleTimeout = 0 }},
		{"enabled limit without rate", func(c *Config) { c.RateLimit.MessagesPerSecond = 0 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"empty dsn", func(c *Config) { c.Database.DSN = "" }},
		{"zero query timeout", func(c *Config) { c.Database.QueryTimeout = 0 }},
		{"no avatar dir", func(c *Config) { c.Content.AvatarDir = "" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() accepted an invalid config")
			}
		})
	}

	cfg := Default()
	cfg.Server.Addr = ""
	cfg.Server.WebsocketAddr = ":8080"
	cfg.RateLimit = RateLimitConfig{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("websocket-only config with rate limiting off: %v", err)
	}
}

// TestLoadEnvFile tests .env loading and precedence
func TestLoadEnvFile(t *testing.T) {
	t.Setenv("LOBBY_LOGGING_LEVEL", "warn")
	path := writeFile(t, ".env", "LOBBY_LOGGING_LEVEL=debug\nLOBBY_DATABASE_DSN=from-dotenv.db\n")
	t.Cleanup(func() { os.Unsetenv("LOBBY_DATABASE_DSN") })

	if err := LoadEnvFile(filepath.Join(t.TempDir(), "missing.env"), path); err != nil {
		t.Fatalf("LoadEnvFile() error = %v", err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Level = %q, want the already-set warn", cfg.Logging.Level)
	}
	if cfg.Database.DSN != "from-dotenv.db" {
		t.Errorf("DSN = %q, want from-dotenv.db", cfg.Database.DSN)
	}
}

// Package lobby assembles a lobby server from configuration.
package lobby

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/auth"
	"github.com/luciancaetano/kephaslobby/internal/config"
	"github.com/luciancaetano/kephaslobby/internal/dispatch"
	"github.com/luciancaetano/kephaslobby/internal/games"
	"github.com/luciancaetano/kephaslobby/internal/players"
	"github.com/luciancaetano/kephaslobby/internal/server"
	"github.com/luciancaetano/kephaslobby/internal/store"
)

type Config = config.Config
type Store = store.Store
type RecordStore = dispatch.RecordStore
type CheckOriginFn = server.CheckOriginFn
type OnConnectFn = server.OnConnectFn
type OnDisconnectFn = server.OnDisconnectFn

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads the TOML file at path (optional) and applies LOBBY_*
// environment overrides.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// OpenStore opens the record store described by cfg.Database and cfg.Content.
func OpenStore(cfg *Config) (*Store, error) {
	return store.Open(store.Options{
		Driver:    cfg.Database.Driver,
		DSN:       cfg.Database.DSN,
		AvatarDir: cfg.Content.AvatarDir,
		AvatarURL: cfg.Content.AvatarURL,
	})
}

// Deps are the collaborators of a lobby. Store is required; nil registries
// are created empty.
type Deps struct {
	Store   RecordStore
	Games   *games.Registry
	Players *players.Registry
	Logger  *zap.Logger

	OnConnect    OnConnectFn
	OnDisconnect OnDisconnectFn
}

// New builds a lobby server from cfg. The server is not started.
//
// Example:
//
//	cfg, err := lobby.LoadConfig("lobby.toml")
//	if err != nil {
//	    return err
//	}
//	st, err := lobby.OpenStore(cfg)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
//	srv, err := lobby.New(cfg, lobby.Deps{Store: st, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	srv.Start(ctx)
func New(cfg *Config, deps Deps) (kephaslobby.Server, error) {
	if cfg == nil {
		return nil, errors.New("lobby: config is required")
	}
	if deps.Store == nil {
		return nil, errors.New("lobby: store is required")
	}
	if deps.Games == nil {
		deps.Games = games.NewRegistry()
	}
	if deps.Players == nil {
		deps.Players = players.NewRegistry()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	var tokens dispatch.TokenIssuer
	if cfg.Auth.TokenSecret != "" {
		issuer, err := auth.NewIssuer(cfg.Auth.TokenSecret, cfg.Auth.TokenTTL)
		if err != nil {
			return nil, err
		}
		tokens = issuer
	}

	d, err := dispatch.New(dispatch.Deps{
		Games:          deps.Games,
		Players:        deps.Players,
		Store:          deps.Store,
		Tokens:         tokens,
		Log:            deps.Logger.Named("dispatch"),
		ModVaultLimit:  cfg.Content.ModVaultLimit,
		MaxAvatarBytes: cfg.Content.MaxAvatarBytes,
		QueryTimeout:   cfg.Database.QueryTimeout,
	})
	if err != nil {
		return nil, err
	}

	var tlsConfig *tls.Config
	if cfg.Server.TLSCert != "" {
		cert, err := tls.LoadX509KeyPair(cfg.Server.TLSCert, cfg.Server.TLSKey)
		if err != nil {
			return nil, fmt.Errorf("lobby: load tls key pair: %w", err)
		}
		tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}
	}

	return server.New(server.Config{
		Addr:          cfg.Server.Addr,
		TLS:           tlsConfig,
		WebsocketAddr: cfg.Server.WebsocketAddr,
		CheckOrigin:   CheckOrigins(cfg.Server.AllowedOrigins),
		RateLimit: &server.RateLimitConfig{
			MessagesPerSecond: rate.Limit(cfg.RateLimit.MessagesPerSecond),
			Burst:             cfg.RateLimit.Burst,
			Enabled:           cfg.RateLimit.Enabled,
		},
		MaxFrameSize: cfg.Server.MaxFrameSize,
		QueueSize:    cfg.Server.QueueSize,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		OnConnect:    deps.OnConnect,
		OnDisconnect: deps.OnDisconnect,
	}, server.Deps{
		Dispatcher: d,
		Games:      deps.Games,
		Players:    deps.Players,
		Log:        deps.Logger.Named("server"),
	})
}

// CheckOrigins allows websocket upgrades from the listed origins. An empty
// list returns nil, which keeps the same-origin check. "*" allows any origin.
func CheckOrigins(origins []string) CheckOriginFn {
	if len(origins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		if o == "*" {
			return AllOrigins()
		}
		allowed[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		_, ok := allowed[strings.ToLower(r.Header.Get("Origin"))]
		return ok
	}
}

// AllOrigins returns a checkOrigin function that allows all origins
func AllOrigins() CheckOriginFn {
	return func(r *http.Request) bool {
		return true
	}
}

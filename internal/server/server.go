// Package server accepts lobby connections and drives one session per
// connection.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/games"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

var ErrAlreadyRunning = errors.New("server: already running")

const (
	DefaultIdleTimeout = 3 * time.Minute
	websocketPath      = "/ws"
)

// CheckOriginFn validates the origin of a websocket upgrade request.
type CheckOriginFn = func(r *http.Request) bool

// OnConnectFn is called once a connection has a session, before its first
// frame is read. It runs on the connection's goroutine.
type OnConnectFn = func(sess kephaslobby.Session)

// OnDisconnectFn is called after a session's cleanup. voluntary is true when
// the client closed the connection.
type OnDisconnectFn = func(sess kephaslobby.Session, voluntary bool)

// Dispatcher handles decoded frames for a session.
type Dispatcher interface {
	Dispatch(ctx context.Context, sess *session.Session, msg protocol.Message) error
}

// GameRegistry is the part of the game registry the server drives.
type GameRegistry interface {
	Subscribe(fn games.Listener)
	CloseHostedBy(login string) []*games.Game
}

// PlayerRegistry is the part of the player registry the server drives.
type PlayerRegistry interface {
	Remove(login string)
}

// Config configures listeners and per-connection limits.
type Config struct {
	// Addr is the TCP listen address. Empty disables the TCP listener.
	Addr string
	// TLS wraps the TCP listener when set.
	TLS *tls.Config
	// WebsocketAddr is the websocket listen address. Empty disables it.
	WebsocketAddr string
	CheckOrigin   CheckOriginFn

	RateLimit    *RateLimitConfig
	MaxFrameSize int
	QueueSize    int
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	OnConnect    OnConnectFn
	OnDisconnect OnDisconnectFn
}

// Deps are the collaborators a Server drives.
type Deps struct {
	Dispatcher Dispatcher
	Games      GameRegistry
	Players    PlayerRegistry
	Log        *zap.Logger
}

// Server implements kephaslobby.Server.
type Server struct {
	cfg      Config
	deps     Deps
	log      *zap.Logger
	upgrader websocket.Upgrader

	clients sync.Map // map[string]*client
	count   atomic.Int64

	mu         sync.RWMutex
	running    bool
	ctx        context.Context
	cancel     context.CancelFunc
	listener   net.Listener
	wsListener net.Listener
	httpServer *http.Server
	wg         sync.WaitGroup
}

var _ kephaslobby.Server = (*Server)(nil)

// New creates a Server and subscribes it to game registry changes, so every
// created or closed game is broadcast to all sessions.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Dispatcher == nil || deps.Games == nil || deps.Players == nil {
		return nil, errors.New("server: dispatcher, games and players are required")
	}
	if cfg.Addr == "" && cfg.WebsocketAddr == "" {
		return nil, errors.New("server: no listen address configured")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if cfg.RateLimit == nil {
		cfg.RateLimit = DefaultRateLimitConfig()
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = protocol.DefaultMaxFrameSize()
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}

	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  deps.Log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     cfg.CheckOrigin,
		},
	}
	deps.Games.Subscribe(s.broadcastGame)
	return s, nil
}

// Start binds the configured listeners and serves connections in the
// background until Stop is called or ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	var ln, wsLn net.Listener
	var err error
	if s.cfg.Addr != "" {
		if ln, err = net.Listen("tcp", s.cfg.Addr); err != nil {
			return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
		}
		if s.cfg.TLS != nil {
			ln = tls.NewListener(ln, s.cfg.TLS)
		}
	}
	if s.cfg.WebsocketAddr != "" {
		if wsLn, err = net.Listen("tcp", s.cfg.WebsocketAddr); err != nil {
			if ln != nil {
				ln.Close()
			}
			return fmt.Errorf("server: listen %s: %w", s.cfg.WebsocketAddr, err)
		}
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.listener = ln
	s.wsListener = wsLn

	if ln != nil {
		s.wg.Add(1)
		go s.acceptLoop(ln)
		s.log.Info("lobby listening", zap.String("addr", ln.Addr().String()), zap.Bool("tls", s.cfg.TLS != nil))
	}
	if wsLn != nil {
		mux := http.NewServeMux()
		mux.HandleFunc(websocketPath, s.handleWebSocket)
		s.httpServer = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := s.httpServer.Serve(wsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.log.Error("websocket listener failed", zap.Error(err))
			}
		}()
		s.log.Info("lobby websocket listening", zap.String("addr", wsLn.Addr().String()), zap.String("path", websocketPath))
	}

	go func(runCtx context.Context) {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			s.Stop(stopCtx)
		case <-runCtx.Done():
		}
	}(s.ctx)

	return nil
}

// Stop closes the listeners and every live session, then waits for the
// connection goroutines to finish or ctx to expire.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cancel()
	ln, httpServer := s.listener, s.httpServer
	s.listener, s.wsListener, s.httpServer = nil, nil, nil
	s.mu.Unlock()

	var errs []error
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	s.clients.Range(func(_, value any) bool {
		value.(*client).close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	s.log.Info("lobby stopped")
	return errors.Join(errs...)
}

// Addr returns the bound TCP address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// WebsocketAddr returns the bound websocket address, or nil when not listening.
func (s *Server) WebsocketAddr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.wsListener == nil {
		return nil
	}
	return s.wsListener.Addr()
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	return int(s.count.Load())
}

// Broadcast encodes msg once and offers it to every live session without
// blocking. A session whose outbound queue is full is disconnected.
func (s *Server) Broadcast(ctx context.Context, msg map[string]any) error {
	return s.fanout(ctx, msg, func(*client) bool { return true })
}

func (s *Server) fanout(ctx context.Context, msg map[string]any, include func(*client) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := protocol.Encode(protocol.Message(msg))
	if err != nil {
		return fmt.Errorf("server: broadcast: %w", err)
	}

	s.clients.Range(func(_, value any) bool {
		c := value.(*client)
		if !include(c) {
			return true
		}
		if err := c.writer.Offer(data); errors.Is(err, session.ErrQueueFull) {
			s.log.Warn("outbound queue full, disconnecting",
				zap.String("session", c.sess.ID()),
				zap.String("remote_addr", c.sess.RemoteAddr()),
			)
			c.close()
		}
		return true
	})
	return nil
}

// broadcastGame sends a game record to logged in sessions only.
func (s *Server) broadcastGame(g *games.Game) {
	err := s.fanout(context.Background(), g.Record(), func(c *client) bool {
		_, ok := c.sess.Identity()
		return ok
	})
	if err != nil {
		s.log.Error("game broadcast failed", zap.Int64("game", g.ID()), zap.Error(err))
	}
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.log.Error("accept failed", zap.Error(err))
			return
		}
		if !s.track() {
			nc.Close()
			return
		}
		go s.serve(nc)
	}
}

// handleWebSocket upgrades the request and serves it as a lobby connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	if !s.track() {
		ws.Close()
		return
	}
	ping := s.cfg.IdleTimeout * 9 / 10
	go s.serve(newWSConn(ws, ping, s.cfg.IdleTimeout))
}

// track registers a connection goroutine unless the server is stopping.
func (s *Server) track() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ctx == nil {
		return context.Background()
	}
	return s.ctx
}

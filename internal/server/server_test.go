package server

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/luciancaetano/kephaslobby/internal/games"
	"github.com/luciancaetano/kephaslobby/internal/players"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(context.Context, *session.Session, protocol.Message) error {
	return nil
}

// TestDefaultRateLimitConfig tests the default rate limit configuration
func TestDefaultRateLimitConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRateLimitConfig()

	if !config.Enabled {
		t.Error("Expected rate limiting to be enabled by default")
	}
	if config.MessagesPerSecond != 100 {
		t.Errorf("MessagesPerSecond = %v, want 100", config.MessagesPerSecond)
	}
	if config.Burst != 200 {
		t.Errorf("Burst = %v, want 200", config.Burst)
	}
}

// TestRateLimitConfigLimiter tests limiter construction for each configuration
func TestRateLimitConfigLimiter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      *RateLimitConfig
		wantLimiter bool
		wantBurst   int
	}{
		{"default config", DefaultRateLimitConfig(), true, 200},
		{"no rate limit", NoRateLimit(), false, 0},
		{"nil config", nil, false, 0},
		{"custom config", &RateLimitConfig{MessagesPerSecond: 50, Burst: 100, Enabled: true}, true, 100},
		{"disabled custom config", &RateLimitConfig{MessagesPerSecond: rate.Inf, Burst: 1}, false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			limiter := tt.config.newLimiter()
			if (limiter != nil) != tt.wantLimiter {
				t.Fatalf("newLimiter() = %v, want limiter %v", limiter, tt.wantLimiter)
			}
			if limiter != nil && limiter.Burst() != tt.wantBurst {
				t.Errorf("Burst() = %d, want %d", limiter.Burst(), tt.wantBurst)
			}
		})
	}
}

// TestNewValidation tests the required collaborators and addresses
func TestNewValidation(t *testing.T) {
	t.Parallel()

	deps := Deps{Dispatcher: nopDispatcher{}, Games: games.NewRegistry(), Players: players.NewRegistry()}

	if _, err := New(Config{Addr: ":0"}, Deps{}); err == nil {
		t.Error("New() without collaborators succeeded")
	}
	if _, err := New(Config{}, deps); err == nil {
		t.Error("New() without listen addresses succeeded")
	}
	if _, err := New(Config{Addr: ":0"}, deps); err != nil {
		t.Errorf("New() error = %v", err)
	}
}

// TestStartStop tests the listener lifecycle
func TestStartStop(t *testing.T) {
	t.Parallel()

	srv, err := New(Config{Addr: "127.0.0.1:0", WebsocketAddr: "127.0.0.1:0"}, Deps{
		Dispatcher: nopDispatcher{},
		Games:      games.NewRegistry(),
		Players:    players.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := srv.Start(ctx); err != ErrAlreadyRunning {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
	if srv.Addr() == nil || srv.WebsocketAddr() == nil {
		t.Fatal("listeners not bound")
	}
	addr := srv.Addr().String()

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := srv.Stop(stopCtx); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if conn, err := net.DialTimeout("tcp", addr, time.Second); err == nil {
		conn.Close()
		t.Error("listener still accepting after Stop()")
	}
}

// TestStartCancelledContextStops tests that cancelling the start context stops the server
func TestStartCancelledContextStops(t *testing.T) {
	t.Parallel()

	srv, err := New(Config{Addr: "127.0.0.1:0"}, Deps{
		Dispatcher: nopDispatcher{},
		Games:      games.NewRegistry(),
		Players:    players.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	cancel()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Addr() != nil {
		if time.Now().After(deadline) {
			t.Fatal("server still running after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestBroadcastDisconnectsFullQueue tests that a stalled client is dropped, not waited on
func TestBroadcastDisconnectsFullQueue(t *testing.T) {
	t.Parallel()

	srv, err := New(Config{Addr: ":0"}, Deps{
		Dispatcher: nopDispatcher{},
		Games:      games.NewRegistry(),
		Players:    players.NewRegistry(),
		Log:        zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// Nobody reads the far end, so the write pump blocks on its first frame.
	near, far := net.Pipe()
	defer far.Close()
	writer := session.NewWriter(near, session.WriterConfig{QueueSize: 1, WriteTimeout: time.Minute})
	stalled := &client{
		conn:   near,
		sess:   session.New(context.Background(), "stalled", "pipe", writer),
		writer: writer,
	}
	srv.clients.Store("stalled", stalled)

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := srv.Broadcast(context.Background(), map[string]any{"command": "game_info", "uid": i}); err != nil {
			t.Fatalf("Broadcast() error = %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Broadcast() blocked for %v", elapsed)
	}
	if stalled.sess.Context().Err() == nil {
		t.Error("stalled session was not disconnected")
	}
}

// TestBroadcastRejectsCancelledContext tests the context check
func TestBroadcastRejectsCancelledContext(t *testing.T) {
	t.Parallel()

	srv, err := New(Config{Addr: ":0"}, Deps{
		Dispatcher: nopDispatcher{},
		Games:      games.NewRegistry(),
		Players:    players.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := srv.Broadcast(ctx, map[string]any{"command": "game_info"}); err != context.Canceled {
		t.Errorf("Broadcast() error = %v, want context.Canceled", err)
	}
}

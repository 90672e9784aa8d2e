package kephaslobby

import "context"

// Server defines the lobby connection manager.
//
// A Server accepts client connections (plain TCP, optionally TLS-wrapped, and
// optionally websocket), binds one Session to each of them and hands every
// decoded frame to the command dispatcher in arrival order.
//
// Example usage:
//
//	import "github.com/luciancaetano/kephaslobby/lobby"
//
//	server, err := lobby.New(cfg, lobby.Deps{Store: store, Logger: logger})
//	if err != nil {
//	    return err
//	}
//	server.Start(ctx)
type Server interface {
	// Start binds the configured listeners and begins accepting connections.
	// It returns once the listeners are bound; connections are served in
	// background goroutines until Stop is called or ctx is cancelled.
	//
	// Returns an error if the server is already running or if a listener
	// cannot be bound.
	Start(ctx context.Context) error

	// Stop closes the listeners and every live session.
	Stop(ctx context.Context) error

	// Broadcast sends one message to every live session.
	//
	// Delivery never blocks on a slow client: a session whose outbound queue
	// is full is disconnected instead.
	Broadcast(ctx context.Context, msg map[string]any) error

	// Sessions returns the number of live sessions.
	Sessions() int
}

// Session is the read-only view of one connected client exposed to
// connection callbacks.
type Session interface {
	// ID returns the unique identifier assigned when the connection was accepted.
	ID() string

	// RemoteAddr returns the client's remote network address.
	RemoteAddr() string

	// Login returns the authenticated player's login, or false before the
	// client has logged in.
	Login() (string, bool)

	// Context is cancelled when the connection closes.
	Context() context.Context
}

// Package games holds the registry of active lobby games.
package games

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/luciancaetano/kephaslobby/internal/protocol"
)

// State is the lifecycle state of a game.
type State string

const (
	StateOpen   State = "open"
	StateClosed State = "closed"
)

// Visibility values accepted by CreateGame.
const (
	VisibilityPublic  = "public"
	VisibilityFriends = "friends"
)

var (
	ErrNoName            = errors.New("games: name is required")
	ErrNoHost            = errors.New("games: host is required")
	ErrInvalidVisibility = errors.New("games: invalid visibility")
)

// Options describes a game to create.
type Options struct {
	Visibility string
	GameMode   string
	Name       string
	Host       string
	Password   string
	MapName    string
	Version    string
}

// Game is one hosted game. Its fields are read and changed under its own
// lock, so Record never observes a partial update.
type Game struct {
	mu sync.RWMutex

	id         int64
	title      string
	mode       string
	mapName    string
	visibility string
	password   string
	version    string
	host       string
	state      State
}

// ID returns the registry-assigned identifier.
func (g *Game) ID() int64 {
	return g.id
}

// Host returns the login of the hosting player.
func (g *Game) Host() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.host
}

// State returns the current lifecycle state.
func (g *Game) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Record returns the flat wire form of the game. The password itself is
// never included.
func (g *Game) Record() protocol.Message {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return protocol.Message{
		"command":            "game_info",
		"uid":                g.id,
		"title":              g.title,
		"featured_mod":       g.mode,
		"mapname":            g.mapName,
		"visibility":         g.visibility,
		"password_protected": g.password != "",
		"host":               g.host,
		"version":            g.version,
		"state":              string(g.state),
	}
}

func (g *Game) close() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateClosed {
		return false
	}
	g.state = StateClosed
	return true
}

// Listener is notified after a game is created or closed.
type Listener func(g *Game)

// Registry is the set of open games. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	nextID    int64
	games     map[int64]*Game
	listeners []Listener
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{games: make(map[int64]*Game)}
}

// Subscribe registers fn to be called on every create and close.
// Listeners run on the goroutine that caused the change.
func (r *Registry) Subscribe(fn Listener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

// CreateGame validates opts and registers a new open game.
func (r *Registry) CreateGame(opts Options) (*Game, error) {
	if strings.TrimSpace(opts.Name) == "" {
		return nil, ErrNoName
	}
	if opts.Host == "" {
		return nil, ErrNoHost
	}
	visibility := opts.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}
	if visibility != VisibilityPublic && visibility != VisibilityFriends {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVisibility, opts.Visibility)
	}

	r.mu.Lock()
	r.nextID++
	g := &Game{
		id:         r.nextID,
		title:      opts.Name,
		mode:       opts.GameMode,
		mapName:    opts.MapName,
		visibility: visibility,
		password:   opts.Password,
		version:    opts.Version,
		host:       opts.Host,
		state:      StateOpen,
	}
	r.games[g.id] = g
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, g)
	return g, nil
}

// Get returns the open game with the given id.
func (r *Registry) Get(id int64) (*Game, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.games[id]
	return g, ok
}

// AllGames returns the open games ordered by id.
func (r *Registry) AllGames() []*Game {
	r.mu.RLock()
	out := make([]*Game, 0, len(r.games))
	for _, g := range r.games {
		out = append(out, g)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// CloseHostedBy closes and removes every open game hosted by login and
// returns them.
func (r *Registry) CloseHostedBy(login string) []*Game {
	r.mu.Lock()
	var closed []*Game
	for id, g := range r.games {
		if !strings.EqualFold(g.Host(), login) {
			continue
		}
		if g.close() {
			closed = append(closed, g)
		}
		delete(r.games, id)
	}
	listeners := r.listeners
	r.mu.Unlock()

	sort.Slice(closed, func(i, j int) bool { return closed[i].id < closed[j].id })
	for _, g := range closed {
		notify(listeners, g)
	}
	return closed
}

func notify(listeners []Listener, g *Game) {
	for _, fn := range listeners {
		fn(g)
	}
}

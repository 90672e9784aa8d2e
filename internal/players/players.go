// Package players tracks the players currently online in the lobby.
package players

import (
	"errors"
	"strings"
	"sync"
)

// ErrAlreadyOnline is returned when a login is registered twice.
var ErrAlreadyOnline = errors.New("players: login already online")

// Player is an authenticated lobby user.
type Player struct {
	ID    int64
	Login string
	Admin bool
}

// Registry is the set of online players. It is safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	online map[string]Player
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{online: make(map[string]Player)}
}

func key(login string) string {
	return strings.ToLower(login)
}

// Add marks p as online. Logins compare case-insensitively.
func (r *Registry) Add(p Player) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(p.Login)
	if _, ok := r.online[k]; ok {
		return ErrAlreadyOnline
	}
	r.online[k] = p
	return nil
}

// Remove marks login as offline. Removing an unknown login is a no-op.
func (r *Registry) Remove(login string) {
	r.mu.Lock()
	delete(r.online, key(login))
	r.mu.Unlock()
}

// Lookup returns the online player with the given login.
func (r *Registry) Lookup(login string) (Player, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.online[key(login)]
	return p, ok
}

// IsAdmin reports whether login is online with administrator privilege.
func (r *Registry) IsAdmin(login string) bool {
	p, ok := r.Lookup(login)
	return ok && p.Admin
}

// Count returns the number of online players.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.online)
}

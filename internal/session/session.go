// Package session holds per-connection lobby state and the outbound write
// path bound to each connection.
package session

import (
	"context"
	"sort"
	"sync"

	"github.com/luciancaetano/kephaslobby/internal/players"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
)

// LaunchAction tracks whether the client reported a running game.
type LaunchAction int

const (
	Idle LaunchAction = iota
	Launched
)

func (a LaunchAction) String() string {
	switch a {
	case Launched:
		return "LAUNCHED"
	default:
		return "IDLE"
	}
}

// Outbound is the write side of a connection.
type Outbound interface {
	Send(ctx context.Context, msg protocol.Message) error
	SendMessages(ctx context.Context, msgs []protocol.Message) error
}

// Session is the state of one connected client. A session is mutated by the
// goroutine that reads its connection; the lock lets other goroutines read
// identity and lists consistently.
type Session struct {
	id         string
	remoteAddr string
	ctx        context.Context
	cancel     context.CancelFunc
	out        Outbound

	mu         sync.RWMutex
	identity   *players.Player
	friends    map[string]struct{}
	foes       map[string]struct{}
	ladderMaps []int
	launch     LaunchAction
}

// New creates a session writing to out. The session context derives from
// parent and is cancelled by Close.
func New(parent context.Context, id, remoteAddr string, out Outbound) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		id:         id,
		remoteAddr: remoteAddr,
		ctx:        ctx,
		cancel:     cancel,
		out:        out,
		friends:    make(map[string]struct{}),
		foes:       make(map[string]struct{}),
		ladderMaps: []int{},
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// RemoteAddr returns the client's remote network address.
func (s *Session) RemoteAddr() string {
	return s.remoteAddr
}

// Context is cancelled when the session closes.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Close cancels the session context, aborting operations tied to it.
func (s *Session) Close() {
	s.cancel()
}

// Send writes one message to the client.
func (s *Session) Send(ctx context.Context, msg protocol.Message) error {
	return s.out.Send(ctx, msg)
}

// SendMessages writes msgs to the client as one ordered batch.
func (s *Session) SendMessages(ctx context.Context, msgs []protocol.Message) error {
	return s.out.SendMessages(ctx, msgs)
}

// Identity returns the authenticated player.
func (s *Session) Identity() (players.Player, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return players.Player{}, false
	}
	return *s.identity, true
}

// Login returns the authenticated player's login.
func (s *Session) Login() (string, bool) {
	p, ok := s.Identity()
	return p.Login, ok
}

// SetIdentity records the authenticated player.
func (s *Session) SetIdentity(p players.Player) {
	s.mu.Lock()
	s.identity = &p
	s.mu.Unlock()
}

// Friends returns the friend logins in sorted order.
func (s *Session) Friends() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.friends)
}

// SetFriends replaces the friend list.
func (s *Session) SetFriends(logins []string) {
	set := toSet(logins)
	s.mu.Lock()
	s.friends = set
	s.mu.Unlock()
}

// Foes returns the foe logins in sorted order.
func (s *Session) Foes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.foes)
}

// SetFoes replaces the foe list.
func (s *Session) SetFoes(logins []string) {
	set := toSet(logins)
	s.mu.Lock()
	s.foes = set
	s.mu.Unlock()
}

// LadderMaps returns a copy of the ladder map selection.
func (s *Session) LadderMaps() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]int{}, s.ladderMaps...)
}

// SetLadderMaps replaces the ladder map selection; an empty slice clears it.
func (s *Session) SetLadderMaps(maps []int) {
	cp := append([]int{}, maps...)
	s.mu.Lock()
	s.ladderMaps = cp
	s.mu.Unlock()
}

// LaunchAction returns the current launch state.
func (s *Session) LaunchAction() LaunchAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.launch
}

// ApplyFAState drives the launch state from a reported game state value.
// Only the exact string "on" launches, and only from Idle; anything else,
// including nil, resets to Idle. It returns the resulting state.
func (s *Session) ApplyFAState(value any) LaunchAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := value.(string); ok && v == "on" {
		if s.launch == Idle {
			s.launch = Launched
		}
		return s.launch
	}
	s.launch = Idle
	return s.launch
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

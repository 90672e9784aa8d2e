package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/luciancaetano/kephaslobby/internal/auth"
	"github.com/luciancaetano/kephaslobby/internal/games"
	"github.com/luciancaetano/kephaslobby/internal/players"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
	"github.com/luciancaetano/kephaslobby/internal/store"
)

var errBoom = errors.New("boom")

// recorder captures every outbound send as one batch.
type recorder struct {
	mu      sync.Mutex
	batches [][]protocol.Message
}

func (r *recorder) Send(_ context.Context, msg protocol.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, []protocol.Message{msg})
	return nil
}

func (r *recorder) SendMessages(_ context.Context, msgs []protocol.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]protocol.Message{}, msgs...))
	return nil
}

func (r *recorder) all() []protocol.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []protocol.Message
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

type fakeGames struct {
	*games.Registry

	mu      sync.Mutex
	created []games.Options
	err     error
}

func (f *fakeGames) CreateGame(opts games.Options) (*games.Game, error) {
	f.mu.Lock()
	f.created = append(f.created, opts)
	err := f.err
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Registry.CreateGame(opts)
}

// fakeStore records every update it is asked to issue.
type fakeStore struct {
	mu       sync.Mutex
	mods     map[string]*store.Mod
	order    []string
	avatars  []store.Avatar
	accounts map[string]store.Account
	updates  []string
	added    map[string][]byte
	err      error
	addErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		mods:     make(map[string]*store.Mod),
		accounts: make(map[string]store.Account),
		added:    make(map[string][]byte),
	}
}

func (f *fakeStore) addMod(m store.Mod) {
	f.mods[m.UID] = &m
	f.order = append(f.order, m.UID)
}

func (f *fakeStore) TopMods(_ context.Context, limit int) ([]store.Mod, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []store.Mod
	for _, uid := range f.order {
		if len(out) == limit {
			break
		}
		out = append(out, *f.mods[uid])
	}
	return out, nil
}

func (f *fakeStore) LikeMod(_ context.Context, uid string) (store.Mod, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.Mod{}, false, f.err
	}
	m, ok := f.mods[uid]
	if !ok {
		return store.Mod{}, false, nil
	}
	m.Likes++
	f.updates = append(f.updates, "like:"+uid)
	return *m, true, nil
}

func (f *fakeStore) IncrementModDownloads(_ context.Context, uid *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	key := "<nil>"
	if uid != nil {
		key = *uid
		if m, ok := f.mods[*uid]; ok {
			m.Downloads++
		}
	}
	f.updates = append(f.updates, "download:"+key)
	return nil
}

func (f *fakeStore) AddAvatar(_ context.Context, name, tooltip string, image []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added[name] = image
	f.avatars = append(f.avatars, store.Avatar{URL: "/avatars/" + name, Tooltip: tooltip})
	return nil
}

func (f *fakeStore) ListAvatars(context.Context, int64) ([]store.Avatar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]store.Avatar{}, f.avatars...), nil
}

func (f *fakeStore) ClearAvatarSelection(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, "clear")
	return nil
}

func (f *fakeStore) SelectAvatar(_ context.Context, _ int64, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, "select:"+url)
	return nil
}

func (f *fakeStore) Account(_ context.Context, login string) (store.Account, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.Account{}, false, f.err
	}
	acc, ok := f.accounts[strings.ToLower(login)]
	return acc, ok, nil
}

func (f *fakeStore) updateLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.updates...)
}

type fakeTokens struct{}

func (fakeTokens) Issue(_ int64, login string) (string, error) {
	return "token-" + login, nil
}

func (fakeTokens) Verify(token string) (string, error) {
	login, ok := strings.CutPrefix(token, "token-")
	if !ok {
		return "", auth.ErrInvalidToken
	}
	return login, nil
}

type fixture struct {
	d       *Dispatcher
	games   *fakeGames
	players *players.Registry
	store   *fakeStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		games:   &fakeGames{Registry: games.NewRegistry()},
		players: players.NewRegistry(),
		store:   newFakeStore(),
	}
	d, err := New(Deps{
		Games:   f.games,
		Players: f.players,
		Store:   f.store,
		Tokens:  fakeTokens{},
		Log:     zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	f.d = d
	return f
}

// session returns an anonymous session and the recorder behind it.
func (f *fixture) session() (*session.Session, *recorder) {
	rec := &recorder{}
	return session.New(context.Background(), "sess-1", "pipe", rec), rec
}

// login returns a session already authenticated as login.
func (f *fixture) login(t *testing.T, id int64, login string, admin bool) (*session.Session, *recorder) {
	t.Helper()

	sess, rec := f.session()
	p := players.Player{ID: id, Login: login, Admin: admin}
	if err := f.players.Add(p); err != nil {
		t.Fatalf("players.Add() failed: %v", err)
	}
	sess.SetIdentity(p)
	return sess, rec
}

func (f *fixture) dispatch(sess *session.Session, msg protocol.Message) error {
	return f.d.Dispatch(context.Background(), sess, msg)
}

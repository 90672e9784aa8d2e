// Package dispatch routes decoded client messages to command handlers.
//
// Every handler receives the issuing session and the raw message. Handlers
// validate their own fields and return errors wrapping the kephaslobby
// failure sentinels; they reply through the session only when the command
// defines a reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/games"
	"github.com/luciancaetano/kephaslobby/internal/players"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
	"github.com/luciancaetano/kephaslobby/internal/store"
)

const (
	DefaultModVaultLimit  = 100
	DefaultMaxAvatarBytes = 1 << 20
	DefaultQueryTimeout   = 5 * time.Second
)

// GameRegistry creates and lists active games.
type GameRegistry interface {
	CreateGame(opts games.Options) (*games.Game, error)
	AllGames() []*games.Game
}

// PlayerRegistry tracks online players.
type PlayerRegistry interface {
	Add(p players.Player) error
	Lookup(login string) (players.Player, bool)
	IsAdmin(login string) bool
}

// RecordStore persists mod vault, avatar and account records. Every
// read-then-write sequence is a single call.
type RecordStore interface {
	TopMods(ctx context.Context, limit int) ([]store.Mod, error)
	LikeMod(ctx context.Context, uid string) (store.Mod, bool, error)
	IncrementModDownloads(ctx context.Context, uid *string) error
	AddAvatar(ctx context.Context, name, tooltip string, image []byte) error
	ListAvatars(ctx context.Context, playerID int64) ([]store.Avatar, error)
	ClearAvatarSelection(ctx context.Context, playerID int64) error
	SelectAvatar(ctx context.Context, playerID int64, url string) error
	Account(ctx context.Context, login string) (store.Account, bool, error)
}

// TokenIssuer signs and verifies session resume tokens.
type TokenIssuer interface {
	Issue(playerID int64, login string) (string, error)
	Verify(token string) (string, error)
}

// Deps holds the collaborators shared by all handlers.
type Deps struct {
	Games   GameRegistry
	Players PlayerRegistry
	Store   RecordStore
	Tokens  TokenIssuer
	Log     *zap.Logger

	// ModVaultLimit caps the mods returned by modvault start.
	ModVaultLimit int
	// MaxAvatarBytes caps the decompressed size of an uploaded avatar.
	MaxAvatarBytes int64
	// QueryTimeout bounds each Record Store call.
	QueryTimeout time.Duration
}

// HandlerFunc handles one command for one session.
type HandlerFunc func(ctx context.Context, sess *session.Session, msg protocol.Message) error

type route struct {
	handle HandlerFunc
	// public routes run before login.
	public bool
}

// Dispatcher maps the "command" discriminator to handlers. It is safe for
// concurrent use by many sessions.
type Dispatcher struct {
	deps     Deps
	log      *zap.Logger
	tracer   trace.Tracer
	commands map[string]route
	modvault map[string]HandlerFunc
	avatar   map[string]HandlerFunc
}

// New builds a Dispatcher with the lobby command table.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Games == nil || deps.Players == nil || deps.Store == nil {
		return nil, errors.New("dispatch: games, players and store are required")
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.ModVaultLimit <= 0 {
		deps.ModVaultLimit = DefaultModVaultLimit
	}
	if deps.MaxAvatarBytes <= 0 {
		deps.MaxAvatarBytes = DefaultMaxAvatarBytes
	}
	if deps.QueryTimeout <= 0 {
		deps.QueryTimeout = DefaultQueryTimeout
	}

	d := &Dispatcher{
		deps:   deps,
		log:    deps.Log,
		tracer: otel.Tracer("github.com/luciancaetano/kephaslobby/internal/dispatch"),
	}
	d.commands = map[string]route{
		kephaslobby.CmdAskSession: {handle: d.askSession, public: true},
		kephaslobby.CmdHello:      {handle: d.hello, public: true},
		kephaslobby.CmdPing:       {handle: d.ping},
		kephaslobby.CmdGameHost:   {handle: d.gameHost},
		kephaslobby.CmdModVault:   {handle: d.modVault},
		kephaslobby.CmdSocial:     {handle: d.social},
		kephaslobby.CmdAvatar:     {handle: d.avatarCommand},
		kephaslobby.CmdFAState:    {handle: d.faState},
		kephaslobby.CmdLadderMaps: {handle: d.ladderMaps},
	}
	d.modvault = map[string]HandlerFunc{
		kephaslobby.ModVaultStart:      d.modVaultStart,
		kephaslobby.ModVaultLike:       d.modVaultLike,
		kephaslobby.ModVaultDownload:   d.modVaultDownload,
		kephaslobby.ModVaultAddComment: d.modVaultAddComment,
	}
	d.avatar = map[string]HandlerFunc{
		kephaslobby.AvatarUpload: d.avatarUpload,
		kephaslobby.AvatarList:   d.avatarList,
		kephaslobby.AvatarSelect: d.avatarSelect,
	}
	return d, nil
}

// Dispatch runs the handler for msg. Commands other than the handshake fail
// with ErrNotAuthenticated until the session has an identity.
func (d *Dispatcher) Dispatch(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	cmd, err := requireString(msg, "command")
	if err != nil {
		return err
	}
	r, ok := d.commands[cmd]
	if !ok {
		return fmt.Errorf("%w: command %q", kephaslobby.ErrUnsupportedValue, cmd)
	}
	if !r.public {
		if _, ok := sess.Identity(); !ok {
			return fmt.Errorf("%w: %s", kephaslobby.ErrNotAuthenticated, cmd)
		}
	}

	ctx, span := d.tracer.Start(ctx, "lobby."+cmd, trace.WithAttributes(
		attribute.String("lobby.session", sess.ID()),
	))
	defer span.End()

	if err := r.handle(ctx, sess, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (d *Dispatcher) family(ctx context.Context, sess *session.Session, msg protocol.Message, key string, table map[string]HandlerFunc) error {
	sub, err := requireString(msg, key)
	if err != nil {
		return err
	}
	h, ok := table[sub]
	if !ok {
		return fmt.Errorf("%w: %s %q", kephaslobby.ErrUnsupportedValue, key, sub)
	}
	return h(ctx, sess, msg)
}

// NoticeFor returns the notice a client receives for a failed command.
// Missing-field, unsupported-value and unimplemented failures get no reply.
func NoticeFor(err error) (protocol.Message, bool) {
	switch {
	case err == nil, errors.As(err, new(quietError)):
		return nil, false
	case errors.Is(err, kephaslobby.ErrNotAuthenticated):
		return notice(kephaslobby.StyleError, kephaslobby.TextNotAuthenticated), true
	case errors.Is(err, kephaslobby.ErrPermissionDenied):
		return notice(kephaslobby.StyleError, kephaslobby.TextPermissionDenied), true
	case errors.Is(err, kephaslobby.ErrCollaborator):
		return notice(kephaslobby.StyleError, kephaslobby.TextRequestFailed), true
	default:
		return nil, false
	}
}

func notice(style, text string) protocol.Message {
	return protocol.Message{
		"command": kephaslobby.CmdNotice,
		"style":   style,
		"text":    text,
	}
}

func (d *Dispatcher) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d.deps.QueryTimeout)
}

func collaborator(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", kephaslobby.ErrCollaborator, op, err)
}

// quietError marks a failure of a command that never replies. It is still
// logged by the caller.
type quietError struct{ error }

func (e quietError) Unwrap() error { return e.error }

func quiet(err error) error {
	return quietError{err}
}

func mustIdentity(sess *session.Session) (players.Player, error) {
	p, ok := sess.Identity()
	if !ok {
		return players.Player{}, kephaslobby.ErrNotAuthenticated
	}
	return p, nil
}

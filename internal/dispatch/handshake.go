package dispatch

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/auth"
	"github.com/luciancaetano/kephaslobby/internal/players"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

func (d *Dispatcher) askSession(ctx context.Context, sess *session.Session, _ protocol.Message) error {
	return sess.Send(ctx, protocol.Message{
		"command": kephaslobby.CmdWelcome,
		"session": sess.ID(),
	})
}

func (d *Dispatcher) ping(ctx context.Context, sess *session.Session, _ protocol.Message) error {
	return sess.Send(ctx, protocol.Message{"command": kephaslobby.CmdPong})
}

// hello authenticates the session with either a resume token or a login and
// password. A successful login is answered with welcome followed by the
// game list.
func (d *Dispatcher) hello(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	if login, ok := sess.Login(); ok {
		return fmt.Errorf("%w: already logged in as %s", kephaslobby.ErrUnsupportedValue, login)
	}

	login, err := d.credentials(msg)
	if errors.Is(err, auth.ErrInvalidCredentials) || errors.Is(err, auth.ErrInvalidToken) {
		d.log.Info("login rejected", zap.String("session", sess.ID()), zap.Error(err))
		return sess.Send(ctx, authFailed(kephaslobby.TextLoginFailed))
	}
	if err != nil {
		return err
	}

	qctx, cancel := d.queryContext(ctx)
	acc, found, err := d.deps.Store.Account(qctx, login)
	cancel()
	if err != nil {
		return collaborator("load account", err)
	}
	if !found {
		d.log.Info("login rejected", zap.String("session", sess.ID()), zap.String("login", login))
		return sess.Send(ctx, authFailed(kephaslobby.TextLoginFailed))
	}
	if password, ok := msg["password"].(string); ok {
		if err := auth.CheckPassword(acc.PasswordHash, password); err != nil {
			d.log.Info("login rejected", zap.String("session", sess.ID()), zap.String("login", login))
			return sess.Send(ctx, authFailed(kephaslobby.TextLoginFailed))
		}
	}

	p := players.Player{ID: acc.ID, Login: acc.Login, Admin: acc.Admin}
	if err := d.deps.Players.Add(p); err != nil {
		if errors.Is(err, players.ErrAlreadyOnline) {
			return sess.Send(ctx, authFailed(kephaslobby.TextAlreadyOnline))
		}
		return collaborator("register player", err)
	}
	sess.SetIdentity(p)

	welcome := protocol.Message{
		"command": kephaslobby.CmdWelcome,
		"id":      p.ID,
		"login":   p.Login,
	}
	if d.deps.Tokens != nil {
		token, err := d.deps.Tokens.Issue(p.ID, p.Login)
		if err != nil {
			return collaborator("issue token", err)
		}
		welcome["token"] = token
	}
	d.log.Info("player logged in",
		zap.String("session", sess.ID()),
		zap.String("login", p.Login),
		zap.Bool("admin", p.Admin),
	)

	if err := sess.Send(ctx, welcome); err != nil {
		return err
	}
	return d.SendGameList(ctx, sess)
}

// credentials returns the login a hello message claims. Token logins are
// verified here; password logins are checked against the stored account.
func (d *Dispatcher) credentials(msg protocol.Message) (string, error) {
	if v, ok := msg.Lookup("token"); ok && v != nil {
		token, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("%w: %q must be a string", kephaslobby.ErrUnsupportedValue, "token")
		}
		if d.deps.Tokens == nil {
			return "", auth.ErrInvalidToken
		}
		return d.deps.Tokens.Verify(token)
	}

	login, err := requireString(msg, "login")
	if err != nil {
		return "", err
	}
	if _, err := requireString(msg, "password"); err != nil {
		return "", err
	}
	return login, nil
}

func authFailed(text string) protocol.Message {
	return protocol.Message{
		"command": kephaslobby.CmdAuthFailed,
		"text":    text,
	}
}

package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/games"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

func (d *Dispatcher) gameHost(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	host, err := mustIdentity(sess)
	if err != nil {
		return err
	}

	title, err := requireString(msg, "title")
	if err != nil {
		return err
	}
	if !isASCII(title) {
		return sess.Send(ctx, notice(kephaslobby.StyleError, kephaslobby.TextNonASCIIGameName))
	}

	access, err := requireString(msg, "access")
	if err != nil {
		return err
	}
	mod, err := requireString(msg, "mod")
	if err != nil {
		return err
	}
	mapName, err := requireString(msg, "mapname")
	if err != nil {
		return err
	}
	password, err := optionalString(msg, "password")
	if err != nil {
		return err
	}
	version, err := optionalString(msg, "version")
	if err != nil {
		return err
	}

	g, err := d.deps.Games.CreateGame(games.Options{
		Visibility: access,
		GameMode:   mod,
		Name:       title,
		Host:       host.Login,
		Password:   password,
		MapName:    mapName,
		Version:    version,
	})
	if err != nil {
		return collaborator("create game", err)
	}

	d.log.Info("game hosted",
		zap.Int64("game", g.ID()),
		zap.String("host", host.Login),
		zap.String("mod", mod),
	)
	return nil
}

// SendGameList sends every active game to sess as one batch. Nothing is
// sent when no game is active.
func (d *Dispatcher) SendGameList(ctx context.Context, sess *session.Session) error {
	all := d.deps.Games.AllGames()
	if len(all) == 0 {
		return nil
	}
	records := make([]protocol.Message, 0, len(all))
	for _, g := range all {
		records = append(records, g.Record())
	}
	return sess.SendMessages(ctx, records)
}

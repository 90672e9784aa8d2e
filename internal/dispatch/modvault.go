package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
	"github.com/luciancaetano/kephaslobby/internal/store"
)

func (d *Dispatcher) modVault(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	return d.family(ctx, sess, msg, "type", d.modvault)
}

func (d *Dispatcher) modVaultStart(ctx context.Context, sess *session.Session, _ protocol.Message) error {
	qctx, cancel := d.queryContext(ctx)
	defer cancel()

	mods, err := d.deps.Store.TopMods(qctx, d.deps.ModVaultLimit)
	if err != nil {
		return collaborator("list mods", err)
	}
	if len(mods) == 0 {
		return nil
	}
	return sess.Send(ctx, modVaultInfo(mods))
}

// modVaultLike ignores unknown uids without replying.
func (d *Dispatcher) modVaultLike(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	qctx, cancel := d.queryContext(ctx)
	defer cancel()

	uid, err := requireString(msg, "uid")
	if err != nil {
		return err
	}
	mod, found, err := d.deps.Store.LikeMod(qctx, uid)
	if err != nil {
		return collaborator("like mod", err)
	}
	if !found {
		return nil
	}
	return sess.Send(ctx, modVaultInfo([]store.Mod{mod}))
}

// modVaultDownload counts a download. The uid is bound as given: scalars as
// their text, null, missing or structured values as NULL. The update is
// issued either way and failures are not answered.
func (d *Dispatcher) modVaultDownload(ctx context.Context, _ *session.Session, msg protocol.Message) error {
	qctx, cancel := d.queryContext(ctx)
	defer cancel()

	v, _ := msg.Lookup("uid")
	if err := d.deps.Store.IncrementModDownloads(qctx, scalarText(v)); err != nil {
		return quiet(collaborator("count download", err))
	}
	return nil
}

// scalarText returns the text of a JSON scalar, or nil for null and
// structured values.
func scalarText(v any) *string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case json.Number:
		s = x.String()
	case bool, float64, int, int64:
		s = fmt.Sprint(x)
	default:
		return nil
	}
	return &s
}

func (d *Dispatcher) modVaultAddComment(context.Context, *session.Session, protocol.Message) error {
	return fmt.Errorf("%w: modvault %s", kephaslobby.ErrNotImplemented, kephaslobby.ModVaultAddComment)
}

func modVaultInfo(mods []store.Mod) protocol.Message {
	records := make([]map[string]any, 0, len(mods))
	for _, m := range mods {
		records = append(records, map[string]any{
			"uid":         m.UID,
			"name":        m.Name,
			"version":     m.Version,
			"author":      m.Author,
			"ui":          m.UI,
			"description": m.Description,
			"filename":    m.Filename,
			"icon":        m.Icon,
			"date":        m.Date.Unix(),
			"likes":       m.Likes,
			"downloads":   m.Downloads,
			"played":      m.Played,
		})
	}
	return protocol.Message{
		"command": kephaslobby.CmdModVaultInfo,
		"mods":    records,
	}
}

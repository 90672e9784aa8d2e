package dispatch

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/protocol"
	"github.com/luciancaetano/kephaslobby/internal/session"
)

func (d *Dispatcher) avatarCommand(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	return d.family(ctx, sess, msg, "action", d.avatar)
}

// avatarUpload checks privilege before looking at the payload, so a
// non-admin is refused even when the request is malformed.
func (d *Dispatcher) avatarUpload(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	p, err := mustIdentity(sess)
	if err != nil {
		return err
	}
	if !d.deps.Players.IsAdmin(p.Login) {
		return fmt.Errorf("%w: %s by %s", kephaslobby.ErrPermissionDenied, kephaslobby.AvatarUpload, p.Login)
	}

	name, err := requireString(msg, "name")
	if err != nil {
		return err
	}
	file, err := requireString(msg, "file")
	if err != nil {
		return err
	}
	description, err := requireString(msg, "description")
	if err != nil {
		return err
	}

	image, err := d.inflate(file)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", kephaslobby.ErrUnsupportedValue, "file", err)
	}

	qctx, cancel := d.queryContext(ctx)
	defer cancel()
	if err := d.deps.Store.AddAvatar(qctx, name, description, image); err != nil {
		d.log.Error("avatar upload failed",
			zap.String("name", name),
			zap.String("login", p.Login),
			zap.Error(err),
		)
		return sess.Send(ctx, notice(kephaslobby.StyleError, kephaslobby.TextAvatarNotStored))
	}

	d.log.Info("avatar uploaded", zap.String("name", name), zap.Int("bytes", len(image)))
	return sess.Send(ctx, notice(kephaslobby.StyleInfo, kephaslobby.TextAvatarUploaded))
}

// inflate decodes a base64 zlib stream, refusing images larger than
// MaxAvatarBytes.
func (d *Dispatcher) inflate(file string) ([]byte, error) {
	compressed, err := base64.StdEncoding.DecodeString(file)
	if err != nil {
		return nil, err
	}
	zr, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	image, err := io.ReadAll(io.LimitReader(zr, d.deps.MaxAvatarBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(image)) > d.deps.MaxAvatarBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", d.deps.MaxAvatarBytes)
	}
	return image, nil
}

func (d *Dispatcher) avatarList(ctx context.Context, sess *session.Session, _ protocol.Message) error {
	qctx, cancel := d.queryContext(ctx)
	defer cancel()

	p, err := mustIdentity(sess)
	if err != nil {
		return err
	}
	avatars, err := d.deps.Store.ListAvatars(qctx, p.ID)
	if err != nil {
		return collaborator("list avatars", err)
	}
	if len(avatars) == 0 {
		return nil
	}

	list := make([]map[string]any, 0, len(avatars))
	for _, a := range avatars {
		list = append(list, map[string]any{"url": a.URL, "tooltip": a.Tooltip})
	}
	return sess.Send(ctx, protocol.Message{
		"command":    kephaslobby.CmdAvatarList,
		"avatarlist": list,
	})
}

// avatarSelect clears the current selection, then selects the given url
// unless it is null. Store failures are not answered.
func (d *Dispatcher) avatarSelect(ctx context.Context, sess *session.Session, msg protocol.Message) error {
	qctx, cancel := d.queryContext(ctx)
	defer cancel()

	p, err := mustIdentity(sess)
	if err != nil {
		return err
	}
	v, err := require(msg, "avatar")
	if err != nil {
		return err
	}
	var url string
	if v != nil {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %q must be a string or null", kephaslobby.ErrUnsupportedValue, "avatar")
		}
		url = s
	}

	if err := d.deps.Store.ClearAvatarSelection(qctx, p.ID); err != nil {
		return quiet(collaborator("clear avatar", err))
	}
	if v == nil {
		return nil
	}
	if err := d.deps.Store.SelectAvatar(qctx, p.ID, url); err != nil {
		return quiet(collaborator("select avatar", err))
	}
	return nil
}

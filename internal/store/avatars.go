package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Avatar is one avatar owned by a player.
type Avatar struct {
	URL      string
	Tooltip  string
	Selected bool
}

// AddAvatar writes an avatar image into the avatar directory and registers
// it in the avatar list.
func (s *Store) AddAvatar(ctx context.Context, name, tooltip string, image []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.avatarDir == "" {
		return fmt.Errorf("avatar directory is not configured")
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) || base != name {
		return fmt.Errorf("invalid avatar name %q", name)
	}

	if err := os.MkdirAll(s.avatarDir, 0o755); err != nil {
		return fmt.Errorf("create avatar dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.avatarDir, base), image, 0o644); err != nil {
		return fmt.Errorf("write avatar file: %w", err)
	}

	url := strings.TrimSuffix(s.avatarURL, "/") + "/" + base
	if _, err := s.exec(ctx, `INSERT INTO avatars_list (url, tooltip) VALUES (?, ?)`, url, tooltip); err != nil {
		return fmt.Errorf("insert avatar: %w", err)
	}
	return nil
}

// GrantAvatar gives playerID the listed avatar with the given url.
func (s *Store) GrantAvatar(ctx context.Context, playerID int64, url string) error {
	res, err := s.exec(ctx,
		`INSERT INTO avatars (id_user, id_avatar, selected) SELECT ?, id, 0 FROM avatars_list WHERE url = ?`,
		playerID, url)
	if err != nil {
		return fmt.Errorf("grant avatar: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("grant avatar: unknown avatar %q", url)
	}
	return nil
}

// ListAvatars returns the avatars owned by playerID. No avatars is an empty
// result, not an error.
func (s *Store) ListAvatars(ctx context.Context, playerID int64) ([]Avatar, error) {
	rows, err := s.query(ctx,
		`SELECT l.url, l.tooltip, a.selected
		   FROM avatars a
		   JOIN avatars_list l ON a.id_avatar = l.id
		  WHERE a.id_user = ?
		  ORDER BY l.id`,
		playerID)
	if err != nil {
		return nil, fmt.Errorf("query avatars: %w", err)
	}
	defer rows.Close()

	var avatars []Avatar
	for rows.Next() {
		var (
			a        Avatar
			selected int
		)
		if err := rows.Scan(&a.URL, &a.Tooltip, &selected); err != nil {
			return nil, fmt.Errorf("scan avatar: %w", err)
		}
		a.Selected = selected != 0
		avatars = append(avatars, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate avatars: %w", err)
	}
	return avatars, nil
}

// ClearAvatarSelection deselects every avatar of playerID.
func (s *Store) ClearAvatarSelection(ctx context.Context, playerID int64) error {
	if _, err := s.exec(ctx, `UPDATE avatars SET selected = 0 WHERE id_user = ?`, playerID); err != nil {
		return fmt.Errorf("clear avatar selection: %w", err)
	}
	return nil
}

// SelectAvatar marks the avatar with url as selected for playerID.
func (s *Store) SelectAvatar(ctx context.Context, playerID int64, url string) error {
	_, err := s.exec(ctx,
		`UPDATE avatars SET selected = 1
		  WHERE id_user = ? AND id_avatar = (SELECT id FROM avatars_list WHERE url = ?)`,
		playerID, url)
	if err != nil {
		return fmt.Errorf("select avatar: %w", err)
	}
	return nil
}

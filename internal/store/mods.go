package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Mod is one mod vault entry.
type Mod struct {
	UID         string
	Name        string
	Version     int
	Author      string
	UI          bool
	Description string
	Filename    string
	Icon        string
	Date        time.Time
	Likes       int64
	Downloads   int64
	Played      int64
}

const modColumns = `uid, name, version, author, ui, description, filename, icon, date, likes, downloads, played`

type scanner interface {
	Scan(dest ...any) error
}

func scanMod(row scanner) (Mod, error) {
	var (
		m    Mod
		ui   int
		date int64
	)
	if err := row.Scan(&m.UID, &m.Name, &m.Version, &m.Author, &ui, &m.Description, &m.Filename, &m.Icon, &date, &m.Likes, &m.Downloads, &m.Played); err != nil {
		return Mod{}, err
	}
	m.UI = ui != 0
	m.Date = time.Unix(date, 0).UTC()
	return m, nil
}

// AddMod inserts one mod vault entry.
func (s *Store) AddMod(ctx context.Context, m Mod) error {
	if m.UID == "" {
		return fmt.Errorf("mod uid is required")
	}
	ui := 0
	if m.UI {
		ui = 1
	}
	_, err := s.exec(ctx,
		`INSERT INTO mods (`+modColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.UID, m.Name, m.Version, m.Author, ui, m.Description, m.Filename, m.Icon,
		m.Date.UTC().Unix(), m.Likes, m.Downloads, m.Played,
	)
	if err != nil {
		return fmt.Errorf("insert mod: %w", err)
	}
	return nil
}

// TopMods returns up to limit mods ordered by likes, most liked first.
// No mods is an empty result, not an error.
func (s *Store) TopMods(ctx context.Context, limit int) ([]Mod, error) {
	rows, err := s.query(ctx, `SELECT `+modColumns+` FROM mods ORDER BY likes DESC, uid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query top mods: %w", err)
	}
	defer rows.Close()

	var mods []Mod
	for rows.Next() {
		m, err := scanMod(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mod: %w", err)
		}
		mods = append(mods, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mods: %w", err)
	}
	return mods, nil
}

// LikeMod increments the like counter of uid and returns the updated entry.
// The check and the increment run in one transaction; found is false when
// uid does not exist.
func (s *Store) LikeMod(ctx context.Context, uid string) (mod Mod, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return Mod{}, false, err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return Mod{}, false, fmt.Errorf("begin like: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, s.rebind(`UPDATE mods SET likes = likes + 1 WHERE uid = ?`), uid)
	if err != nil {
		return Mod{}, false, fmt.Errorf("increment likes: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Mod{}, false, fmt.Errorf("increment likes: %w", err)
	}
	if n == 0 {
		return Mod{}, false, nil
	}

	mod, err = scanMod(tx.QueryRowContext(ctx, s.rebind(`SELECT `+modColumns+` FROM mods WHERE uid = ?`), uid))
	if err != nil {
		return Mod{}, false, fmt.Errorf("load liked mod: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Mod{}, false, fmt.Errorf("commit like: %w", err)
	}
	return mod, true, nil
}

// IncrementModDownloads bumps the download counter of uid. A nil uid is
// bound as NULL and matches no row.
func (s *Store) IncrementModDownloads(ctx context.Context, uid *string) error {
	var arg sql.NullString
	if uid != nil {
		arg = sql.NullString{String: *uid, Valid: true}
	}
	if _, err := s.exec(ctx, `UPDATE mods SET downloads = downloads + 1 WHERE uid = ?`, arg); err != nil {
		return fmt.Errorf("increment downloads: %w", err)
	}
	return nil
}

// Mod returns the entry for uid.
func (s *Store) Mod(ctx context.Context, uid string) (Mod, bool, error) {
	if err := ctx.Err(); err != nil {
		return Mod{}, false, err
	}
	m, err := scanMod(s.sqlDB.QueryRowContext(ctx, s.rebind(`SELECT `+modColumns+` FROM mods WHERE uid = ?`), uid))
	if isNoRows(err) {
		return Mod{}, false, nil
	}
	if err != nil {
		return Mod{}, false, fmt.Errorf("load mod: %w", err)
	}
	return m, true, nil
}

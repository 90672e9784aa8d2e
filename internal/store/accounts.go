package store

import (
	"context"
	"fmt"
	"strings"
)

// Account is a registered player login.
type Account struct {
	ID           int64
	Login        string
	PasswordHash string
	Admin        bool
}

// CreateAccount registers login with an already hashed password.
func (s *Store) CreateAccount(ctx context.Context, login, passwordHash string, admin bool) (Account, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return Account{}, fmt.Errorf("login is required")
	}
	if passwordHash == "" {
		return Account{}, fmt.Errorf("password hash is required")
	}
	isAdmin := 0
	if admin {
		isAdmin = 1
	}
	if _, err := s.exec(ctx, `INSERT INTO accounts (login, password_hash, is_admin) VALUES (?, ?, ?)`, login, passwordHash, isAdmin); err != nil {
		return Account{}, fmt.Errorf("insert account: %w", err)
	}

	acc, ok, err := s.Account(ctx, login)
	if err != nil {
		return Account{}, err
	}
	if !ok {
		return Account{}, fmt.Errorf("insert account: %q not found after insert", login)
	}
	return acc, nil
}

// Account returns the account for login, compared case-insensitively.
func (s *Store) Account(ctx context.Context, login string) (Account, bool, error) {
	if err := ctx.Err(); err != nil {
		return Account{}, false, err
	}
	var (
		acc     Account
		isAdmin int
	)
	err := s.sqlDB.QueryRowContext(ctx,
		s.rebind(`SELECT id, login, password_hash, is_admin FROM accounts WHERE lower(login) = lower(?)`),
		login,
	).Scan(&acc.ID, &acc.Login, &acc.PasswordHash, &isAdmin)
	if isNoRows(err) {
		return Account{}, false, nil
	}
	if err != nil {
		return Account{}, false, fmt.Errorf("load account: %w", err)
	}
	acc.Admin = isAdmin != 0
	return acc, true, nil
}

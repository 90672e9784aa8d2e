package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{
		Driver:    DriverSQLite,
		DSN:       ":memory:",
		AvatarDir: t.TempDir(),
		AvatarURL: "http://content.test/avatars/",
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedMods(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, m := range []Mod{
		{UID: "mod-a", Name: "Alpha", Likes: 3, Date: time.Unix(1700000000, 0)},
		{UID: "mod-b", Name: "Beta", Likes: 10, UI: true},
		{UID: "mod-c", Name: "Gamma", Likes: 1},
	} {
		if err := s.AddMod(ctx, m); err != nil {
			t.Fatalf("AddMod(%s) error = %v", m.UID, err)
		}
	}
}

// TestOpenValidation tests rejected store options
func TestOpenValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts Options
	}{
		{"empty dsn", Options{Driver: DriverSQLite}},
		{"unknown driver", Options{Driver: "mysql", DSN: "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := Open(tt.opts); err == nil {
				t.Error("Open() succeeded, want error")
			}
		})
	}
}

// TestMigrationsAreIdempotent tests that reopening a file database reapplies nothing
func TestMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lobby.db")
	for i := 0; i < 2; i++ {
		s, err := Open(Options{DSN: path})
		if err != nil {
			t.Fatalf("Open() #%d error = %v", i, err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close() error = %v", err)
		}
	}
}

// TestTopMods tests ordering, limit and the empty result
func TestTopMods(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	mods, err := s.TopMods(ctx, 10)
	if err != nil {
		t.Fatalf("TopMods() error = %v", err)
	}
	if len(mods) != 0 {
		t.Fatalf("TopMods() on empty vault = %d rows", len(mods))
	}

	seedMods(t, s)
	mods, err = s.TopMods(ctx, 2)
	if err != nil {
		t.Fatalf("TopMods() error = %v", err)
	}
	if len(mods) != 2 || mods[0].UID != "mod-b" || mods[1].UID != "mod-a" {
		t.Errorf("TopMods(2) = %+v, want mod-b, mod-a", mods)
	}
	if !mods[0].UI {
		t.Error("TopMods() lost the ui flag")
	}
	if !mods[1].Date.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("Date = %v", mods[1].Date)
	}
}

// TestLikeMod tests the atomic like increment and the unknown-uid miss
func TestLikeMod(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	seedMods(t, s)
	ctx := context.Background()

	mod, found, err := s.LikeMod(ctx, "mod-c")
	if err != nil || !found {
		t.Fatalf("LikeMod(mod-c) = %v, %v", found, err)
	}
	if mod.Likes != 2 {
		t.Errorf("Likes = %d, want 2", mod.Likes)
	}

	_, found, err = s.LikeMod(ctx, "something_invalid")
	if err != nil {
		t.Fatalf("LikeMod(unknown) error = %v", err)
	}
	if found {
		t.Error("LikeMod(unknown) reported found")
	}
}

// TestIncrementModDownloads tests the download counter including a null uid
func TestIncrementModDownloads(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	seedMods(t, s)
	ctx := context.Background()

	uid := "mod-a"
	if err := s.IncrementModDownloads(ctx, &uid); err != nil {
		t.Fatalf("IncrementModDownloads() error = %v", err)
	}
	if err := s.IncrementModDownloads(ctx, nil); err != nil {
		t.Fatalf("IncrementModDownloads(nil) error = %v", err)
	}

	for _, tc := range []struct {
		uid  string
		want int64
	}{{"mod-a", 1}, {"mod-b", 0}, {"mod-c", 0}} {
		m, ok, err := s.Mod(ctx, tc.uid)
		if err != nil || !ok {
			t.Fatalf("Mod(%s) = %v, %v", tc.uid, ok, err)
		}
		if m.Downloads != tc.want {
			t.Errorf("Mod(%s).Downloads = %d, want %d", tc.uid, m.Downloads, tc.want)
		}
	}
}

// TestAvatars tests upload, listing and selection
func TestAvatars(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	if err := s.AddAvatar(ctx, "gold.png", "Gold", []byte("png-bytes")); err != nil {
		t.Fatalf("AddAvatar() error = %v", err)
	}
	if err := s.AddAvatar(ctx, "silver.png", "Silver", []byte("png")); err != nil {
		t.Fatalf("AddAvatar() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(s.avatarDir, "gold.png"))
	if err != nil || string(data) != "png-bytes" {
		t.Errorf("avatar file = %q, %v", data, err)
	}
	if err := s.AddAvatar(ctx, "gold.png", "Again", nil); err == nil {
		t.Error("AddAvatar() accepted a duplicate url")
	}
	if err := s.AddAvatar(ctx, "../escape.png", "x", nil); err == nil {
		t.Error("AddAvatar() accepted a path outside the avatar dir")
	}

	avatars, err := s.ListAvatars(ctx, 42)
	if err != nil || len(avatars) != 0 {
		t.Fatalf("ListAvatars() before grant = %v, %v", avatars, err)
	}

	gold := "http://content.test/avatars/gold.png"
	silver := "http://content.test/avatars/silver.png"
	for _, url := range []string{gold, silver} {
		if err := s.GrantAvatar(ctx, 42, url); err != nil {
			t.Fatalf("GrantAvatar(%s) error = %v", url, err)
		}
	}
	if err := s.GrantAvatar(ctx, 42, "http://content.test/avatars/none.png"); err == nil {
		t.Error("GrantAvatar() accepted an unknown avatar")
	}

	if err := s.ClearAvatarSelection(ctx, 42); err != nil {
		t.Fatalf("ClearAvatarSelection() error = %v", err)
	}
	if err := s.SelectAvatar(ctx, 42, silver); err != nil {
		t.Fatalf("SelectAvatar() error = %v", err)
	}

	avatars, err = s.ListAvatars(ctx, 42)
	if err != nil {
		t.Fatalf("ListAvatars() error = %v", err)
	}
	if len(avatars) != 2 {
		t.Fatalf("ListAvatars() = %d rows, want 2", len(avatars))
	}
	if avatars[0].URL != gold || avatars[0].Selected || avatars[0].Tooltip != "Gold" {
		t.Errorf("avatars[0] = %+v", avatars[0])
	}
	if avatars[1].URL != silver || !avatars[1].Selected {
		t.Errorf("avatars[1] = %+v", avatars[1])
	}

	if err := s.ClearAvatarSelection(ctx, 42); err != nil {
		t.Fatalf("ClearAvatarSelection() error = %v", err)
	}
	avatars, _ = s.ListAvatars(ctx, 42)
	for _, a := range avatars {
		if a.Selected {
			t.Errorf("avatar %s still selected after clear", a.URL)
		}
	}
}

// TestAccounts tests account creation and case-insensitive lookup
func TestAccounts(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	acc, err := s.CreateAccount(ctx, "Sheeo", "hash", true)
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	if acc.ID == 0 || !acc.Admin {
		t.Errorf("CreateAccount() = %+v", acc)
	}
	if _, err := s.CreateAccount(ctx, "sheeo", "hash", false); err == nil {
		t.Error("CreateAccount() accepted a duplicate login")
	}

	got, ok, err := s.Account(ctx, "SHEEO")
	if err != nil || !ok {
		t.Fatalf("Account() = %v, %v", ok, err)
	}
	if got.Login != "Sheeo" || got.PasswordHash != "hash" {
		t.Errorf("Account() = %+v", got)
	}

	if _, ok, err := s.Account(ctx, "nobody"); ok || err != nil {
		t.Errorf("Account(nobody) = %v, %v, want miss", ok, err)
	}
}

// TestCancelledContext tests that a cancelled session aborts store calls
func TestCancelledContext(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.TopMods(ctx, 10); err == nil {
		t.Error("TopMods() succeeded with a cancelled context")
	}
	if _, _, err := s.LikeMod(ctx, "mod-a"); err == nil {
		t.Error("LikeMod() succeeded with a cancelled context")
	}
}

// TestRebind tests placeholder rewriting for Postgres
func TestRebind(t *testing.T) {
	t.Parallel()

	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("UPDATE a SET b = ? WHERE c = ? AND d = ?"); got != "UPDATE a SET b = $1 WHERE c = $2 AND d = $3" {
		t.Errorf("rebind() = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("rebind() = %q", got)
	}
}

// Command lobbyd runs the lobby server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/luciancaetano/kephaslobby"
	"github.com/luciancaetano/kephaslobby/internal/auth"
	"github.com/luciancaetano/kephaslobby/internal/config"
	"github.com/luciancaetano/kephaslobby/internal/logging"
	"github.com/luciancaetano/kephaslobby/lobby"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to the TOML config file")
		envFile    = flag.String("env-file", ".env", "dotenv file loaded before the environment is read")
		addAccount = flag.String("add-account", "", "create an account as login:password and exit")
		admin      = flag.Bool("admin", false, "with -add-account, grant administrator privilege")
		grant      = flag.String("grant-avatar", "", "grant an avatar url to an account as login:url and exit")
	)
	flag.Parse()

	if err := run(*configPath, *envFile, *addAccount, *admin, *grant); err != nil {
		fmt.Fprintf(os.Stderr, "lobbyd: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, envFile, addAccount string, admin bool, grant string) error {
	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := lobby.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer logger.Sync()

	st, err := lobby.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case addAccount != "":
		return createAccount(ctx, st, addAccount, admin, logger)
	case grant != "":
		return grantAvatar(ctx, st, grant, logger)
	}

	srv, err := lobby.New(cfg, lobby.Deps{
		Store:  st,
		Logger: logger,
		OnDisconnect: func(sess kephaslobby.Session, voluntary bool) {
			if !voluntary {
				logger.Debug("session dropped", zap.String("session", sess.ID()))
			}
		},
	})
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("lobbyd started",
		zap.String("addr", cfg.Server.Addr),
		zap.String("websocket_addr", cfg.Server.WebsocketAddr),
		zap.String("database", cfg.Database.Driver),
	)

	<-ctx.Done()
	logger.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Stop(stopCtx)
}

func createAccount(ctx context.Context, st *lobby.Store, arg string, admin bool, logger *zap.Logger) error {
	login, password, ok := strings.Cut(arg, ":")
	if !ok || login == "" || password == "" {
		return errors.New("-add-account expects login:password")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	acc, err := st.CreateAccount(ctx, login, hash, admin)
	if err != nil {
		return err
	}
	logger.Info("account created", zap.Int64("id", acc.ID), zap.String("login", acc.Login), zap.Bool("admin", acc.Admin))
	return nil
}

func grantAvatar(ctx context.Context, st *lobby.Store, arg string, logger *zap.Logger) error {
	login, url, ok := strings.Cut(arg, ":")
	if !ok || login == "" || url == "" {
		return errors.New("-grant-avatar expects login:url")
	}
	acc, found, err := st.Account(ctx, login)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no account %q", login)
	}
	if err := st.GrantAvatar(ctx, acc.ID, url); err != nil {
		return err
	}
	logger.Info("avatar granted", zap.String("login", acc.Login), zap.String("url", url))
	return nil
}

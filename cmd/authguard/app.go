package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/route"
)

// app is one hydrated Store plus the collaborators it owns.
type app struct {
	cfg    cliConfig
	logger *slog.Logger
	store  *authguard.Store

	release func() error
}

// openApp loads the configuration from cmd's flags, builds the Store and
// restores the persisted session.
func openApp(ctx context.Context, cmd *cobra.Command, deps Deps) (*app, error) {
	deps = deps.withDefaults()

	cfg, logger, err := loadFromCommand(cmd)
	if err != nil {
		return nil, err
	}

	storeCfg, err := cfg.storeConfig()
	if err != nil {
		return nil, err
	}
	for _, w := range storeCfg.Lint() {
		logger.Debug("config lint", "code", w.Code, "severity", w.Severity.String(), "message", w.Message)
	}

	auth, err := deps.AuthenticatorFactory(cfg)
	if err != nil {
		return nil, err
	}
	persist, release, err := deps.PersistenceFactory(ctx, cfg)
	if err != nil {
		return nil, err
	}

	b := authguard.New().
		WithConfig(storeCfg).
		WithAuthenticator(auth).
		WithPersistence(persist).
		WithLogger(logger)
	if deps.Clock != nil {
		b = b.WithClock(deps.Clock)
	}
	store, err := b.Build()
	if err != nil {
		_ = release()
		return nil, oops.Code("STORE_BUILD").Wrap(err)
	}

	a := &app{cfg: cfg, logger: logger, store: store, release: release}
	if _, err := store.Hydrate(ctx); err != nil {
		a.Close()
		return nil, oops.Code("HYDRATE_FAILED").Wrap(err)
	}
	return a, nil
}

func loadFromCommand(cmd *cobra.Command) (cliConfig, *slog.Logger, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return cliConfig{}, nil, err
	}
	cfg, err := loadConfig(path, cmd.Flags())
	if err != nil {
		return cliConfig{}, nil, err
	}
	logger, err := setupLogger(cfg.Env, cmd.ErrOrStderr())
	if err != nil {
		return cliConfig{}, nil, err
	}
	return cfg, logger, nil
}

// table loads the route table named by the routes setting.
func (c cliConfig) table() (*route.Table, error) {
	if c.Routes == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("no route table configured; pass --routes or set routes in the config file")
	}
	t, err := route.LoadFile(c.Routes)
	if err != nil {
		return nil, oops.Code("ROUTES_INVALID").With("path", c.Routes).Wrap(err)
	}
	return t, nil
}

func (a *app) Close() {
	a.store.Close()
	if a.release != nil {
		if err := a.release(); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("closing session backend failed", "error", err)
		}
	}
}

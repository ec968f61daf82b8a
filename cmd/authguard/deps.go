package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/authguard"
	"github.com/MrEthical07/authguard/authclient"
	"github.com/MrEthical07/authguard/session"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// AuthenticatorFactory builds the authentication service client.
	// Default: authclient.New against auth.url
	AuthenticatorFactory func(cfg cliConfig) (authguard.Authenticator, error)

	// PersistenceFactory opens the session backend. The returned func
	// releases it.
	// Default: file, redis or memory per session.backend
	PersistenceFactory func(ctx context.Context, cfg cliConfig) (session.Persistence, func() error, error)

	// Clock drives expiry checks.
	// Default: wall clock
	Clock authguard.Clock
}

func (d Deps) withDefaults() Deps {
	if d.AuthenticatorFactory == nil {
		d.AuthenticatorFactory = newAuthenticator
	}
	if d.PersistenceFactory == nil {
		d.PersistenceFactory = openPersistence
	}
	return d
}

func newAuthenticator(cfg cliConfig) (authguard.Authenticator, error) {
	return authclient.New(cfg.Auth.URL, authclient.WithUserAgent("authguard-cli/"+version))
}

func openPersistence(ctx context.Context, cfg cliConfig) (session.Persistence, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Session.Backend {
	case backendFile:
		return session.NewFilePersistence(cfg.Session.File), noop, nil
	case backendMemory:
		return session.NewMemoryPersistence(), noop, nil
	case backendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, oops.Code("REDIS_UNREACHABLE").With("addr", cfg.Session.Redis.Addr).Wrap(err)
		}
		p := session.NewRedisPersistence(client, cfg.Session.Redis.Prefix, cfg.Session.Redis.Name)
		return p, client.Close, nil
	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("backend", cfg.Session.Backend).Errorf("unknown session backend")
	}
}

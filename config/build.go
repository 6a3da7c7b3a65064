package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	nomos "github.com/misaret/nomos-go"
	"github.com/misaret/nomos-go/cache"
	"github.com/misaret/nomos-go/internal/logging"
	"github.com/misaret/nomos-go/session"
	"github.com/misaret/nomos-go/session/redisstore"
	"github.com/misaret/nomos-go/session/sqlstore"
	"github.com/prometheus/client_golang/prometheus"
)

// Logger returns a logger at the configured level.
func (c Config) Logger() *slog.Logger {
	return logging.New(logging.ParseLevel(c.LogLevel))
}

// NewClient builds a storage client. reg may be nil.
func (c Config) NewClient(logger *slog.Logger, reg prometheus.Registerer) (*nomos.Client, error) {
	opts := []nomos.Option{
		nomos.WithTimeout(c.Timeout),
		nomos.WithConnectTimeout(c.ConnectTimeout),
		nomos.WithPoolSize(c.PoolSize),
		nomos.WithLogger(logger),
	}
	if reg != nil {
		opts = append(opts, nomos.WithMetrics(reg))
	}
	return nomos.New(c.Servers, opts...)
}

// NewCache wraps backend in a cache adapter using the cache section.
func (c Config) NewCache(backend cache.Backend, logger *slog.Logger) *cache.Adapter {
	return cache.New(backend,
		cache.WithNamespace(c.Cache.Level, c.Cache.SubLevel),
		cache.WithKeyPrefix(c.Cache.KeyPrefix),
		cache.WithDefaultTTL(c.Cache.DefaultTTL),
		cache.WithRenew(c.Cache.Renew),
		cache.WithLogger(logger),
	)
}

// OpenSessionStore opens the configured store. The closer releases it.
func (c Config) OpenSessionStore(ctx context.Context) (session.Store, io.Closer, error) {
	switch c.Session.Store {
	case StoreSQLite:
		s, err := sqlstore.Open(ctx, c.Session.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case StoreRedis:
		var opts []redisstore.Option
		if c.Session.RedisPrefix != "" {
			opts = append(opts, redisstore.WithPrefix(c.Session.RedisPrefix))
		}
		s := redisstore.New(c.Session.RedisAddr, c.Session.RedisPassword, c.Session.RedisDB, opts...)
		return s, s, nil
	case StoreMemory, "":
		return session.NewMemoryStore(), nopCloser{}, nil
	}
	return nil, nil, fmt.Errorf("%w: unknown session store %q", ErrInvalidConfig, c.Session.Store)
}

// NewSessionHandler opens the session store and wraps it in a handler.
func (c Config) NewSessionHandler(ctx context.Context, logger *slog.Logger) (*session.Handler, io.Closer, error) {
	store, closer, err := c.OpenSessionStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	h := session.NewHandler(store,
		session.WithLifetime(c.Session.Lifetime),
		session.WithLogger(logger),
	)
	return h, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

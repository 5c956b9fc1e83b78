// Package bootstrap initializes logging and the session store selected by config.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/weatherbot/core/config"
	coredatabase "github.com/m3rciful/weatherbot/core/database"
	"github.com/m3rciful/weatherbot/core/logger"
	"github.com/m3rciful/weatherbot/internal/session"
)

// Options control the bootstrap pipeline. Nil funcs select the defaults.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	OpenStore  func(ctx context.Context, cfg coreconfig.SessionConfig) (*Store, error)
}

// Store is an opened session store with its lifecycle hooks.
type Store struct {
	session.Store
	Driver string
	Ping   func(ctx context.Context) error
	Close  func() error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Store *Store
}

// Run initializes the logger and opens the session store.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	open := opts.OpenStore
	if open == nil {
		open = OpenStore
	}
	start := time.Now()
	store, err := open(ctx, opts.Config.Session)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: session store init failed: %w", err)
	}
	logger.Session.Info("store ready",
		slog.String("driver", store.Driver),
		slog.Duration("duration", logger.Took(start)),
	)
	return &Result{Store: store}, nil
}

// OpenStore opens the store for cfg.Driver, applying schema migrations for SQL drivers.
func OpenStore(ctx context.Context, cfg coreconfig.SessionConfig) (*Store, error) {
	switch cfg.Driver {
	case coreconfig.SessionDriverMemory, "":
		m := session.NewMemoryStore()
		return &Store{Store: m, Driver: coreconfig.SessionDriverMemory, Ping: m.Ping, Close: func() error { return nil }}, nil

	case coreconfig.SessionDriverPostgres:
		if err := coredatabase.RunPostgresMigrations(cfg.Postgres); err != nil {
			return nil, err
		}
		db, err := coredatabase.ConnectPostgres(cfg.Postgres)
		if err != nil {
			return nil, err
		}
		s := session.NewSQLStore(db)
		return &Store{Store: s, Driver: cfg.Driver, Ping: s.Ping, Close: s.Close}, nil

	case coreconfig.SessionDriverSQLite:
		if err := coredatabase.RunSQLiteMigrations(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		db, err := coredatabase.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		s := session.NewSQLStore(db)
		return &Store{Store: s, Driver: cfg.Driver, Ping: s.Ping, Close: s.Close}, nil

	case coreconfig.SessionDriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return nil, errors.Join(fmt.Errorf("redis ping %s: %w", cfg.Redis.Addr, err), client.Close())
		}
		s := session.NewRedisStore(client, cfg.Redis.Prefix, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
		return &Store{Store: s, Driver: cfg.Driver, Ping: s.Ping, Close: s.Close}, nil
	}
	return nil, fmt.Errorf("unknown session driver %q", cfg.Driver)
}

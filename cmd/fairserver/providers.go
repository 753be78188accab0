package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/fairplay/internal/config"
	"github.com/cory-johannsen/fairplay/internal/fairserver"
	"github.com/cory-johannsen/fairplay/internal/game/fairness"
	"github.com/cory-johannsen/fairplay/internal/game/lootcase"
	"github.com/cory-johannsen/fairplay/internal/game/session"
	"github.com/cory-johannsen/fairplay/internal/observability"
	"github.com/cory-johannsen/fairplay/internal/storage/postgres"
	"github.com/cory-johannsen/fairplay/internal/storage/sqlite"
)

// app is the fully wired daemon.
type app struct {
	server *fairserver.Server
	logger *zap.Logger
}

var providerSet = wire.NewSet(
	provideLogger,
	provideSource,
	fairness.NewEngine,
	provideStore,
	provideCatalog,
	wire.Bind(new(session.CaseLookup), new(*lootcase.Registry)),
	wire.Bind(new(fairserver.Catalog), new(*lootcase.Registry)),
	session.NewManager,
	fairserver.NewService,
	wire.Bind(new(fairserver.FairnessServiceServer), new(*fairserver.Service)),
	provideAuth,
	provideServer,
	wire.Struct(new(app), "*"),
)

func provideLogger(cfg config.Config) (*zap.Logger, error) {
	return observability.NewLogger(cfg.Logging, cfg.Telemetry.ServiceName)
}

func provideSource() fairness.Source {
	return fairness.NewCryptoSource()
}

// provideStore opens the configured seed pair store. The cleanup releases
// its connections.
func provideStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (session.Store, func(), error) {
	start := time.Now()
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(start)),
		)
		return postgres.NewSeedRepository(pool.DB()), pool.Close, nil
	case config.DriverSQLite:
		store, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("sqlite store opened",
			zap.String("path", cfg.Storage.SQLitePath),
			zap.Duration("elapsed", time.Since(start)),
		)
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing sqlite store", zap.Error(err))
			}
		}, nil
	case config.DriverMemory:
		logger.Warn("using in-memory store: seed pairs and rolls are lost on exit")
		return session.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

func provideCatalog(cfg config.Config, logger *zap.Logger) (*lootcase.Registry, error) {
	reg, err := lootcase.NewRegistryFromDir(cfg.Fairness.CasesDir)
	if err != nil {
		return nil, fmt.Errorf("loading cases: %w", err)
	}
	logger.Info("cases loaded",
		zap.String("dir", cfg.Fairness.CasesDir),
		zap.Int("count", reg.Len()),
	)
	return reg, nil
}

func provideAuth(cfg config.Config, logger *zap.Logger) *fairserver.TokenAuth {
	if !cfg.Auth.Enabled() {
		logger.Warn("api token auth disabled")
	}
	return fairserver.NewTokenAuth(cfg.Auth.TokenHash, logger)
}

func provideServer(cfg config.Config, svc fairserver.FairnessServiceServer, auth *fairserver.TokenAuth, logger *zap.Logger) *fairserver.Server {
	return fairserver.NewServer(cfg.Server.Addr(), svc, auth, logger)
}

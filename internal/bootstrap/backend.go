// Package bootstrap assembles the counter stores for the configured driver.
// It is shared by the HTTP server and the counterctl CLI.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"erpcounter/internal/config"
	"erpcounter/internal/core/counter"
	"erpcounter/internal/core/tx"
	domain "erpcounter/internal/domain/counter"
	"erpcounter/internal/infrastructure/cache"
	"erpcounter/internal/infrastructure/migration"
	"erpcounter/internal/infrastructure/storage/postgres"
	"erpcounter/internal/infrastructure/storage/postgres/counter_repo"
	"erpcounter/internal/infrastructure/storage/sqlstore"
	"erpcounter/pkg/logger"
)

// DefinitionRepository is the persistent definition store of either driver.
type DefinitionRepository interface {
	counter.DefinitionStore
	counter.DefinitionWriter
	ListCodes(ctx context.Context) ([]string, error)
}

// Definitions is what callers read and write definitions through; it is the
// cache when enabled, the repository otherwise.
type Definitions interface {
	counter.DefinitionStore
	counter.DefinitionWriter
}

// IssueLog is the idempotency key store of either driver.
type IssueLog interface {
	counter.IssueLog
	CleanupExpired(ctx context.Context) (int64, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend holds the wired stores. Tx groups definition and counter writes
// of either driver.
type Backend struct {
	Driver      string
	Repository  DefinitionRepository
	Definitions Definitions
	Sequences   counter.SequenceStore
	Admin       counter.Admin
	Pinger      Pinger
	Tx          tx.Manager

	Pool     *pgxpool.Pool          // postgres driver only
	Cache    *cache.DefinitionCache // nil when the definition cache is disabled
	IssueLog IssueLog               // nil when idempotency keys are disabled

	closers []func()
}

// Open connects to the configured database and builds the stores.
// It runs pending migrations first when database.auto_migrate is set.
func Open(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Backend, error) {
	if cfg.Database.AutoMigrate {
		if err := Migrate(cfg, log, true); err != nil {
			return nil, err
		}
	}

	b := &Backend{Driver: cfg.Database.Driver}
	switch cfg.Database.Driver {
	case config.DriverPostgres:
		if err := b.openPostgres(ctx, cfg); err != nil {
			return nil, err
		}
	case config.DriverSQLite:
		if err := b.openSQLite(cfg); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	b.Definitions = b.Repository
	if cfg.Counter.DefinitionCache {
		b.Cache = cache.NewDefinitionCache(b.Repository, b.Pool, cfg.Counter.DefinitionCacheTTL)
		b.Definitions = b.Cache
	}

	log.Infow("counter storage ready",
		"driver", b.Driver,
		"definition_cache", b.Cache != nil,
		"idempotency_keys", b.IssueLog != nil,
	)
	return b, nil
}

func (b *Backend) openPostgres(ctx context.Context, cfg *config.Config) error {
	poolCfg := postgres.DefaultPoolConfig(cfg.Database.URL)
	poolCfg.ApplicationName = cfg.App.Name
	if cfg.Database.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Database.MaxConns
	}
	poolCfg.MinConns = cfg.Database.MinConns

	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	b.closers = append(b.closers, pool.Close)

	txm := postgres.NewTxManager(pool)
	sequences := counter_repo.NewSequenceRepo(txm, cfg.Counter.LockTimeout, cfg.Counter.TxTimeout)

	b.Pool = pool.Unwrap()
	b.Pinger = pool
	b.Tx = txm
	b.Repository = counter_repo.NewDefinitionRepo(txm)
	b.Sequences = sequences
	b.Admin = sequences
	if ttl := cfg.Counter.IdempotencyTTL; ttl > 0 {
		b.IssueLog = postgres.NewIdempotencyStore(txm, cfg.Counter.LockTimeout, cfg.Counter.TxTimeout, ttl)
	}
	return nil
}

func (b *Backend) openSQLite(cfg *config.Config) error {
	db, dialect, err := sqlstore.Open(cfg.Database.URL)
	if err != nil {
		return err
	}
	b.closers = append(b.closers, func() { _ = db.Close() })

	store, err := sqlstore.New(db, dialect, sqlstore.Options{
		LockTimeout: cfg.Counter.LockTimeout,
		TxTimeout:   cfg.Counter.TxTimeout,
	})
	if err != nil {
		b.Close()
		return err
	}

	b.Pinger = store
	b.Tx = store
	b.Repository = store
	b.Sequences = store
	b.Admin = store
	if ttl := cfg.Counter.IdempotencyTTL; ttl > 0 {
		b.IssueLog = sqlstore.NewIssueLog(store, ttl)
	}
	return nil
}

// ServiceOptions returns the counter service options the backend supports.
func (b *Backend) ServiceOptions() []domain.Option {
	if b.IssueLog == nil {
		return nil
	}
	return []domain.Option{domain.WithIssueLog(b.IssueLog)}
}

// Close stops the cache listener and closes the connections.
func (b *Backend) Close() {
	if b.Cache != nil {
		b.Cache.Stop()
	}
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// Migrate applies (up) or rolls back (down) the embedded schema.
func Migrate(cfg *config.Config, log *logger.Logger, up bool) error {
	db, dialect, err := sqlstore.OpenDB(cfg.Database.URL)
	if err != nil {
		return err
	}

	m, err := migration.New(db, dialect, log)
	if err != nil {
		_ = db.Close()
		return err
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			log.Warnw("failed to close migrator", "error", cerr)
		}
	}()

	if up {
		return m.Up()
	}
	return m.Down()
}

// SchemaVersion reports the applied migration version.
func SchemaVersion(cfg *config.Config, log *logger.Logger) (uint, bool, error) {
	db, dialect, err := sqlstore.OpenDB(cfg.Database.URL)
	if err != nil {
		return 0, false, err
	}
	m, err := migration.New(db, dialect, log)
	if err != nil {
		_ = db.Close()
		return 0, false, err
	}
	defer m.Close()
	return m.Version()
}

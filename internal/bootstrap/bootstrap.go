// Package bootstrap wires an Operator from configuration for the api and
// fleetctl binaries.
package bootstrap

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"renderfleet/internal/config"
	"renderfleet/internal/fleetfs"
	"renderfleet/internal/journal"
	"renderfleet/internal/ledger"
	"renderfleet/internal/operator"
	"renderfleet/internal/pkg/errors"
	"renderfleet/internal/pkg/logger"
	"renderfleet/internal/sources"
)

// Runtime holds the operator and the connections it was built on. Pool
// and RDB are nil when not configured.
type Runtime struct {
	Op   *operator.Operator
	Pool *pgxpool.Pool
	RDB  *redis.Client
}

// Open connects the optional PostgreSQL ledger and Redis journal, registers
// the configured source providers and builds the operator.
func Open(ctx context.Context, cfg config.Config, log *logger.Logger) (*Runtime, error) {
	layout, err := fleetfs.NewLayout(cfg.Root)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "bootstrap", "invalid root")
	}

	rt := &Runtime{}
	opts := operator.Options{Log: log, CleanupOnFailure: cfg.CleanupOnFailure}

	if cfg.DatabaseURL != "" {
		log.Info("connecting to PostgreSQL")
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap", "connect postgres")
		}
		rt.Pool = pool
		if err := pool.Ping(ctx); err != nil {
			rt.Close()
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap", "ping postgres")
		}
		repo := ledger.NewRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			rt.Close()
			return nil, err
		}
		opts.Ledger = repo
		log.Info("dispatch ledger enabled")
	}

	if cfg.RedisAddr != "" {
		log.Info("connecting to Redis")
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		rt.RDB = rdb
		if err := rdb.Ping(ctx).Err(); err != nil {
			rt.Close()
			return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap", "ping redis")
		}
		opts.Journal = journal.NewRedisJournal(rdb, cfg.JournalKey, cfg.JournalMax)
		log.Info("dispatch journal enabled", "key", cfg.JournalKey, "max", cfg.JournalMax)
	}

	resolver, err := sources.FromConfig(ctx, cfg)
	if err != nil {
		rt.Close()
		return nil, errors.WrapWithCode(err, errors.CodeUnavailable, "bootstrap", "source providers")
	}
	opts.Sources = resolver
	log.Info("source providers registered", "schemes", resolver.Schemes())

	rt.Op = operator.New(layout, opts)
	return rt, nil
}

// Close releases the connections. It is safe to call more than once.
func (rt *Runtime) Close() {
	if rt.Pool != nil {
		rt.Pool.Close()
		rt.Pool = nil
	}
	if rt.RDB != nil {
		_ = rt.RDB.Close()
		rt.RDB = nil
	}
}

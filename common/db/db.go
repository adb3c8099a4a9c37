package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/walrusgate/contentgate/common/config"
	"github.com/walrusgate/contentgate/common/logger"
)

const (
	// SQLSTATE unique_violation
	uniqueViolation = "23505"

	connectTimeout = 5 * time.Second
	healthTimeout  = 3 * time.Second
)

// DB is the shared postgres pool. Repositories embed its query methods.
type DB struct {
	*pgxpool.Pool
	log *logger.Logger
}

// PoolConfig translates the database section of cfg into pool settings
func PoolConfig(cfg *config.Config) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	d := cfg.Database
	if d.MaxConns > 0 {
		pc.MaxConns = int32(d.MaxConns)
	}
	if d.MinConns > 0 {
		pc.MinConns = int32(d.MinConns)
	}
	if pc.MinConns > pc.MaxConns {
		pc.MinConns = pc.MaxConns
	}
	if d.MaxLifetime > 0 {
		pc.MaxConnLifetime = d.MaxLifetime
	}
	if d.MaxIdleTime > 0 {
		pc.MaxConnIdleTime = d.MaxIdleTime
	}
	return pc, nil
}

// New opens the pool described by cfg
func New(ctx context.Context, cfg *config.Config, log *logger.Logger) (*DB, error) {
	pc, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, pc, log)
}

// Connect opens a pool and fails unless the server answers a ping
func Connect(ctx context.Context, pc *pgxpool.Config, log *logger.Logger) (*DB, error) {
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database %s: %w", pc.ConnConfig.Host, err)
	}

	log.Info("database connected",
		"host", pc.ConnConfig.Host,
		"db", pc.ConnConfig.Database,
		"max_conns", pc.MaxConns)

	return &DB{Pool: pool, log: log}, nil
}

func (db *DB) Close() {
	db.log.Info("closing database connection pool")
	db.Pool.Close()
}

// Health pings the server with a short timeout
func (db *DB) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	return db.Ping(ctx)
}

// UniqueViolation reports whether err is a unique constraint violation and,
// if so, the name of the violated constraint.
func UniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return pgErr.ConstraintName, true
	}
	return "", false
}

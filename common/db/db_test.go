package db

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/common/config"
)

func TestUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "purchases_payment_proof_key"}

	name, ok := UniqueViolation(fmt.Errorf("insert purchase: %w", pgErr))
	assert.True(t, ok)
	assert.Equal(t, "purchases_payment_proof_key", name)

	_, ok = UniqueViolation(&pgconn.PgError{Code: "23503"})
	assert.False(t, ok)

	_, ok = UniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}

func TestPoolConfig(t *testing.T) {
	cfg := config.Default("contentgate-test")
	cfg.Database.MaxConns = 4
	cfg.Database.MinConns = 10
	cfg.Database.MaxLifetime = time.Hour

	pc, err := PoolConfig(cfg)
	require.NoError(t, err)

	assert.Equal(t, int32(4), pc.MaxConns)
	assert.Equal(t, int32(4), pc.MinConns, "min is capped at max")
	assert.Equal(t, time.Hour, pc.MaxConnLifetime)
	assert.Equal(t, cfg.Database.Host, pc.ConnConfig.Host)
	assert.Equal(t, cfg.Database.Database, pc.ConnConfig.Database)
}

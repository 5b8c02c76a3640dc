// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sso/internal/dbx"
	"github.com/dmitrijs2005/sso/internal/server/migrations"
	"github.com/dmitrijs2005/sso/internal/server/repositories/recoverytokens"
	"github.com/dmitrijs2005/sso/internal/server/repositories/users"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/redis/go-redis/v9"
)

// PostgresRepositoryManager vends PostgreSQL-backed repositories. The
// recovery ledger can be moved to Redis with WithRedisLedger.
type PostgresRepositoryManager struct {
	ledger recoverytokens.Repository
}

// Option configures a PostgresRepositoryManager.
type Option func(*PostgresRepositoryManager)

// WithRedisLedger keeps consumed recovery token ids in Redis instead of
// the used_recovery_tokens table. Consumption then no longer joins the
// caller's transaction.
func WithRedisLedger(client redis.UniversalClient) Option {
	return func(m *PostgresRepositoryManager) {
		m.ledger = recoverytokens.NewRedisLedger(client)
	}
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

// RecoveryTokens returns the recovery ledger, bound to the provided DBTX
// unless a Redis ledger is configured.
func (m *PostgresRepositoryManager) RecoveryTokens(db dbx.DBTX) recoverytokens.Repository {
	if m.ledger != nil {
		return m.ledger
	}
	return recoverytokens.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager(opts ...Option) *PostgresRepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

package recoverytokens

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/dmitrijs2005/sso/internal/dbx"
)

// PostgresRepository stores consumed ids in used_recovery_tokens over
// dbx.DBTX, so Consume can share a transaction with the password update.
type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) Consume(ctx context.Context, jti, userID string, expiresAt time.Time) error {
	query := `
		INSERT INTO used_recovery_tokens (jti, user_id, expires_at, used_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jti) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, jti, userID, expiresAt, r.now().UTC())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrTokenAlreadyUsed
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM used_recovery_tokens
		WHERE expires_at < $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

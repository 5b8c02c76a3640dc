package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/dmitrijs2005/sso/internal/dbx"
	"github.com/dmitrijs2005/sso/internal/server/models"
	"github.com/google/uuid"
)

// emailConstraint is the unique index on users.email created by the
// migrations.
const emailConstraint = "users_email_uq"

const selectColumns = `id, email, password_hash, status_id, created_at, updated_at, deleted_at`

type PostgresRepository struct {
	db  dbx.DBTX
	now func() time.Time
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db, now: time.Now}
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + selectColumns + ` FROM users
		 WHERE email = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + selectColumns + ` FROM users
		 WHERE id = $1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) Save(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	query :=
		`INSERT INTO users (id, email, password_hash, status_id, created_at, updated_at, deleted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
		   email = EXCLUDED.email,
		   password_hash = EXCLUDED.password_hash,
		   status_id = EXCLUDED.status_id,
		   updated_at = EXCLUDED.updated_at,
		   deleted_at = EXCLUDED.deleted_at
		 RETURNING created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.PasswordHash, int64(user.StatusID),
		user.CreatedAt, user.UpdatedAt, user.DeletedAt,
	).Scan(&user.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err, emailConstraint) {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, current, hash string) error {
	query := `UPDATE users SET password_hash = $2, updated_at = $3
		 WHERE id = $1`
	args := []any{id, hash, r.now().UTC()}
	if current != "" {
		query += ` AND password_hash = $4`
		args = append(args, current)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var deletedAt sql.NullTime

	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.StatusID,
		&user.CreatedAt, &user.UpdatedAt, &deletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if deletedAt.Valid {
		t := deletedAt.Time
		user.DeletedAt = &t
	}
	return user, nil
}

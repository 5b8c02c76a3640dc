package recoverytokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/sso/internal/common"
)

const (
	consumeQ = `(?s)^\s*INSERT\s+INTO\s+used_recovery_tokens\s*\(jti,\s*user_id,\s*expires_at,\s*used_at\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4\)\s*ON\s+CONFLICT\s*\(jti\)\s*DO\s+NOTHING\s*$`
	purgeQ   = `(?s)^\s*DELETE\s+FROM\s+used_recovery_tokens\s+WHERE\s+expires_at\s*<\s*\$1\s*$`
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestConsume_FirstUse(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(30 * time.Minute)
	mock.ExpectExec(consumeQ).
		WithArgs("jti-1", "u1", exp, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Consume(context.Background(), "jti-1", "u1", exp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestConsume_AlreadyUsed(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(consumeQ).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Consume(context.Background(), "jti-1", "u1", time.Now())
	if !errors.Is(err, common.ErrTokenAlreadyUsed) {
		t.Fatalf("want ErrTokenAlreadyUsed, got %v", err)
	}
}

func TestConsume_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(consumeQ).
		WillReturnError(errors.New("db down"))

	err := repo.Consume(context.Background(), "jti-1", "u1", time.Now())
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(purgeQ).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 3 {
		t.Fatalf("want 3 rows, got %d", n)
	}
}

func TestDeleteExpired_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(purgeQ).
		WillReturnError(errors.New("db err"))

	if _, err := repo.DeleteExpired(context.Background(), time.Now()); err == nil {
		t.Fatalf("expected error")
	}
}

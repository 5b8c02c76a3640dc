package server

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/dmitrijs2005/sso/internal/server/audit"
	"github.com/dmitrijs2005/sso/internal/server/config"
	"github.com/dmitrijs2005/sso/internal/server/limiter"
	"github.com/dmitrijs2005/sso/internal/server/notify"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.LogFormat = "text"
	c.BcryptCost = 4
	return c
}

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}

	orig := openDB
	openDB = func(string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = orig })
	return mock
}

func TestNewSender(t *testing.T) {
	c := testConfig()

	s, err := newSender(c, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &notify.LogSender{}, s)

	c.SMTPHost = "smtp.example.com"
	c.SMTPFrom = "noreply@example.com"
	s, err = newSender(c, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &notify.SMTPSender{}, s)
}

func TestNewLimiter(t *testing.T) {
	c := testConfig()
	assert.IsType(t, limiter.Noop{}, newLimiter(c, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c.LoginRateLimit = 1
	l := newLimiter(c, client)
	require.NoError(t, l.Allow(context.Background(), limiter.ScopeLogin, "a@b.com"))
	require.Error(t, l.Allow(context.Background(), limiter.ScopeLogin, "a@b.com"))
}

func TestNewAuditSink_LogOnly(t *testing.T) {
	sink, err := newAuditSink(context.Background(), testConfig(), testLogger())
	require.NoError(t, err)

	multi, ok := sink.(audit.MultiSink)
	require.True(t, ok)
	assert.Len(t, multi, 1)
}

func TestNewApp_BuildsAndCloses(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectClose()

	app, err := NewApp(context.Background(), testConfig())
	require.NoError(t, err)
	require.NotNil(t, app.authService)
	assert.Nil(t, app.redis)

	require.NoError(t, app.close(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_WithRedis(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectClose()
	mr := miniredis.RunT(t)

	c := testConfig()
	c.RedisAddr = mr.Addr()

	app, err := NewApp(context.Background(), c)
	require.NoError(t, err)
	require.NotNil(t, app.redis)

	require.NoError(t, app.ping(context.Background()))

	require.NoError(t, app.close(context.Background()))
}

func TestNewApp_BadLogFormat(t *testing.T) {
	c := testConfig()
	c.LogFormat = "xml"

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
}

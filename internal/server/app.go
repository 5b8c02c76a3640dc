// Package server assembles the SSO service: storage, token codec, password
// hasher, notification sender, rate limiter, audit pipeline, metrics and
// tracing, served over HTTP and gRPC until a termination signal arrives.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/sso/internal/buildinfo"
	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/dmitrijs2005/sso/internal/server/audit"
	"github.com/dmitrijs2005/sso/internal/server/auth"
	"github.com/dmitrijs2005/sso/internal/server/config"
	gs "github.com/dmitrijs2005/sso/internal/server/grpc"
	"github.com/dmitrijs2005/sso/internal/server/httpapi"
	"github.com/dmitrijs2005/sso/internal/server/limiter"
	"github.com/dmitrijs2005/sso/internal/server/metrics"
	"github.com/dmitrijs2005/sso/internal/server/notify"
	"github.com/dmitrijs2005/sso/internal/server/password"
	"github.com/dmitrijs2005/sso/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sso/internal/server/services"
	"github.com/dmitrijs2005/sso/internal/server/telemetry"
	"github.com/redis/go-redis/v9"
)

const (
	serviceName     = "sso"
	janitorInterval = time.Hour
	closeTimeout    = 10 * time.Second
)

// openDB is a seam for tests.
var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	redis       redis.UniversalClient
	repomanager repomanager.RepositoryManager
	audit       *audit.Dispatcher
	metrics     *metrics.Metrics
	authService *services.AuthService
}

// NewApp builds every component from c. Nothing listens until Run.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, err := logging.New(c.LogFormat, c.LogLevel, os.Stdout)
	if err != nil {
		return nil, err
	}
	app := &App{config: c, logger: logger}

	db, err := openDB(c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	app.db = db

	var rmOpts []repomanager.Option
	if c.RedisAddr != "" {
		app.redis = redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		rmOpts = append(rmOpts, repomanager.WithRedisLedger(app.redis))
	}
	app.repomanager = repomanager.NewPostgresRepositoryManager(rmOpts...)

	key, err := auth.NewKey(c.SecretKey)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	codec := auth.NewCodec(key)

	hasher, err := password.New(password.Config{Algorithm: c.PasswordAlgorithm, BcryptCost: c.BcryptCost})
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	sender, err := newSender(c, logger)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	sink, err := newAuditSink(ctx, c, logger)
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	app.audit = audit.NewDispatcher(audit.Config{Enabled: true, BufferSize: c.AuditBufferSize, DropIfFull: true}, sink)

	app.metrics, err = metrics.New()
	if err != nil {
		app.close(ctx)
		return nil, err
	}
	if err := app.metrics.ObserveAuditDropped(app.audit.Dropped); err != nil {
		app.close(ctx)
		return nil, err
	}

	app.authService = services.NewAuthService(db, app.repomanager, codec, hasher, sender, c,
		services.WithLimiter(newLimiter(c, app.redis)),
		services.WithAudit(app.audit),
		services.WithMetrics(app.metrics),
		services.WithLogger(logger.With("module", "auth_service")),
	)

	return app, nil
}

// newSender picks SMTP when a host is configured and the log sender
// otherwise.
func newSender(c *config.Config, l logging.Logger) (notify.Sender, error) {
	if c.SMTPHost == "" {
		return notify.NewLogSender(l.With("module", "mail")), nil
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     c.SMTPHost,
		Port:     c.SMTPPort,
		Username: c.SMTPUsername,
		Password: c.SMTPPassword,
		From:     c.SMTPFrom,
	})
}

func newLimiter(c *config.Config, client redis.UniversalClient) limiter.Limiter {
	if client == nil {
		return limiter.Noop{}
	}
	return limiter.NewRedisFixedWindow(client, c.RateLimitWindow, map[string]int{
		limiter.ScopeLogin:    c.LoginRateLimit,
		limiter.ScopeRecovery: c.RecoveryRateLimit,
	})
}

// newAuditSink always logs events and also archives them to S3 when a
// bucket is configured.
func newAuditSink(ctx context.Context, c *config.Config, l logging.Logger) (audit.Sink, error) {
	sinks := audit.MultiSink{audit.NewLogSink(l)}
	if c.AuditS3Bucket == "" {
		return sinks, nil
	}

	s3, err := audit.NewS3Sink(ctx, audit.S3Config{
		Bucket:    c.AuditS3Bucket,
		Region:    c.AuditS3Region,
		Endpoint:  c.AuditS3Endpoint,
		AccessKey: c.AuditS3AccessKey,
		SecretKey: c.AuditS3SecretKey,
		Prefix:    "audit",
		BatchSize: c.AuditBatchSize,
	}, l)
	if err != nil {
		return nil, fmt.Errorf("audit s3 sink: %w", err)
	}
	return append(sinks, s3), nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.GRPCAddr, app.logger, app.authService)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "gRPC server", "error", err)
		cancelFunc()
	}
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewServer(app.config.HTTPAddr, app.authService, app.logger,
		httpapi.WithMetrics(app.metrics.Handler()),
		httpapi.WithHealth(app.ping),
	)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, "HTTP server", "error", err)
		cancelFunc()
	}
}

// runJanitor periodically drops recovery ledger entries whose tokens have
// expired.
func (app *App) runJanitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := app.repomanager.RecoveryTokens(app.db).DeleteExpired(ctx, now)
			if err != nil {
				app.logger.Warn(ctx, "recovery ledger cleanup", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Debug(ctx, "recovery ledger cleanup", "deleted", n)
			}
		}
	}
}

func (app *App) ping(ctx context.Context) error {
	if err := app.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if app.redis != nil {
		if err := app.redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Run migrates the schema, serves HTTP (and gRPC when an address is
// configured) and blocks until a signal or a server failure.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "version", buildinfo.Version, "commit", buildinfo.Commit)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, buildinfo.Version, app.config.OTLPEndpoint)
	if err != nil {
		app.close(ctx)
		return fmt.Errorf("tracing: %w", err)
	}

	if err := app.repomanager.RunMigrations(ctx, app.db); err != nil {
		app.close(ctx)
		_ = shutdownTracing(ctx)
		return fmt.Errorf("migrations: %w", err)
	}

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	if app.config.GRPCAddr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.runJanitor(ctx)
	}()

	wg.Wait()

	app.logger.Info(ctx, "Stopping app...")

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()

	err = app.close(closeCtx)
	if terr := shutdownTracing(closeCtx); terr != nil {
		err = errors.Join(err, terr)
	}
	return err
}

// close releases everything NewApp acquired. It tolerates partially built
// apps.
func (app *App) close(ctx context.Context) error {
	var errs []error
	if app.audit != nil {
		if err := app.audit.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("audit: %w", err))
		}
	}
	if app.metrics != nil {
		if err := app.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("db: %w", err))
		}
	}
	return errors.Join(errs...)
}

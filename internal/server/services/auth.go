// Package services contains server-side business logic. AuthService is the
// authentication engine: registration, login, token checks and refresh,
// and password recovery by email.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/dmitrijs2005/sso/internal/dbx"
	"github.com/dmitrijs2005/sso/internal/logging"
	"github.com/dmitrijs2005/sso/internal/server/audit"
	"github.com/dmitrijs2005/sso/internal/server/auth"
	"github.com/dmitrijs2005/sso/internal/server/config"
	"github.com/dmitrijs2005/sso/internal/server/limiter"
	"github.com/dmitrijs2005/sso/internal/server/metrics"
	"github.com/dmitrijs2005/sso/internal/server/models"
	"github.com/dmitrijs2005/sso/internal/server/notify"
	"github.com/dmitrijs2005/sso/internal/server/password"
	"github.com/dmitrijs2005/sso/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sso/internal/server/repositories/users"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Operation names used for metrics and spans.
const (
	OpRegister          = "register"
	OpLogin             = "login"
	OpCheckToken        = "check_token"
	OpRefreshToken      = "refresh_token"
	OpSendRecoveryEmail = "send_recovery_email"
	OpChangePassword    = "change_password"
)

const (
	maxEmailLength  = 512
	recoverySubject = "Password recovery"
	dummyPassword   = "dummy-password-for-timing"
	tracerName      = "github.com/dmitrijs2005/sso/internal/server/services"
)

// Recorder receives one observation per operation.
type Recorder interface {
	Record(ctx context.Context, operation, outcome string, elapsed time.Duration)
}

type noopRecorder struct{}

func (noopRecorder) Record(context.Context, string, string, time.Duration) {}

// UserView is the outward representation of a user. It never carries the
// password hash.
type UserView struct {
	ID        string
	Email     string
	Status    string
	CreatedAt time.Time
}

// AuthResult is returned by the token-producing operations. RefreshToken is
// empty for CheckToken.
type AuthResult struct {
	UserID       string
	Token        string
	RefreshToken string
	User         UserView
}

// Authenticator is the engine surface served by the transports.
type Authenticator interface {
	Register(ctx context.Context, email, password string) (*AuthResult, error)
	Login(ctx context.Context, email, password string) (*AuthResult, error)
	CheckToken(ctx context.Context, token string) (*AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResult, error)
	SendRecoveryEmail(ctx context.Context, email, returnPath string) error
	ChangePassword(ctx context.Context, token, newPassword string) error
}

var _ Authenticator = (*AuthService)(nil)

// Option configures optional collaborators of AuthService.
type Option func(*AuthService)

func WithLimiter(l limiter.Limiter) Option { return func(s *AuthService) { s.limiter = l } }

func WithAudit(e audit.Emitter) Option { return func(s *AuthService) { s.audit = e } }

func WithMetrics(r Recorder) Option { return func(s *AuthService) { s.metrics = r } }

func WithLogger(l logging.Logger) Option { return func(s *AuthService) { s.log = l } }

func WithTracer(t trace.Tracer) Option { return func(s *AuthService) { s.tracer = t } }

// AuthService implements the credential lifecycle. It is safe for
// concurrent use; per-request state lives on the stack.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	hasher      password.Hasher
	sender      notify.Sender

	limiter limiter.Limiter
	audit   audit.Emitter
	metrics Recorder
	log     logging.Logger
	tracer  trace.Tracer

	accessTTL           time.Duration
	refreshTTL          time.Duration
	recoveryTTL         time.Duration
	minPasswordLength   int
	concealUnknownEmail bool

	dummyHash string
}

// NewAuthService wires the engine. Logger, limiter, audit and metrics
// default to no-ops.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, codec *auth.Codec, hasher password.Hasher,
	sender notify.Sender, cfg *config.Config, opts ...Option) *AuthService {
	s := &AuthService{
		db:                  db,
		repomanager:         m,
		codec:               codec,
		hasher:              hasher,
		sender:              sender,
		limiter:             limiter.Noop{},
		audit:               audit.NoOpSink{},
		metrics:             noopRecorder{},
		tracer:              otel.Tracer(tracerName),
		accessTTL:           cfg.AccessTokenTTL,
		refreshTTL:          cfg.RefreshTokenTTL,
		recoveryTTL:         cfg.RecoveryTokenTTL,
		minPasswordLength:   cfg.MinPasswordLength,
		concealUnknownEmail: cfg.ConcealUnknownEmail,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = discardLogger{}
	}

	// verified against on unknown emails so both login failures cost a hash
	if h, err := hasher.Hash(dummyPassword); err == nil {
		s.dummyHash = h
	}
	return s
}

// Register creates an ACTIVE user and returns a fresh token pair.
func (s *AuthService) Register(ctx context.Context, email, plain string) (res *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpRegister)
	defer func() { end(&err) }()

	email = normalizeEmail(email)
	defer func() { s.emitResult(ctx, audit.RegisterSuccess, audit.RegisterFailure, res, email, err) }()

	if email == "" || isBlank(plain) {
		return nil, newError(KindMissingData, msgMissingData)
	}
	if utf8.RuneCountInString(email) > maxEmailLength {
		return nil, newError(KindPolicyViolation, msgEmailTooLong)
	}

	repo := s.repomanager.Users(s.db)
	_, err = repo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return nil, newError(KindConflict, msgUserExists)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, internalError(fmt.Errorf("find user by email: %w", err))
	}

	if e := s.checkPolicy(plain); e != nil {
		return nil, e
	}

	hash, e := s.hash(plain)
	if e != nil {
		return nil, e
	}

	user := &models.User{Email: email, PasswordHash: hash, StatusID: models.StatusActive}
	if err := repo.Save(ctx, user); err != nil {
		if errors.Is(err, users.ErrDuplicateEmail) {
			return nil, newError(KindConflict, msgUserExists)
		}
		return nil, internalError(fmt.Errorf("save user: %w", err))
	}

	return s.issuePair(user)
}

// Login checks credentials and returns a fresh token pair. Unknown email
// and wrong password give the same answer.
func (s *AuthService) Login(ctx context.Context, email, plain string) (res *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpLogin)
	defer func() { end(&err) }()

	email = normalizeEmail(email)
	defer func() { s.emitResult(ctx, audit.LoginSuccess, audit.LoginFailure, res, email, err) }()

	if email == "" || isBlank(plain) {
		return nil, newError(KindMissingData, msgMissingData)
	}
	if e := s.allow(ctx, limiter.ScopeLogin, email); e != nil {
		return nil, e
	}

	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			if s.dummyHash != "" {
				_, _ = s.hasher.Verify(plain, s.dummyHash)
			}
			return nil, newError(KindUnauthorized, msgInvalidCredentials)
		}
		return nil, internalError(fmt.Errorf("find user by email: %w", err))
	}

	ok, err := s.hasher.Verify(plain, user.PasswordHash)
	if err != nil {
		return nil, internalError(fmt.Errorf("verify password for user %s: %w", user.ID, err))
	}
	if !ok {
		return nil, newError(KindUnauthorized, msgInvalidCredentials)
	}
	if !user.Usable() {
		return nil, newError(KindUnauthorized, msgUserNotActive)
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, repo, user, plain)
	}

	return s.issuePair(user)
}

// CheckToken validates an access token and resolves its user. No new token
// is issued.
func (s *AuthService) CheckToken(ctx context.Context, token string) (res *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpCheckToken)
	defer func() { end(&err) }()
	defer func() {
		if err != nil {
			s.emit(ctx, audit.TokenCheckFailure, "", "", err)
		}
	}()

	if isBlank(token) {
		return nil, newError(KindMissingData, msgMissingData)
	}

	_, user, e := s.resolve(ctx, token, auth.PurposeAccess)
	if e != nil {
		return nil, e
	}

	return &AuthResult{UserID: user.ID, Token: token, User: view(user)}, nil
}

// RefreshToken exchanges a valid refresh token for a new token pair.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (res *AuthResult, err error) {
	ctx, end := s.begin(ctx, OpRefreshToken)
	defer func() { end(&err) }()
	defer func() {
		if err != nil {
			s.emit(ctx, audit.TokenCheckFailure, "", "", err)
			return
		}
		s.emit(ctx, audit.TokenRefreshed, res.UserID, res.User.Email, nil)
	}()

	if isBlank(refreshToken) {
		return nil, newError(KindMissingData, msgMissingData)
	}

	_, user, e := s.resolve(ctx, refreshToken, auth.PurposeRefresh)
	if e != nil {
		return nil, e
	}

	return s.issuePair(user)
}

// SendRecoveryEmail mails a single-use password reset link built from
// returnPath and a password_reset token.
func (s *AuthService) SendRecoveryEmail(ctx context.Context, email, returnPath string) (err error) {
	ctx, end := s.begin(ctx, OpSendRecoveryEmail)
	defer func() { end(&err) }()

	email = normalizeEmail(email)
	var userID string
	defer func() { s.emit(ctx, audit.RecoveryRequested, userID, email, err) }()

	if email == "" || isBlank(returnPath) {
		return newError(KindMissingData, msgMissingData)
	}
	if e := s.allow(ctx, limiter.ScopeRecovery, email); e != nil {
		return e
	}

	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			if s.concealUnknownEmail {
				s.log.Info(ctx, "recovery requested for unknown email", "email", email)
				return nil
			}
			return newError(KindNotFound, msgUserNotFound)
		}
		return internalError(fmt.Errorf("find user by email: %w", err))
	}
	userID = user.ID

	if !user.Usable() {
		return newError(KindUnauthorized, msgUserNotActive)
	}

	token, err := s.codec.IssueFor(user.ID, auth.PurposePasswordReset, s.recoveryTTL)
	if err != nil {
		return internalError(fmt.Errorf("issue recovery token: %w", err))
	}

	link := RecoveryLink(returnPath, token)
	text := "Follow this link to create a new password: " + link
	body := `<p>Follow this link to create a new password:</p><p><a href="` + html.EscapeString(link) + `">Change password</a></p>`

	if err := s.sender.Send(ctx, user.Email, recoverySubject, text, body); err != nil {
		return internalError(fmt.Errorf("send recovery mail: %w", err))
	}

	s.log.Info(ctx, "recovery mail sent", "user_id", user.ID, "to", user.Email)
	return nil
}

// ChangePassword sets a new password using a password_reset token. Each
// token works once.
func (s *AuthService) ChangePassword(ctx context.Context, token, newPassword string) (err error) {
	ctx, end := s.begin(ctx, OpChangePassword)
	defer func() { end(&err) }()

	var userID string
	defer func() {
		if err != nil {
			s.emit(ctx, audit.PasswordChangeFailure, userID, "", err)
			return
		}
		s.emit(ctx, audit.PasswordChanged, userID, "", nil)
	}()

	if isBlank(token) || isBlank(newPassword) {
		return newError(KindMissingData, msgMissingData)
	}

	claims, user, e := s.resolve(ctx, token, auth.PurposePasswordReset)
	if e != nil {
		return e
	}
	userID = user.ID

	if claims.ID == "" || claims.ExpiresAt == nil {
		return newError(KindBadRequest, msgMalformedToken)
	}
	if e := s.checkPolicy(newPassword); e != nil {
		return e
	}

	hash, e := s.hash(newPassword)
	if e != nil {
		return e
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		err := s.repomanager.RecoveryTokens(tx).Consume(ctx, claims.ID, user.ID, claims.ExpiresAt.Time)
		if err != nil {
			if errors.Is(err, common.ErrTokenAlreadyUsed) {
				return newError(KindUnauthorized, msgTokenAlreadyUsed)
			}
			return internalError(fmt.Errorf("consume recovery token: %w", err))
		}

		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, user.ID, "", hash); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return newError(KindUnauthorized, msgUserNotFound)
			}
			return internalError(fmt.Errorf("update password: %w", err))
		}
		return nil
	})
}

// RecoveryLink joins returnPath and token with exactly one slash.
func RecoveryLink(returnPath, token string) string {
	return strings.TrimRight(returnPath, "/") + "/" + token
}

// begin starts the span and the timer for op. The returned func converts
// *errp to *Error, records the outcome and ends the span.
func (s *AuthService) begin(ctx context.Context, op string) (context.Context, func(errp *error)) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "AuthService."+op, trace.WithAttributes(attribute.String("sso.operation", op)))

	return ctx, func(errp *error) {
		outcome := metrics.OutcomeSuccess
		if *errp != nil {
			e := AsError(*errp)
			*errp = e

			outcome = metrics.OutcomeFailure
			span.SetAttributes(attribute.String("sso.error_kind", e.Kind.String()))
			if e.Kind == KindInternal {
				outcome = metrics.OutcomeError
				span.RecordError(e.cause)
				span.SetStatus(otelcodes.Error, internalMessage)
				s.log.Error(ctx, "operation failed", "operation", op, "error", e.cause)
			}
		}
		s.metrics.Record(ctx, op, outcome, time.Since(start))
		span.End()
	}
}

// resolve verifies token for purpose and loads its usable user.
func (s *AuthService) resolve(ctx context.Context, token string, purpose auth.Purpose) (*auth.Claims, *models.User, *Error) {
	claims, err := s.codec.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpired):
			return nil, nil, newError(KindUnauthorized, msgTokenExpired)
		case errors.Is(err, auth.ErrBadSignature):
			return nil, nil, newError(KindUnauthorized, msgInvalidSignature)
		default:
			return nil, nil, newError(KindBadRequest, msgMalformedToken)
		}
	}
	if claims.Purpose != purpose {
		return nil, nil, newError(KindUnauthorized, msgInvalidPurpose)
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, newError(KindUnauthorized, msgUserNotFound)
		}
		return nil, nil, internalError(fmt.Errorf("find user by id: %w", err))
	}
	if !user.Usable() {
		return nil, nil, newError(KindUnauthorized, msgUserNotActive)
	}
	return claims, user, nil
}

func (s *AuthService) issuePair(user *models.User) (*AuthResult, error) {
	access, err := s.codec.IssueFor(user.ID, auth.PurposeAccess, s.accessTTL)
	if err != nil {
		return nil, internalError(fmt.Errorf("issue access token: %w", err))
	}
	refresh, err := s.codec.IssueFor(user.ID, auth.PurposeRefresh, s.refreshTTL)
	if err != nil {
		return nil, internalError(fmt.Errorf("issue refresh token: %w", err))
	}
	return &AuthResult{UserID: user.ID, Token: access, RefreshToken: refresh, User: view(user)}, nil
}

func (s *AuthService) checkPolicy(plain string) *Error {
	if utf8.RuneCountInString(plain) < s.minPasswordLength {
		return newError(KindPolicyViolation, fmt.Sprintf("password length less than %d characters", s.minPasswordLength))
	}
	return nil
}

func (s *AuthService) hash(plain string) (string, *Error) {
	h, err := s.hasher.Hash(plain)
	if err != nil {
		if errors.Is(err, password.ErrTooLong) {
			return "", newError(KindPolicyViolation, msgPasswordTooLong)
		}
		return "", internalError(fmt.Errorf("hash password: %w", err))
	}
	return h, nil
}

// rehash upgrades a stored hash after a successful login. Failures are
// logged and never fail the login.
func (s *AuthService) rehash(ctx context.Context, repo users.Repository, user *models.User, plain string) {
	h, err := s.hasher.Hash(plain)
	if err != nil {
		s.log.Warn(ctx, "password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	// guarded by the hash just verified so a concurrent change wins
	if err := repo.UpdatePasswordHash(ctx, user.ID, user.PasswordHash, h); err != nil {
		s.log.Warn(ctx, "password rehash not saved", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = h
}

// allow applies the rate limiter. A limiter backend failure lets the
// request through.
func (s *AuthService) allow(ctx context.Context, scope, key string) *Error {
	err := s.limiter.Allow(ctx, scope, key)
	if err == nil {
		return nil
	}
	if errors.Is(err, common.ErrRateLimited) {
		return newError(KindRateLimited, msgTooManyRequests)
	}
	s.log.Warn(ctx, "rate limiter unavailable", "scope", scope, "error", err)
	return nil
}

func (s *AuthService) emitResult(ctx context.Context, ok, fail audit.Type, res *AuthResult, email string, err error) {
	if err != nil {
		s.emit(ctx, fail, "", email, err)
		return
	}
	s.emit(ctx, ok, res.UserID, email, nil)
}

func (s *AuthService) emit(ctx context.Context, typ audit.Type, userID, email string, err error) {
	e := audit.Event{
		Type:      typ,
		UserID:    userID,
		Email:     email,
		RequestID: logging.RequestIDFromContext(ctx),
		Success:   err == nil,
	}
	if err != nil {
		e.Reason = AsError(err).Message
	}
	s.audit.Emit(ctx, e)
}

func view(u *models.User) UserView {
	return UserView{ID: u.ID, Email: u.Email, Status: u.StatusID.String(), CreatedAt: u.CreatedAt}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isBlank(v string) bool {
	return strings.TrimSpace(v) == ""
}

type discardLogger struct{}

func (discardLogger) Debug(context.Context, string, ...any) {}
func (discardLogger) Info(context.Context, string, ...any)  {}
func (discardLogger) Warn(context.Context, string, ...any)  {}
func (discardLogger) Error(context.Context, string, ...any) {}
func (d discardLogger) With(...any) logging.Logger          { return d }

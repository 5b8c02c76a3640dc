// Package auth implements the signed identity token used by the SSO
// service: an HS256 JWT carrying subject, issue time, expiry and purpose.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrExpired      = errors.New("token expired")
	ErrBadSignature = errors.New("invalid signature")
	ErrMalformed    = errors.New("malformed token")
)

// Purpose separates token kinds sharing one key and encoding.
type Purpose string

const (
	PurposeAccess        Purpose = "access"
	PurposeRefresh       Purpose = "refresh"
	PurposePasswordReset Purpose = "password_reset"
)

// jtiNamespace seeds deterministic token ids (UUIDv5).
var jtiNamespace = uuid.MustParse("4d1f4d3c-0b8e-4f43-9a35-5b7b8a3f2c11")

// Key is the process-wide signing secret. It is built once from
// configuration and never mutated.
type Key struct {
	secret []byte
}

// NewKey copies secret into an immutable Key.
func NewKey(secret string) (Key, error) {
	if secret == "" {
		return Key{}, errors.New("empty signing key")
	}
	return Key{secret: []byte(secret)}, nil
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Purpose Purpose `json:"purpose"`
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// WithIssuer sets the iss claim on issued tokens and requires it on verify.
func WithIssuer(issuer string) Option {
	return func(c *Codec) { c.issuer = issuer }
}

// Codec issues and verifies tokens. It holds no mutable state and is safe
// for concurrent use.
type Codec struct {
	key    Key
	now    func() time.Time
	issuer string
	parser *jwt.Parser
}

func NewCodec(key Key, opts ...Option) *Codec {
	c := &Codec{key: key, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(c.issuer))
	}
	c.parser = jwt.NewParser(parserOpts...)

	return c
}

// Issue returns an access token for userID valid for lifetime.
func (c *Codec) Issue(userID string, lifetime time.Duration) (string, error) {
	return c.IssueFor(userID, PurposeAccess, lifetime)
}

// IssueFor returns a token of the given purpose. The encoding is
// deterministic: the same subject, purpose and issue second give the same
// token.
func (c *Codec) IssueFor(userID string, purpose Purpose, lifetime time.Duration) (string, error) {
	if userID == "" {
		return "", errors.New("empty subject")
	}

	now := c.now()
	issuedAt := now.Truncate(time.Second)
	// exp has whole-second precision; round up so the token never expires
	// before now+lifetime.
	expiresAt := now.Add(lifetime).Add(time.Second - 1).Truncate(time.Second)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        tokenID(userID, purpose, issuedAt),
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature and expiry and returns the claims.
// Errors wrap ErrExpired, ErrBadSignature or ErrMalformed.
func (c *Codec) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return c.key.secret, nil
	})
	if err != nil {
		return nil, classify(token, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	return claims, nil
}

func classify(token string, err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		// header and payload decode, so only the signature segment is damaged
		if _, _, uerr := jwt.NewParser().ParseUnverified(token, &Claims{}); uerr == nil {
			return fmt.Errorf("%w: %w", ErrBadSignature, err)
		}
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}

func tokenID(userID string, purpose Purpose, issuedAt time.Time) string {
	seed := string(purpose) + "|" + userID + "|" + strconv.FormatInt(issuedAt.Unix(), 10)
	return uuid.NewSHA1(jtiNamespace, []byte(seed)).String()
}

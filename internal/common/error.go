// Package common defines shared constants and sentinel errors used across
// the SSO server and its admin client. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Recovery ledger errors.
	ErrTokenAlreadyUsed = errors.New("token already used")

	// Rate limiting.
	ErrRateLimited = errors.New("rate limited")
)

// Package recoverytokens is the single-use ledger for password recovery
// tokens. A token id (jti) can be consumed exactly once; the entry only has
// to outlive the token itself.
package recoverytokens

import (
	"context"
	"time"
)

// Repository records consumed recovery token ids.
type Repository interface {
	// Consume marks jti as used. It returns common.ErrTokenAlreadyUsed if
	// the id was consumed before.
	Consume(ctx context.Context, jti, userID string, expiresAt time.Time) error

	// DeleteExpired drops entries whose token expired before now and
	// returns how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

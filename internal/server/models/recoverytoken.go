package models

import "time"

// RecoveryToken is a consumed password-recovery token id (jti).
type RecoveryToken struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	UsedAt    time.Time
}

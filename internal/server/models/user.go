// Package models holds the server-side domain records persisted by the
// repositories.
package models

import "time"

// StatusID references a row of the record_status table.
type StatusID int64

const (
	StatusActive   StatusID = 1
	StatusInactive StatusID = 2
)

func (s StatusID) String() string {
	switch s {
	case StatusActive:
		return "ACTIVE"
	case StatusInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

// User is a credential record. PasswordHash never leaves the server.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	StatusID     StatusID
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// Usable reports whether the user may authenticate: ACTIVE and not
// soft-deleted.
func (u *User) Usable() bool {
	return u != nil && u.StatusID == StatusActive && u.DeletedAt == nil
}

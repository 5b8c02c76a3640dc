// Package users is the credential store: persistence of user records keyed
// by id with a unique, normalized email.
package users

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/sso/internal/server/models"
)

// ErrDuplicateEmail is returned by Save when another user already owns the
// email.
var ErrDuplicateEmail = errors.New("email already registered")

// Repository looks users up and persists them. Lookups return
// common.ErrorNotFound when no row matches.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	// Save inserts the user or updates the row with the same id. A user
	// without an id gets a fresh one.
	Save(ctx context.Context, user *models.User) error
	// UpdatePasswordHash replaces only the password hash of user id. When
	// current is not empty the row is updated only while it still holds
	// that hash. No matching row gives common.ErrorNotFound.
	UpdatePasswordHash(ctx context.Context, id, current, hash string) error
}

// Package users is the credential store: persistence of user records.
package users

import (
	"context"

	"github.com/dmitrijs2005/assistauth/internal/server/models"
)

// Repository persists user records. Email lookups are case-insensitive and
// implementations report a duplicate email with common.ErrorAlreadyExists
// and a missing record with common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePasswordHash(ctx context.Context, id string, passwordHash string) error
	UpdateStatus(ctx context.Context, id string, status models.Status) error
}

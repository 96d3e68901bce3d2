// Package resettokens is the password reset store.
package resettokens

import (
	"context"

	"github.com/dmitrijs2005/assistauth/internal/server/models"
)

// Repository persists single-use password reset tokens by digest.
type Repository interface {
	// Create stores a new reset token. ID and CreatedAt are filled in.
	Create(ctx context.Context, token *models.PasswordResetToken) error

	// Find returns the token in whatever state it is in, or
	// common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.PasswordResetToken, error)

	// Consume marks the token used if it has not been used yet and reports
	// whether this call did it.
	Consume(ctx context.Context, tokenHash string) (bool, error)
}

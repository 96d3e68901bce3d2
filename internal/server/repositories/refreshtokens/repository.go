// Package refreshtokens is the token store: persistence of device sessions
// identified by the digest of their refresh token.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking refresh tokens.
type Repository interface {
	// Create stores a new session. ID and CreatedAt are filled in.
	Create(ctx context.Context, token *models.RefreshToken) error

	// Find returns the session with the given token digest whatever its
	// state, so callers can tell replayed and expired tokens apart.
	// A missing token yields common.ErrorNotFound.
	Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error)

	// Revoke marks the session revoked at time at only if it is not revoked
	// yet and reports whether this call did it. Exactly one of several
	// concurrent callers gets true.
	Revoke(ctx context.Context, tokenHash string, reason models.RevokeReason, at time.Time) (bool, error)

	// RevokeAllForUser revokes every unrevoked session of userID at time at
	// and returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string, reason models.RevokeReason, at time.Time) (int64, error)
}

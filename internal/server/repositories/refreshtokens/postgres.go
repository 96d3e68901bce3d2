package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/dbx"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (user_id, token_hash, device_info, ip_address, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query, token.UserID, token.TokenHash, token.DeviceInfo, token.IPAddress, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, device_info, ip_address, created_at, expires_at, revoked_at, revoked_reason
		FROM refresh_tokens
		WHERE token_hash = $1
	`
	t := &models.RefreshToken{}
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, query, tokenHash).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.DeviceInfo,
		&t.IPAddress, &t.CreatedAt, &t.ExpiresAt, &revokedAt, &t.RevokedReason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	return t, nil
}

// Revoke relies on the row lock taken by UPDATE: a concurrent second caller
// re-evaluates the predicate after the first commits and matches no row.
// The revocation time comes from the caller's clock, the same one the
// rotation grace window is measured with.
func (r *PostgresRepository) Revoke(ctx context.Context, tokenHash string, reason models.RevokeReason, at time.Time) (bool, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $3, revoked_reason = $2
		WHERE token_hash = $1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, tokenHash, reason, at.UTC())
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string, reason models.RevokeReason, at time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $3, revoked_reason = $2
		WHERE user_id = $1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, reason, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

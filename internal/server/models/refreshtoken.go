package models

import "time"

// RevokeReason records why a session stopped being usable.
type RevokeReason string

const (
	RevokeRotated         RevokeReason = "rotated"
	RevokeLogout          RevokeReason = "logout"
	RevokeLogoutAll       RevokeReason = "logout_all"
	RevokePasswordChanged RevokeReason = "password_changed"
	RevokePasswordReset   RevokeReason = "password_reset"
	RevokeReuseDetected   RevokeReason = "reuse_detected"
	RevokeStatusChanged   RevokeReason = "status_changed"
)

// RefreshToken is one device session. Only the digest of the opaque token
// is kept.
type RefreshToken struct {
	ID            string
	UserID        string
	TokenHash     string
	DeviceInfo    string
	IPAddress     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	RevokedAt     *time.Time
	RevokedReason RevokeReason
}

func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

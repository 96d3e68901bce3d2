package models

import "time"

// PasswordResetToken is a single-use credential mailed on forgot-password.
type PasswordResetToken struct {
	ID         string
	UserID     string
	TokenHash  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

func (t *PasswordResetToken) Consumed() bool {
	return t.ConsumedAt != nil
}

func (t *PasswordResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

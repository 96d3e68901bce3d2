// Package session persists the CLI login state (email and tokens) as
// key/value pairs.
package session

import "context"

// Keys used by the CLI.
const (
	KeyEmail        = "email"
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

type Repository interface {
	// Get returns "" when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}

package client

import (
	"context"

	"github.com/dmitrijs2005/assistauth/internal/client/models"
)

// Client is the API surface the CLI uses. Calls that act on an existing
// session take its access token explicitly.
type Client interface {
	Register(ctx context.Context, reg models.Registration) (*models.Session, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	LogoutAll(ctx context.Context, accessToken string) (int64, error)
	ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	Me(ctx context.Context, accessToken string) (*models.User, error)
	Ping(ctx context.Context) error
}

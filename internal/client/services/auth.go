// Package services contains application services for the authctl CLI.
// AuthService drives the server session lifecycle and keeps the current
// tokens in the local session database.
package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/assistauth/internal/client/client"
	"github.com/dmitrijs2005/assistauth/internal/client/models"
	"github.com/dmitrijs2005/assistauth/internal/client/repositories/session"
	"github.com/dmitrijs2005/assistauth/internal/dbx"
)

// AuthService defines the account operations offered by the CLI.
//
// Calls needing an access token refresh the session once and retry when the
// server answers 401 "token expired". Operations after which the server no longer honours the
// stored refresh token (logout, logout-all, password change) clear the local
// session.
type AuthService interface {
	Register(ctx context.Context, reg models.Registration) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	Whoami(ctx context.Context) (*models.User, error)
	Refresh(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) (int64, error)
	ChangePassword(ctx context.Context, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) (string, error)
	CurrentEmail(ctx context.Context) (string, error)
	Ping(ctx context.Context) error
}

type authService struct {
	client client.Client
	db     *sql.DB
}

func NewAuthService(c client.Client, db *sql.DB) AuthService {
	return &authService{client: c, db: db}
}

func (a *authService) sessionRepo() session.Repository {
	return session.NewSQLiteRepository(a.db)
}

func (a *authService) saveSession(ctx context.Context, email string, t models.Tokens) error {
	return dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := session.NewSQLiteRepository(tx)
		if email != "" {
			if err := repo.Set(ctx, session.KeyEmail, email); err != nil {
				return err
			}
		}
		if err := repo.Set(ctx, session.KeyAccessToken, t.AccessToken); err != nil {
			return err
		}
		return repo.Set(ctx, session.KeyRefreshToken, t.RefreshToken)
	})
}

func (a *authService) clearSession(ctx context.Context) error {
	return a.sessionRepo().Clear(ctx)
}

func (a *authService) Register(ctx context.Context, reg models.Registration) (*models.User, error) {
	s, err := a.client.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	if err := a.saveSession(ctx, s.User.Email, s.Tokens); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return &s.User, nil
}

func (a *authService) Login(ctx context.Context, email, password string) (*models.User, error) {
	s, err := a.client.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := a.saveSession(ctx, s.User.Email, s.Tokens); err != nil {
		return nil, fmt.Errorf("session saving error: %w", err)
	}
	return &s.User, nil
}

// Refresh rotates the stored refresh token. A rejected token ends the
// local session.
func (a *authService) Refresh(ctx context.Context) error {
	refreshToken, err := a.sessionRepo().Get(ctx, session.KeyRefreshToken)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return client.ErrNotLoggedIn
	}

	t, err := a.client.Refresh(ctx, refreshToken)
	if err != nil {
		if client.IsUnauthorized(err) {
			_ = a.clearSession(ctx)
		}
		return err
	}
	return a.saveSession(ctx, "", *t)
}

// withAccess runs fn with the stored access token. When the server reports
// the token expired, the session is refreshed and fn retried once.
func (a *authService) withAccess(ctx context.Context, fn func(accessToken string) error) error {
	accessToken, err := a.sessionRepo().Get(ctx, session.KeyAccessToken)
	if err != nil {
		return err
	}
	if accessToken == "" {
		return client.ErrNotLoggedIn
	}

	err = fn(accessToken)
	if !client.IsTokenExpired(err) {
		return err
	}

	if err := a.Refresh(ctx); err != nil {
		return err
	}
	accessToken, err = a.sessionRepo().Get(ctx, session.KeyAccessToken)
	if err != nil {
		return err
	}
	return fn(accessToken)
}

func (a *authService) Whoami(ctx context.Context) (*models.User, error) {
	var u *models.User
	err := a.withAccess(ctx, func(accessToken string) error {
		var err error
		u, err = a.client.Me(ctx, accessToken)
		return err
	})
	return u, err
}

func (a *authService) Logout(ctx context.Context) error {
	refreshToken, err := a.sessionRepo().Get(ctx, session.KeyRefreshToken)
	if err != nil {
		return err
	}
	if refreshToken == "" {
		return client.ErrNotLoggedIn
	}

	err = a.withAccess(ctx, func(accessToken string) error {
		return a.client.Logout(ctx, accessToken, refreshToken)
	})
	if cerr := a.clearSession(ctx); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *authService) LogoutAll(ctx context.Context) (int64, error) {
	var n int64
	err := a.withAccess(ctx, func(accessToken string) error {
		var err error
		n, err = a.client.LogoutAll(ctx, accessToken)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, a.clearSession(ctx)
}

func (a *authService) ChangePassword(ctx context.Context, currentPassword, newPassword string) error {
	err := a.withAccess(ctx, func(accessToken string) error {
		return a.client.ChangePassword(ctx, accessToken, currentPassword, newPassword)
	})
	if err != nil {
		return err
	}
	return a.clearSession(ctx)
}

func (a *authService) ForgotPassword(ctx context.Context, email string) (string, error) {
	return a.client.ForgotPassword(ctx, email)
}

func (a *authService) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	return a.client.ResetPassword(ctx, token, newPassword)
}

// CurrentEmail returns the email of the stored session, or "" when logged out.
func (a *authService) CurrentEmail(ctx context.Context) (string, error) {
	accessToken, err := a.sessionRepo().Get(ctx, session.KeyAccessToken)
	if err != nil || accessToken == "" {
		return "", err
	}
	return a.sessionRepo().Get(ctx, session.KeyEmail)
}

func (a *authService) Ping(ctx context.Context) error {
	return a.client.Ping(ctx)
}

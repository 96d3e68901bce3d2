// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, session rotation and
// revocation, and the password change and reset flows.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/apperr"
	"github.com/dmitrijs2005/assistauth/internal/common"
	"github.com/dmitrijs2005/assistauth/internal/cryptox"
	"github.com/dmitrijs2005/assistauth/internal/dbx"
	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/auth"
	"github.com/dmitrijs2005/assistauth/internal/server/config"
	"github.com/dmitrijs2005/assistauth/internal/server/mail"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

const (
	MsgInvalidCredentials = "invalid email or password"
	MsgAccountNotActive   = "account is not active"
	MsgWrongPassword      = "current password is incorrect"
	MsgEmailTaken         = "email already registered"

	// ForgotPasswordMessage is returned for every forgot-password request.
	ForgotPasswordMessage = "if that email is registered, a password reset link has been sent"
)

// opaque token size in bytes, before hex encoding
const tokenBytes = 32

const maxDeviceInfoLen = 512

// A rotated token presented again within rotationGrace is a lost race
// between two refreshes of the same client, not a replay.
const rotationGrace = 5 * time.Second

// mailTimeout bounds one background reset mail delivery.
const mailTimeout = 30 * time.Second

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// AuthResult is returned by the operations that open a session.
type AuthResult struct {
	User   *models.User
	Tokens *TokenPair
}

type RegisterInput struct {
	Email      string
	Password   string
	Name       string
	Country    string
	City       string
	DeviceInfo string
	IPAddress  string
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
	IPAddress  string
}

// UserService provides authentication-related operations. All failures it
// returns are *apperr.Error values.
type UserService struct {
	repomanager    repomanager.RepositoryManager
	notifier       mail.Notifier
	logger         logging.Logger
	jwtSecret      []byte
	accessTTL      time.Duration
	refreshTTL     time.Duration
	resetTTL       time.Duration
	storeTimeout   time.Duration
	bcryptCost     int
	minPassword    int
	reuseDetection bool
	now            func() time.Time
	mailWG         sync.WaitGroup
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(m repomanager.RepositoryManager, notifier mail.Notifier, logger logging.Logger, cfg *config.Config) *UserService {
	return &UserService{
		repomanager:    m,
		notifier:       notifier,
		logger:         logger,
		jwtSecret:      []byte(cfg.SecretKey),
		accessTTL:      cfg.AccessTokenValidityDuration,
		refreshTTL:     cfg.RefreshTokenValidityDuration,
		resetTTL:       cfg.ResetTokenValidityDuration,
		storeTimeout:   cfg.StoreTimeout,
		bcryptCost:     cfg.BcryptCost,
		minPassword:    cfg.PasswordMinLength,
		reuseDetection: cfg.ReuseDetection,
		now:            time.Now,
	}
}

// Register creates an active user with role "user" and opens its first
// session in the same transaction.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	in.Email = normalizeEmail(in.Email)
	in.Name = trimSpace(in.Name)
	in.Country = trimSpace(in.Country)
	in.City = trimSpace(in.City)
	if err := s.validateRegistration(in); err != nil {
		return nil, err
	}

	_, err := s.repomanager.Users(s.repomanager.DB()).FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return nil, apperr.Conflict(MsgEmailTaken)
	case !errors.Is(err, common.ErrorNotFound):
		return nil, internal("find user", err)
	}

	hash, err := cryptox.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, internal("hash password", err)
	}

	user := &models.User{
		Email:        in.Email,
		PasswordHash: hash,
		Name:         in.Name,
		Role:         models.RoleUser,
		Status:       models.StatusActive,
		Country:      in.Country,
		City:         in.City,
	}

	var tokens *TokenPair
	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		user, err = s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			if errors.Is(err, common.ErrorAlreadyExists) || dbx.IsUniqueViolation(err) {
				return apperr.Conflict(MsgEmailTaken)
			}
			return internal("create user", err)
		}
		tokens, err = s.openSession(ctx, tx, user, in.DeviceInfo, in.IPAddress)
		return err
	})
	if err != nil {
		return nil, classify("register", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID)
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// Login verifies credentials and opens a session for the device. Unknown
// emails and wrong passwords fail identically.
func (s *UserService) Login(ctx context.Context, in LoginInput) (*AuthResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.repomanager.Users(s.repomanager.DB()).FindByEmail(ctx, normalizeEmail(in.Email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			cryptox.BurnPasswordCheck(in.Password, s.bcryptCost)
			return nil, apperr.Unauthorized(MsgInvalidCredentials)
		}
		return nil, internal("find user", err)
	}

	ok, err := s.checkPassword(user, in.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Unauthorized(MsgInvalidCredentials)
	}

	if !user.Status.CanSignIn() {
		return nil, apperr.Forbidden(MsgAccountNotActive)
	}

	var tokens *TokenPair
	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		tokens, err = s.openSession(ctx, tx, user, in.DeviceInfo, in.IPAddress)
		return err
	})
	if err != nil {
		return nil, classify("login", err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID, "ip", in.IPAddress)
	return &AuthResult{User: user, Tokens: tokens}, nil
}

// RefreshToken exchanges a refresh token for a new pair. The presented
// token is revoked in the same transaction that stores its successor, and
// the revocation is conditional, so of several concurrent calls with one
// token exactly one succeeds.
//
// Presenting a token that was already rotated is treated as theft: with
// reuse detection on, every session of the owner is revoked.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hash := cryptox.HashToken(refreshToken)

	var (
		tokens   *TokenPair
		replayed *models.RefreshToken
	)
	err := s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		session, err := repo.Find(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apperr.Unauthorized(apperr.MsgInvalidToken)
			}
			return internal("find refresh token", err)
		}

		if session.Revoked() {
			if s.reuseDetection && session.RevokedReason == models.RevokeRotated &&
				s.now().Sub(*session.RevokedAt) > rotationGrace {
				if _, err := repo.RevokeAllForUser(ctx, session.UserID, models.RevokeReuseDetected, s.now()); err != nil {
					return internal("revoke sessions", err)
				}
				// commit the revocation, report the failure below
				replayed = session
				return nil
			}
			return apperr.Unauthorized(apperr.MsgInvalidToken)
		}

		if session.Expired(s.now()) {
			return apperr.Unauthorized(apperr.MsgTokenExpired)
		}

		user, err := s.repomanager.Users(tx).FindByID(ctx, session.UserID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apperr.Unauthorized(apperr.MsgInvalidToken)
			}
			return internal("find user", err)
		}
		if !user.Status.CanSignIn() {
			return apperr.Forbidden(MsgAccountNotActive)
		}

		revoked, err := repo.Revoke(ctx, hash, models.RevokeRotated, s.now())
		if err != nil {
			return internal("revoke refresh token", err)
		}
		if !revoked {
			return apperr.Unauthorized(apperr.MsgInvalidToken)
		}

		tokens, err = s.openSession(ctx, tx, user, session.DeviceInfo, session.IPAddress)
		return err
	})
	if err != nil {
		return nil, classify("refresh token", err)
	}

	if replayed != nil {
		s.logger.Warn(ctx, "rotated refresh token reused, all sessions revoked",
			"user_id", replayed.UserID, "session_id", replayed.ID)
		return nil, apperr.Unauthorized(apperr.MsgInvalidToken)
	}

	return tokens, nil
}

// Logout revokes the session of refreshToken. Unknown, foreign and already
// revoked tokens are ignored.
func (s *UserService) Logout(ctx context.Context, userID, refreshToken string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hash := cryptox.HashToken(refreshToken)

	err := s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.RefreshTokens(tx)

		session, err := repo.Find(ctx, hash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return internal("find refresh token", err)
		}
		if session.UserID != userID {
			return nil
		}

		if _, err := repo.Revoke(ctx, hash, models.RevokeLogout, s.now()); err != nil {
			return internal("revoke refresh token", err)
		}
		return nil
	})
	return classify("logout", err)
}

// LogoutAll revokes every active session of the user and returns how many
// there were.
func (s *UserService) LogoutAll(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var n int64
	err := s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		n, err = s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, userID, models.RevokeLogoutAll, s.now())
		if err != nil {
			return internal("revoke sessions", err)
		}
		return nil
	})
	if err != nil {
		return 0, classify("logout all", err)
	}

	s.logger.Info(ctx, "all sessions revoked", "user_id", userID, "count", n)
	return n, nil
}

// ChangePassword replaces the password after verifying the current one and
// revokes every session, so the user has to log in again everywhere.
func (s *UserService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.repomanager.Users(s.repomanager.DB()).FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return apperr.Unauthorized(apperr.MsgInvalidToken)
		}
		return internal("find user", err)
	}

	ok, err := s.checkPassword(user, currentPassword)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.Unauthorized(MsgWrongPassword)
	}

	if msg := s.passwordProblem(newPassword); msg != "" {
		return validationError(map[string]string{"newPassword": msg})
	}
	if newPassword == currentPassword {
		return validationError(map[string]string{"newPassword": "must differ from the current password"})
	}

	hash, err := cryptox.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return internal("hash password", err)
	}

	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, userID, hash); err != nil {
			return internal("update password", err)
		}
		if _, err := s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, userID, models.RevokePasswordChanged, s.now()); err != nil {
			return internal("revoke sessions", err)
		}
		return nil
	})
	if err != nil {
		return classify("change password", err)
	}

	s.logger.Info(ctx, "password changed", "user_id", userID)
	return nil
}

// ForgotPassword starts the reset flow for email and returns the message
// shown to the caller. The message is the same whether or not the email
// belongs to an account and whether or not anything failed.
func (s *UserService) ForgotPassword(ctx context.Context, email string) string {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.requestPasswordReset(ctx, normalizeEmail(email)); err != nil {
		s.logger.Error(ctx, "password reset request failed", "error", err)
	}
	return ForgotPasswordMessage
}

func (s *UserService) requestPasswordReset(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.repomanager.DB()).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.logger.Debug(ctx, "password reset for unknown email")
			return nil
		}
		return fmt.Errorf("find user: %w", err)
	}
	if !user.Status.CanSignIn() {
		s.logger.Debug(ctx, "password reset for inactive account", "user_id", user.ID)
		return nil
	}

	raw, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		return err
	}

	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.ResetTokens(tx).Create(ctx, &models.PasswordResetToken{
			UserID:    user.ID,
			TokenHash: cryptox.HashToken(raw),
			ExpiresAt: s.now().Add(s.resetTTL),
		})
	})
	if err != nil {
		return fmt.Errorf("create reset token: %w", err)
	}

	s.mailWG.Add(1)
	go func() {
		defer s.mailWG.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mailTimeout)
		defer cancel()

		if err := s.notifier.SendPasswordResetEmail(ctx, user.Email, raw); err != nil {
			s.logger.Warn(ctx, "password reset email failed", "user_id", user.ID, "error", err)
		}
	}()
	return nil
}

// Wait blocks until every reset mail handed off by ForgotPassword has been
// sent or has failed.
func (s *UserService) Wait() {
	s.mailWG.Wait()
}

// ResetPassword sets a new password using a reset token. The token is
// consumed, the password replaced and every session revoked together.
func (s *UserService) ResetPassword(ctx context.Context, token, newPassword string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	hash := cryptox.HashToken(token)

	reset, err := s.repomanager.ResetTokens(s.repomanager.DB()).Find(ctx, hash)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return apperr.Unauthorized(apperr.MsgInvalidToken)
		}
		return internal("find reset token", err)
	}
	if reset.Consumed() {
		return apperr.Unauthorized(apperr.MsgInvalidToken)
	}
	if reset.Expired(s.now()) {
		return apperr.Unauthorized(apperr.MsgTokenExpired)
	}

	if msg := s.passwordProblem(newPassword); msg != "" {
		return validationError(map[string]string{"newPassword": msg})
	}

	user, err := s.repomanager.Users(s.repomanager.DB()).FindByID(ctx, reset.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return apperr.Unauthorized(apperr.MsgInvalidToken)
		}
		return internal("find user", err)
	}
	if !user.Status.CanSignIn() {
		return apperr.Forbidden(MsgAccountNotActive)
	}

	passwordHash, err := cryptox.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return internal("hash password", err)
	}

	err = s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		consumed, err := s.repomanager.ResetTokens(tx).Consume(ctx, hash)
		if err != nil {
			return internal("consume reset token", err)
		}
		if !consumed {
			return apperr.Unauthorized(apperr.MsgInvalidToken)
		}
		if err := s.repomanager.Users(tx).UpdatePasswordHash(ctx, user.ID, passwordHash); err != nil {
			return internal("update password", err)
		}
		if _, err := s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, user.ID, models.RevokePasswordReset, s.now()); err != nil {
			return internal("revoke sessions", err)
		}
		return nil
	})
	if err != nil {
		return classify("reset password", err)
	}

	s.logger.Info(ctx, "password reset", "user_id", user.ID)
	return nil
}

// Authenticate verifies an access token and loads the user it names.
// Users that disappeared are Unauthorized, users that may not sign in
// any more are Forbidden.
func (s *UserService) Authenticate(ctx context.Context, accessToken string) (*models.User, error) {
	principal, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		return nil, apperr.Classify(err)
	}

	// User ids are UUIDs; anything else cannot name an account.
	if _, err := uuid.Parse(principal.UserID); err != nil {
		return nil, apperr.Unauthorized(apperr.MsgInvalidToken)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.repomanager.Users(s.repomanager.DB()).FindByID(ctx, principal.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, apperr.Unauthorized(apperr.MsgInvalidToken)
		}
		return nil, internal("find user", err)
	}
	if !user.Status.CanSignIn() {
		return nil, apperr.Forbidden(MsgAccountNotActive)
	}
	return user, nil
}

// GetMe projects the authenticated user.
func (s *UserService) GetMe(user *models.User) models.PublicUser {
	return user.Public()
}

// SetUserStatus moves a user to another lifecycle state. Only admins may do
// it, and only a super admin may touch another admin. Leaving the active
// state revokes every session.
func (s *UserService) SetUserStatus(ctx context.Context, actor *models.User, userID string, status models.Status) (*models.User, error) {
	if !actor.Role.IsAdmin() {
		return nil, apperr.Forbidden("insufficient permissions")
	}
	if !status.Valid() {
		return nil, validationError(map[string]string{"status": "unknown status"})
	}
	if actor.ID == userID {
		return nil, apperr.BadRequest("cannot change own status")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, apperr.NotFound("user not found")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var target *models.User
	err := s.repomanager.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		target, err = s.repomanager.Users(tx).FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return apperr.NotFound("user not found")
			}
			return internal("find user", err)
		}
		if target.Role.IsAdmin() && actor.Role != models.RoleSuperAdmin {
			return apperr.Forbidden("insufficient permissions")
		}

		if err := s.repomanager.Users(tx).UpdateStatus(ctx, userID, status); err != nil {
			return internal("update status", err)
		}
		if !status.CanSignIn() {
			if _, err := s.repomanager.RefreshTokens(tx).RevokeAllForUser(ctx, userID, models.RevokeStatusChanged, s.now()); err != nil {
				return internal("revoke sessions", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, classify("set user status", err)
	}

	target.Status = status
	s.logger.Info(ctx, "user status changed", "user_id", userID, "status", status, "by", actor.ID)
	return target, nil
}

// --- helpers below ---

func (s *UserService) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// openSession mints an access token and stores a new refresh token for user.
func (s *UserService) openSession(ctx context.Context, tx dbx.DBTX, user *models.User, deviceInfo, ip string) (*TokenPair, error) {
	access, expiresAt, err := auth.GenerateToken(user.ID, user.Role, s.jwtSecret, s.accessTTL)
	if err != nil {
		return nil, internal("sign access token", err)
	}

	refresh, err := common.MakeRandHexString(tokenBytes)
	if err != nil {
		return nil, internal("generate refresh token", err)
	}

	if len(deviceInfo) > maxDeviceInfoLen {
		deviceInfo = deviceInfo[:maxDeviceInfoLen]
	}

	err = s.repomanager.RefreshTokens(tx).Create(ctx, &models.RefreshToken{
		UserID:     user.ID,
		TokenHash:  cryptox.HashToken(refresh),
		DeviceInfo: deviceInfo,
		IPAddress:  ip,
		ExpiresAt:  s.now().Add(s.refreshTTL),
	})
	if err != nil {
		return nil, internal("store refresh token", err)
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}

// checkPassword compares against the stored hash. Inputs bcrypt cannot
// hash never match.
func (s *UserService) checkPassword(user *models.User, password string) (bool, error) {
	if len(password) > cryptox.MaxPasswordBytes {
		cryptox.BurnPasswordCheck(password[:cryptox.MaxPasswordBytes], s.bcryptCost)
		return false, nil
	}
	ok, err := cryptox.CheckPassword(user.PasswordHash, password)
	if err != nil {
		return false, internal("check password", err)
	}
	return ok, nil
}

func internal(op string, err error) *apperr.Error {
	return apperr.Internal(fmt.Errorf("%s: %w", op, err))
}

// classify keeps errors already classified inside a transaction and turns
// everything else (commit failures, deadlines) into Internal.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	return internal(op, err)
}

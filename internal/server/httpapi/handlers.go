// Package httpapi exposes the auth service as a JSON REST API.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/dmitrijs2005/assistauth/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// AuthService is what the handlers need from services.UserService.
type AuthService interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.AuthResult, error)
	Login(ctx context.Context, in services.LoginInput) (*services.AuthResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID, refreshToken string) error
	LogoutAll(ctx context.Context, userID string) (int64, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	ForgotPassword(ctx context.Context, email string) string
	ResetPassword(ctx context.Context, token, newPassword string) error
	Authenticate(ctx context.Context, accessToken string) (*models.User, error)
	GetMe(user *models.User) models.PublicUser
	SetUserStatus(ctx context.Context, actor *models.User, userID string, status models.Status) (*models.User, error)
}

// Pinger reports store availability for /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	svc     AuthService
	store   Pinger
	logger  logging.Logger
	devMode bool
}

func NewHandler(svc AuthService, store Pinger, logger logging.Logger, devMode bool) *Handler {
	return &Handler{svc: svc, store: store, logger: logger, devMode: devMode}
}

type tokensResponse struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

type sessionResponse struct {
	User models.PublicUser `json:"user"`
	tokensResponse
}

func toTokens(p *services.TokenPair) tokensResponse {
	return tokensResponse{AccessToken: p.AccessToken, RefreshToken: p.RefreshToken, ExpiresAt: p.ExpiresAt}
}

func toSession(res *services.AuthResult) sessionResponse {
	return sessionResponse{User: res.User.Public(), tokensResponse: toTokens(res.Tokens)}
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Country  string `json:"country"`
	City     string `json:"city"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.svc.Register(r.Context(), services.RegisterInput{
		Email:      req.Email,
		Password:   req.Password,
		Name:       req.Name,
		Country:    req.Country,
		City:       req.City,
		DeviceInfo: r.UserAgent(),
		IPAddress:  clientIP(r),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusCreated, toSession(res), "registered")
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"email": req.Email, "password": req.Password}); err != nil {
		h.respondError(w, r, err)
		return
	}

	res, err := h.svc.Login(r.Context(), services.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: r.UserAgent(),
		IPAddress:  clientIP(r),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, toSession(res), "")
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"refreshToken": req.RefreshToken}); err != nil {
		h.respondError(w, r, err)
		return
	}

	pair, err := h.svc.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, toTokens(pair), "")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"refreshToken": req.RefreshToken}); err != nil {
		h.respondError(w, r, err)
		return
	}

	user := userFromContext(r.Context())
	if err := h.svc.Logout(r.Context(), user.ID, req.RefreshToken); err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil, "logged out")
}

type logoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

func (h *Handler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	n, err := h.svc.LogoutAll(r.Context(), user.ID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, logoutAllResponse{Revoked: n}, "logged out from all devices")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"currentPassword": req.CurrentPassword, "newPassword": req.NewPassword}); err != nil {
		h.respondError(w, r, err)
		return
	}

	user := userFromContext(r.Context())
	if err := h.svc.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil, "password changed, please login again")
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"email": req.Email}); err != nil {
		h.respondError(w, r, err)
		return
	}

	respond(w, http.StatusOK, nil, h.svc.ForgotPassword(r.Context(), req.Email))
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"token": req.Token, "newPassword": req.NewPassword}); err != nil {
		h.respondError(w, r, err)
		return
	}

	if err := h.svc.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, nil, "password has been reset, please login")
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, h.svc.GetMe(userFromContext(r.Context())), "")
}

type setStatusRequest struct {
	Status models.Status `json:"status"`
}

func (h *Handler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := decode(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := required(map[string]string{"status": string(req.Status)}); err != nil {
		h.respondError(w, r, err)
		return
	}

	actor := userFromContext(r.Context())
	user, err := h.svc.SetUserStatus(r.Context(), actor, chi.URLParam(r, "id"), req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	respond(w, http.StatusOK, user.Public(), "")
}

type healthResponse struct {
	Status string `json:"status"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn(ctx, "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Data: healthResponse{Status: "unavailable"}})
		return
	}
	respond(w, http.StatusOK, healthResponse{Status: "ok"}, "")
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/cryptox"
	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/config"
	"github.com/dmitrijs2005/assistauth/internal/server/models"
	"github.com/dmitrijs2005/assistauth/internal/server/ratelimit"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/assistauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "Str0ng!pw"

type captureNotifier struct {
	mu     sync.Mutex
	tokens []string
}

func (c *captureNotifier) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, token)
	return nil
}

type testEnv struct {
	server   *httptest.Server
	svc      *services.UserService
	store    *repomanager.MemoryRepositoryManager
	notifier *captureNotifier
}

func newEnv(t *testing.T, opts RouterOptions) *testEnv {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = 4

	store := repomanager.NewMemoryRepositoryManager()
	n := &captureNotifier{}
	svc := services.NewUserService(store, n, logging.Discard(), cfg)
	h := NewHandler(svc, store, logging.Discard(), false)

	srv := httptest.NewServer(NewRouter(h, opts))
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, svc: svc, store: store, notifier: n}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
		Debug   *struct {
			Error string `json:"error"`
		} `json:"debug"`
	} `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, apiResponse) {
	t.Helper()
	var rdr *bytes.Reader
	switch b := body.(type) {
	case nil:
		rdr = bytes.NewReader(nil)
	case string:
		rdr = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out apiResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

type session struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	} `json:"user"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

func decodeData[T any](t *testing.T, r apiResponse) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(r.Data, &v))
	return v
}

func (e *testEnv) register(t *testing.T, email string) session {
	t.Helper()
	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": email, "password": password, "name": "A"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeData[session](t, out)
}

func TestRegisterAndLogin(t *testing.T) {
	e := newEnv(t, RouterOptions{})

	s := e.register(t, "a@x.com")
	assert.Equal(t, "a@x.com", s.User.Email)
	assert.Equal(t, "user", s.User.Role)
	assert.NotEmpty(t, s.AccessToken)
	assert.NotEmpty(t, s.RefreshToken)

	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "A@x.com", "password": password, "name": "B"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, out.Success)
	assert.Equal(t, "CONFLICT", out.Error.Code)

	resp, out = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@x.com", "password": password})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, out.Success)
	assert.Equal(t, s.User.ID, decodeData[session](t, out).User.ID)
}

func TestLogin_UniformFailure(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	e.register(t, "a@x.com")

	r1, wrong := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@x.com", "password": "Wr0ngpass"})
	r2, unknown := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "z@x.com", "password": password})

	assert.Equal(t, http.StatusUnauthorized, r1.StatusCode)
	assert.Equal(t, r1.StatusCode, r2.StatusCode)
	assert.Equal(t, wrong.Error.Message, unknown.Error.Message)
	assert.Equal(t, services.MsgInvalidCredentials, wrong.Error.Message)
	assert.Nil(t, wrong.Error.Debug)
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t, RouterOptions{})

	tests := []struct {
		name    string
		body    any
		message string
		field   string
	}{
		{"malformed json", `{"email":`, "invalid JSON body", ""},
		{"unknown field", `{"email":"a@x.com","password":"x","admin":true}`, "invalid JSON body", ""},
		{"missing password", map[string]string{"email": "a@x.com"}, "validation failed", "password"},
		{"oversized", `{"email":"` + strings.Repeat("a", maxBodyBytes) + `"}`, "request body too large", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, out := e.do(t, http.MethodPost, "/api/v1/auth/login", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, "BAD_REQUEST", out.Error.Code)
			assert.Equal(t, tt.message, out.Error.Message)
			if tt.field != "" {
				assert.Contains(t, out.Error.Details, tt.field)
			}
		})
	}
}

func TestRegister_ReportsEveryInvalidField(t *testing.T) {
	e := newEnv(t, RouterOptions{})

	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"email": "bad", "password": "short"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BAD_REQUEST", out.Error.Code)
	assert.Equal(t, "validation failed", out.Error.Message)
	for _, field := range []string{"email", "password", "name"} {
		assert.Contains(t, out.Error.Details, field)
	}
}

func TestRefreshRotation(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	s := e.register(t, "a@x.com")

	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next := decodeData[session](t, out)
	assert.NotEqual(t, s.RefreshToken, next.RefreshToken)

	resp, out = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", out.Error.Message)
}

func TestProtectedRoutes(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	s := e.register(t, "a@x.com")

	resp, out := e.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", out.Error.Code)

	resp, _ = e.do(t, http.MethodGet, "/api/v1/auth/me", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, out = e.do(t, http.MethodGet, "/api/v1/auth/me", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decodeData[models.PublicUser](t, out)
	assert.Equal(t, "a@x.com", me.Email)
	assert.NotContains(t, string(out.Data), "password")

	resp, out = e.do(t, http.MethodPost, "/api/v1/auth/logout-all", s.AccessToken, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"revoked":1}`, string(out.Data))

	resp, _ = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLogout(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	s := e.register(t, "a@x.com")

	for i := 0; i < 2; i++ {
		resp, out := e.do(t, http.MethodPost, "/api/v1/auth/logout", s.AccessToken, map[string]string{"refreshToken": s.RefreshToken})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "logged out", out.Message)
	}

	resp, _ := e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	s := e.register(t, "a@x.com")

	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/change-password", s.AccessToken,
		map[string]string{"currentPassword": "Wr0ngpass", "newPassword": "N3wpassword"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, services.MsgWrongPassword, out.Error.Message)

	resp, out = e.do(t, http.MethodPost, "/api/v1/auth/change-password", s.AccessToken,
		map[string]string{"currentPassword": password, "newPassword": "N3wpassword"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "password changed, please login again", out.Message)

	resp, _ = e.do(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestForgotAndResetPassword(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	e.register(t, "a@x.com")

	r1, known := e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "a@x.com"})
	r2, unknown := e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "nobody@x.com"})
	assert.Equal(t, http.StatusOK, r1.StatusCode)
	assert.Equal(t, r1.StatusCode, r2.StatusCode)
	assert.Equal(t, known, unknown)
	e.svc.Wait()
	require.Len(t, e.notifier.tokens, 1)

	body := map[string]string{"token": e.notifier.tokens[0], "newPassword": "N3wpassword"}
	resp, _ := e.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/reset-password", "", body)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid token", out.Error.Message)

	resp, _ = e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "a@x.com", "password": "N3wpassword"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminSetStatus(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	target := e.register(t, "a@x.com")

	hash, err := cryptox.HashPassword(password, 4)
	require.NoError(t, err)
	_, err = e.store.Users(nil).Create(context.Background(), &models.User{
		Email: "admin@x.com", PasswordHash: hash, Name: "Admin", Role: models.RoleAdmin, Status: models.StatusActive,
	})
	require.NoError(t, err)
	_, out := e.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"email": "admin@x.com", "password": password})
	admin := decodeData[session](t, out)

	path := "/api/v1/admin/users/" + target.User.ID + "/status"

	resp, _ := e.do(t, http.MethodPatch, path, target.AccessToken, map[string]string{"status": "suspended"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out = e.do(t, http.MethodPatch, path, admin.AccessToken, map[string]string{"status": "suspended"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusSuspended, decodeData[models.PublicUser](t, out).Status)

	resp, out = e.do(t, http.MethodGet, "/api/v1/auth/me", target.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, services.MsgAccountNotActive, out.Error.Message)
}

func TestRateLimit(t *testing.T) {
	e := newEnv(t, RouterOptions{Limiter: ratelimit.NewMemoryLimiter(0.5, 1, time.Minute), RateLimitRPS: 0.5})

	body := map[string]string{"email": "a@x.com"}
	resp, _ := e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, out := e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", body)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "TOO_MANY_REQUESTS", out.Error.Code)
	assert.Equal(t, "2", resp.Header.Get("Retry-After"))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

func TestRateLimit_FailsOpen(t *testing.T) {
	e := newEnv(t, RouterOptions{Limiter: brokenLimiter{}, RateLimitRPS: 1})
	resp, _ := e.do(t, http.MethodPost, "/api/v1/auth/forgot-password", "", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotFoundRoute(t *testing.T) {
	e := newEnv(t, RouterOptions{})
	resp, out := e.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", out.Error.Code)
}

func TestRequestIDEcho(t *testing.T) {
	e := newEnv(t, RouterOptions{})

	req, _ := http.NewRequest(http.MethodGet, e.server.URL+"/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get("X-Request-ID"))

	resp, err = http.Get(e.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Len(t, resp.Header.Get("X-Request-ID"), 36)
}

func TestCORSPreflight(t *testing.T) {
	e := newEnv(t, RouterOptions{AllowedOrigins: []string{"https://app.example"}})

	req, _ := http.NewRequest(http.MethodOptions, e.server.URL+"/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "https://app.example", resp.Header.Get("Access-Control-Allow-Origin"))
}

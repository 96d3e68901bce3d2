package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/client/models"
	"github.com/dmitrijs2005/assistauth/internal/logging"
	"github.com/dmitrijs2005/assistauth/internal/server/config"
	"github.com/dmitrijs2005/assistauth/internal/server/httpapi"
	"github.com/dmitrijs2005/assistauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/assistauth/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "Str0ng!pw"

type captureNotifier struct {
	mu    sync.Mutex
	token string
	wait  func()
}

func (c *captureNotifier) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
	return nil
}

// last returns the newest reset token once pending deliveries are done.
func (c *captureNotifier) last() string {
	c.wait()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// newServer runs the real REST API over in-memory stores.
func newServer(t *testing.T) (*RESTClient, *captureNotifier) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.BcryptCost = 4

	store := repomanager.NewMemoryRepositoryManager()
	n := &captureNotifier{}
	svc := services.NewUserService(store, n, logging.Discard(), cfg)
	n.wait = svc.Wait
	h := httpapi.NewHandler(svc, store, logging.Discard(), false)

	srv := httptest.NewServer(httpapi.NewRouter(h, httpapi.RouterOptions{}))
	t.Cleanup(srv.Close)
	return NewRESTClient(srv.URL, 5*time.Second), n
}

func TestRESTClient_SessionLifecycle(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	s, err := c.Register(ctx, models.Registration{Email: "Ann@Example.com", Password: password, Name: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", s.User.Email)
	assert.Equal(t, "user", s.User.Role)
	require.NotEmpty(t, s.AccessToken)
	require.NotEmpty(t, s.RefreshToken)

	me, err := c.Me(ctx, s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, s.User.ID, me.ID)

	tokens, err := c.Refresh(ctx, s.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, s.RefreshToken, tokens.RefreshToken)

	_, err = c.Refresh(ctx, s.RefreshToken)
	assert.True(t, IsUnauthorized(err))

	require.NoError(t, c.Logout(ctx, tokens.AccessToken, tokens.RefreshToken))
	_, err = c.Refresh(ctx, tokens.RefreshToken)
	assert.True(t, IsUnauthorized(err))
}

func TestRESTClient_LoginLogoutAllAndChangePassword(t *testing.T) {
	c, _ := newServer(t)
	ctx := context.Background()

	_, err := c.Register(ctx, models.Registration{Email: "bob@example.com", Password: password, Name: "Bob"})
	require.NoError(t, err)

	s, err := c.Login(ctx, "bob@example.com", password)
	require.NoError(t, err)

	n, err := c.LogoutAll(ctx, s.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	err = c.ChangePassword(ctx, s.AccessToken, "wrong", "N3wer!pass")
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusUnauthorized, ae.Status)
	assert.Equal(t, "UNAUTHORIZED", ae.Code)

	require.NoError(t, c.ChangePassword(ctx, s.AccessToken, password, "N3wer!pass"))
	_, err = c.Login(ctx, "bob@example.com", "N3wer!pass")
	require.NoError(t, err)
}

func TestRESTClient_ForgotAndReset(t *testing.T) {
	c, n := newServer(t)
	ctx := context.Background()

	_, err := c.Register(ctx, models.Registration{Email: "cy@example.com", Password: password, Name: "Cy"})
	require.NoError(t, err)

	known, err := c.ForgotPassword(ctx, "cy@example.com")
	require.NoError(t, err)
	unknown, err := c.ForgotPassword(ctx, "nobody@example.com")
	require.NoError(t, err)
	assert.Equal(t, known, unknown)
	require.NotEmpty(t, n.last())

	msg, err := c.ResetPassword(ctx, n.last(), "Res3t!pass")
	require.NoError(t, err)
	assert.NotEmpty(t, msg)

	_, err = c.ResetPassword(ctx, n.last(), "Res3t!pass")
	assert.True(t, IsUnauthorized(err))

	_, err = c.Login(ctx, "cy@example.com", "Res3t!pass")
	require.NoError(t, err)
}

func TestRESTClient_ValidationDetails(t *testing.T) {
	c, _ := newServer(t)

	_, err := c.Register(context.Background(), models.Registration{Email: "bad", Password: "short", Name: ""})
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadRequest, ae.Status)
	assert.Equal(t, "BAD_REQUEST", ae.Code)
	assert.Contains(t, ae.Details, "email")
	assert.Contains(t, ae.Error(), "validation failed")
}

func TestRESTClient_Ping(t *testing.T) {
	c, _ := newServer(t)
	assert.NoError(t, c.Ping(context.Background()))
}

func TestRESTClient_Unavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewRESTClient(url, time.Second)
	err := c.Ping(context.Background())
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestRESTClient_NonEnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRESTClient(srv.URL, time.Second).Me(context.Background(), "tok")
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusBadGateway, ae.Status)
	assert.Equal(t, "UNKNOWN", ae.Code)
}

func TestRESTClient_SendsBearerAndUserAgent(t *testing.T) {
	var auth, ua string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth, ua = r.Header.Get("Authorization"), r.UserAgent()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"id":"1","email":"a@b.c"}}`))
	}))
	defer srv.Close()

	u, err := NewRESTClient(srv.URL, time.Second).Me(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "1", u.ID)
	assert.Equal(t, "Bearer tok", auth)
	assert.Equal(t, userAgent, ua)
}

func TestIsTokenExpired(t *testing.T) {
	assert.True(t, IsTokenExpired(&APIError{Status: http.StatusUnauthorized, Message: "token expired"}))
	assert.False(t, IsTokenExpired(&APIError{Status: http.StatusUnauthorized, Message: "invalid token"}))
	assert.False(t, IsTokenExpired(errors.New("token expired")))
}

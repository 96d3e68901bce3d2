package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/assistauth/internal/client/models"
)

const apiPrefix = "/api/v1"

// userAgent is stored by the server as the session's device info.
const userAgent = "authctl/1.0"

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type RESTClient struct {
	baseURL string
	http    *http.Client
}

func NewRESTClient(baseURL string, timeout time.Duration) *RESTClient {
	return &RESTClient{baseURL: baseURL, http: &http.Client{Timeout: timeout}}
}

// do sends body as JSON and decodes the envelope's data into out when out
// is not nil. It returns the envelope message.
func (c *RESTClient) do(ctx context.Context, method, path, accessToken string, body, out any) (string, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return "", &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		}
		return "", fmt.Errorf("decode response: %w", err)
	}

	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		ae := &APIError{Status: resp.StatusCode, Code: "UNKNOWN", Message: resp.Status}
		if env.Error != nil {
			ae.Code, ae.Message, ae.Details = env.Error.Code, env.Error.Message, env.Error.Details
		}
		return "", ae
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return "", fmt.Errorf("decode response data: %w", err)
		}
	}
	return env.Message, nil
}

func (c *RESTClient) Register(ctx context.Context, reg models.Registration) (*models.Session, error) {
	var s models.Session
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/register", "", reg, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *RESTClient) Login(ctx context.Context, email, password string) (*models.Session, error) {
	req := map[string]string{"email": email, "password": password}
	var s models.Session
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/login", "", req, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *RESTClient) Refresh(ctx context.Context, refreshToken string) (*models.Tokens, error) {
	req := map[string]string{"refreshToken": refreshToken}
	var t models.Tokens
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/refresh", "", req, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *RESTClient) Logout(ctx context.Context, accessToken, refreshToken string) error {
	req := map[string]string{"refreshToken": refreshToken}
	_, err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/logout", accessToken, req, nil)
	return err
}

func (c *RESTClient) LogoutAll(ctx context.Context, accessToken string) (int64, error) {
	var res struct {
		Revoked int64 `json:"revoked"`
	}
	if _, err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/logout-all", accessToken, nil, &res); err != nil {
		return 0, err
	}
	return res.Revoked, nil
}

func (c *RESTClient) ChangePassword(ctx context.Context, accessToken, currentPassword, newPassword string) error {
	req := map[string]string{"currentPassword": currentPassword, "newPassword": newPassword}
	_, err := c.do(ctx, http.MethodPost, apiPrefix+"/auth/change-password", accessToken, req, nil)
	return err
}

func (c *RESTClient) ForgotPassword(ctx context.Context, email string) (string, error) {
	return c.do(ctx, http.MethodPost, apiPrefix+"/auth/forgot-password", "", map[string]string{"email": email}, nil)
}

func (c *RESTClient) ResetPassword(ctx context.Context, token, newPassword string) (string, error) {
	req := map[string]string{"token": token, "newPassword": newPassword}
	return c.do(ctx, http.MethodPost, apiPrefix+"/auth/reset-password", "", req, nil)
}

func (c *RESTClient) Me(ctx context.Context, accessToken string) (*models.User, error) {
	var u models.User
	if _, err := c.do(ctx, http.MethodGet, apiPrefix+"/auth/me", accessToken, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *RESTClient) Ping(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
	return err
}

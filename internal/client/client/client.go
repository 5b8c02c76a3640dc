// Package client is a Go client for the SSO HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/sso/internal/common"
	"github.com/google/uuid"
)

var ErrUnavailable = errors.New("server unavailable")

// APIError is a non-success envelope returned by the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is the data of a successful register, login, check or refresh.
type Session struct {
	UserID       string `json:"userId"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type HTTPClient struct {
	baseURL string
	http    *http.Client
}

type Option func(*HTTPClient)

func WithHTTPClient(h *http.Client) Option { return func(c *HTTPClient) { c.http = h } }

func New(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *HTTPClient) Register(ctx context.Context, email, password string) (*Session, error) {
	return c.session(ctx, "/auth/register", map[string]string{"email": email, "password": password})
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (*Session, error) {
	return c.session(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

func (c *HTTPClient) CheckToken(ctx context.Context, token string) (*Session, error) {
	return c.session(ctx, "/auth/check_token", map[string]string{"token": token})
}

func (c *HTTPClient) RefreshToken(ctx context.Context, refreshToken string) (*Session, error) {
	return c.session(ctx, "/auth/refresh_token", map[string]string{"refreshToken": refreshToken})
}

func (c *HTTPClient) SendRecoveryEmail(ctx context.Context, email, returnPath string) error {
	_, err := c.post(ctx, "/auth/send_email_recover_password",
		map[string]string{"email": email, "passwordChangeInterfacePath": returnPath})
	return err
}

func (c *HTTPClient) ChangePassword(ctx context.Context, token, password string) error {
	_, err := c.post(ctx, "/auth/password_change", map[string]string{"token": token, "password": password})
	return err
}

func (c *HTTPClient) session(ctx context.Context, path string, body any) (*Session, error) {
	data, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

// post sends body as JSON and returns the envelope data of a successful
// response.
func (c *HTTPClient) post(ctx context.Context, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.RequestIDHeaderName, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, &APIError{Status: resp.StatusCode, Message: "unreadable response"}
	}
	if !env.Success || resp.StatusCode != http.StatusOK {
		return nil, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	return env.Data, nil
}

package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func TestLogin_Success(t *testing.T) {
	var got map[string]string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NotEmpty(t, r.Header.Get("x-request-id"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)

		_, _ = io.WriteString(w, `{"success":true,"message":"ok","data":{"userId":"u-1","token":"a","refreshToken":"r","user":{"id":"u-1","email":"a@b.com","status":"ACTIVE","createdAt":"2026-01-02T03:04:05Z"}}}`)
	})

	s, err := c.Login(context.Background(), "a@b.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"email": "a@b.com", "password": "password1"}, got)
	assert.Equal(t, "u-1", s.UserID)
	assert.Equal(t, "a", s.Token)
	assert.Equal(t, "r", s.RefreshToken)
	assert.Equal(t, "a@b.com", s.User.Email)
}

func TestLogin_APIError(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"success":false,"message":"invalid credentials","data":null}`)
	})

	_, err := c.Login(context.Background(), "a@b.com", "bad")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid credentials", apiErr.Message)
}

func TestRecoveryAndChange(t *testing.T) {
	var paths []string
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		_, _ = io.WriteString(w, `{"success":true,"message":"ok","data":null}`)
	})

	ctx := context.Background()
	require.NoError(t, c.SendRecoveryEmail(ctx, "a@b.com", "https://app/reset"))
	require.NoError(t, c.ChangePassword(ctx, "tok", "newpassword"))
	assert.Equal(t, []string{"/auth/send_email_recover_password", "/auth/password_change"}, paths)
}

func TestUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).CheckToken(context.Background(), "tok")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestUnreadableResponse(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "<html>bad gateway</html>")
	})

	_, err := c.RefreshToken(context.Background(), "r")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

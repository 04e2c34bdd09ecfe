package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/models"
)

// fakeProvider accepts "good" as the only valid access token and "refresh-ok"
// as the only valid refresh token.
func fakeProvider(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		switch r.URL.Path {
		case "/auth/v1/user":
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(models.User{ID: "user-1", Email: "a@example.com"})
		case "/auth/v1/token":
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if r.URL.Query().Get("grant_type") != "refresh_token" || body["refresh_token"] != "refresh-ok" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "good",
				"refresh_token": "refresh-2",
				"user":          models.User{ID: "user-1", Email: "a@example.com"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestClient_SetSession(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	c := NewClient(srv.URL, "anon", 5*time.Second, zap.NewNop())
	ctx := context.Background()

	s, err := c.SetSession(ctx, TokenPair{AccessToken: "good", RefreshToken: "r"})
	require.NoError(t, err)
	assert.Equal(t, "good", s.AccessToken)
	assert.Equal(t, "user-1", s.User.ID)

	s, err = c.SetSession(ctx, TokenPair{AccessToken: "expired", RefreshToken: "refresh-ok"})
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", s.RefreshToken)

	_, err = c.SetSession(ctx, TokenPair{AccessToken: "expired", RefreshToken: "revoked"})
	assert.Error(t, err)
}

func TestResolver(t *testing.T) {
	srv := fakeProvider(t)
	defer srv.Close()
	c := NewClient(srv.URL, "anon", 5*time.Second, zap.NewNop())
	res := NewResolver(c, "sb-test-auth-token")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	u, err := res.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "user-1", u.ID)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sb-test-auth-token", Value: url.PathEscape(`["good","r"]`)})
	u, err = res.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", u.Email)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	_, err = res.Resolve(req)
	assert.ErrorIs(t, err, ErrMissingCredentials)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer bad")
	_, err = res.Resolve(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExtractBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := ExtractBearer(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "Basic abc")
	_, ok = ExtractBearer(req)
	assert.False(t, ok)

	req.Header.Set("Authorization", "bearer tok")
	tok, ok := ExtractBearer(req)
	assert.True(t, ok)
	assert.Equal(t, "tok", tok)
}

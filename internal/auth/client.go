// Package auth talks to the hosted auth provider (a GoTrue-compatible API)
// and resolves request identities.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/models"
)

var (
	// ErrInvalidToken is returned when the provider rejects an access token.
	ErrInvalidToken = errors.New("invalid or expired access token")
	// ErrNotConfigured is returned when no provider URL or key is set.
	ErrNotConfigured = errors.New("auth provider not configured")
)

// Client is a thin GoTrue client. It holds no session state of its own.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

func NewClient(providerURL, anonKey string, timeout time.Duration, logger *zap.Logger) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(providerURL, "/")).
		SetHeader("apikey", anonKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	return &Client{client: c, logger: logger}
}

type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	User         models.User `json:"user"`
}

// GetUser resolves the identity behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var user models.User
	resp, err := c.client.R().
		SetContext(ctx).
		SetAuthToken(accessToken).
		SetResult(&user).
		Get("/auth/v1/user")
	if err != nil {
		return nil, fmt.Errorf("auth user request: %w", err)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return nil, ErrInvalidToken
	case resp.IsError():
		return nil, fmt.Errorf("auth user status %d: %s", resp.StatusCode(), resp.String())
	}
	if user.ID == "" {
		return nil, ErrInvalidToken
	}
	return &user, nil
}

// Refresh exchanges a refresh token for a new session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	var tok tokenResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("grant_type", "refresh_token").
		SetBody(map[string]string{"refresh_token": refreshToken}).
		SetResult(&tok).
		Post("/auth/v1/token")
	if err != nil {
		return nil, fmt.Errorf("auth refresh request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("auth refresh status %d: %s", resp.StatusCode(), resp.String())
	}
	return &models.Session{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		User:         tok.User,
	}, nil
}

// SetSession validates a token pair and returns the session it represents.
// An expired access token is refreshed once with the refresh token.
func (c *Client) SetSession(ctx context.Context, pair TokenPair) (*models.Session, error) {
	user, err := c.GetUser(ctx, pair.AccessToken)
	if err == nil {
		return &models.Session{
			AccessToken:  pair.AccessToken,
			RefreshToken: pair.RefreshToken,
			User:         *user,
		}, nil
	}
	if !errors.Is(err, ErrInvalidToken) {
		return nil, err
	}

	c.logger.Debug("Access token rejected, refreshing session")
	return c.Refresh(ctx, pair.RefreshToken)
}

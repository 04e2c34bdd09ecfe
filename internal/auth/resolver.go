package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/xaenox/reviewai/internal/models"
)

// ErrMissingCredentials is returned when a request carries neither a bearer
// token nor an auth cookie.
var ErrMissingCredentials = errors.New("missing credentials")

// UserLookup resolves an access token to a user.
type UserLookup interface {
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
}

// Resolver identifies the caller of an HTTP request.
type Resolver struct {
	lookup     UserLookup
	cookieName string
}

// NewResolver builds a Resolver. cookieName may be empty, in which case only
// bearer tokens are accepted.
func NewResolver(lookup UserLookup, cookieName string) *Resolver {
	return &Resolver{lookup: lookup, cookieName: cookieName}
}

// ExtractBearer returns the token of an "Authorization: Bearer <token>" header.
func ExtractBearer(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

// AccessToken returns the access token carried by r, preferring the
// Authorization header over the auth cookie.
func (res *Resolver) AccessToken(r *http.Request) (string, bool) {
	if token, ok := ExtractBearer(r); ok {
		return token, true
	}
	if res.cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(res.cookieName)
	if err != nil {
		return "", false
	}
	pair, err := DecodeCookie(c.Value)
	if err != nil {
		return "", false
	}
	return pair.AccessToken, true
}

// Resolve returns the user behind r.
func (res *Resolver) Resolve(r *http.Request) (*models.User, error) {
	if res.lookup == nil {
		return nil, ErrNotConfigured
	}
	token, ok := res.AccessToken(r)
	if !ok {
		return nil, ErrMissingCredentials
	}
	return res.lookup.GetUser(r.Context(), token)
}

type userKey struct{}

// WithUser stores u on ctx.
func WithUser(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the user stored by WithUser, if any.
func UserFrom(ctx context.Context) (*models.User, bool) {
	u, ok := ctx.Value(userKey{}).(*models.User)
	return u, ok && u != nil
}

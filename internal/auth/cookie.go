package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrUnsupportedCookie is returned when the auth cookie is neither a token
// pair array nor a token object.
var ErrUnsupportedCookie = errors.New("unsupported auth cookie format")

// CookieName derives the provider's auth cookie name from its URL:
// sb-<project-ref>-auth-token, where project-ref is the first host label.
func CookieName(providerURL string) (string, error) {
	u, err := url.Parse(providerURL)
	if err != nil {
		return "", fmt.Errorf("parse provider url: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("provider url %q has no host", providerURL)
	}
	ref, _, _ := strings.Cut(host, ".")
	return "sb-" + ref + "-auth-token", nil
}

// TokenPair is the credential pair carried by the auth cookie.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// DecodeCookie percent-decodes value and accepts either
// ["<access>", "<refresh>", ...] or {"access_token": ..., "refresh_token": ...}.
// Both tokens must be present.
func DecodeCookie(value string) (TokenPair, error) {
	decoded, err := url.PathUnescape(value)
	if err != nil {
		return TokenPair{}, fmt.Errorf("unescape cookie: %w", err)
	}

	var raw json.RawMessage
	if err := json.Unmarshal([]byte(decoded), &raw); err != nil {
		return TokenPair{}, fmt.Errorf("decode cookie: %w", err)
	}

	var pair TokenPair
	switch strings.TrimSpace(string(raw))[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return TokenPair{}, ErrUnsupportedCookie
		}
		if len(items) >= 2 {
			_ = json.Unmarshal(items[0], &pair.AccessToken)
			_ = json.Unmarshal(items[1], &pair.RefreshToken)
		}
	case '{':
		var obj struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return TokenPair{}, ErrUnsupportedCookie
		}
		pair = TokenPair{AccessToken: obj.AccessToken, RefreshToken: obj.RefreshToken}
	default:
		return TokenPair{}, ErrUnsupportedCookie
	}

	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return TokenPair{}, ErrUnsupportedCookie
	}
	return pair, nil
}

// EncodeCookie is the inverse of DecodeCookie for the array shape.
func EncodeCookie(pair TokenPair) string {
	b, _ := json.Marshal([]string{pair.AccessToken, pair.RefreshToken})
	return url.PathEscape(string(b))
}

// Package extension is the browser companion's background context: it
// derives a session from the web app's auth cookie and routes messages from
// content scripts and the popup.
package extension

import (
	"context"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/auth"
	"github.com/xaenox/reviewai/internal/models"
)

// CookieReader performs the privileged read of a cookie set by another
// origin.
type CookieReader interface {
	Cookie(ctx context.Context, origin *url.URL, name string) (string, bool)
}

// JarCookieReader reads cookies out of an http.CookieJar.
type JarCookieReader struct {
	Jar http.CookieJar
}

func (r JarCookieReader) Cookie(_ context.Context, origin *url.URL, name string) (string, bool) {
	for _, c := range r.Jar.Cookies(origin) {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// SessionInstaller validates a token pair with the auth provider.
type SessionInstaller interface {
	SetSession(ctx context.Context, pair auth.TokenPair) (*models.Session, error)
}

type SyncConfig struct {
	ProviderURL string
	AnonKey     string
	WebAppURL   string
}

// Synchronizer derives the extension's session from the web app's cookie.
// It holds no session state; see SessionCell.
type Synchronizer struct {
	cfg       SyncConfig
	cookies   CookieReader
	installer SessionInstaller
	logger    *zap.Logger
}

func NewSynchronizer(cfg SyncConfig, cookies CookieReader, installer SessionInstaller, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{cfg: cfg, cookies: cookies, installer: installer, logger: logger}
}

// Sync returns the current session or nil. Every failure (no config, no
// cookie, malformed cookie, provider rejection) is logged and reported as nil.
func (s *Synchronizer) Sync(ctx context.Context) *models.Session {
	if s.cfg.ProviderURL == "" || s.cfg.AnonKey == "" {
		return nil
	}

	name, err := auth.CookieName(s.cfg.ProviderURL)
	if err != nil {
		s.logger.Warn("Cannot derive auth cookie name", zap.Error(err))
		return nil
	}
	origin, err := url.Parse(s.cfg.WebAppURL)
	if err != nil || origin.Host == "" {
		s.logger.Warn("Invalid web app URL", zap.String("web_app_url", s.cfg.WebAppURL))
		return nil
	}

	value, ok := s.cookies.Cookie(ctx, origin, name)
	if !ok {
		s.logger.Debug("No auth cookie on web origin", zap.String("cookie", name))
		return nil
	}

	pair, err := auth.DecodeCookie(value)
	if err != nil {
		s.logger.Warn("Unsupported auth cookie", zap.String("cookie", name), zap.Error(err))
		return nil
	}

	session, err := s.installer.SetSession(ctx, pair)
	if err != nil {
		s.logger.Warn("Failed to install session", zap.Error(err))
		return nil
	}
	return session
}

// SessionCell is the single owner of the background context's current
// session. Writers serialize; the last write wins.
type SessionCell struct {
	mu      sync.RWMutex
	session *models.Session
}

func (c *SessionCell) Load() *models.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

func (c *SessionCell) Store(s *models.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

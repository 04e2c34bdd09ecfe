// Command reviewai-agent drives the browser companion headlessly: it derives
// the session from a web app cookie and analyzes product pages through the
// same router and overlay the extension uses.
package main

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xaenox/reviewai/internal/auth"
	"github.com/xaenox/reviewai/internal/extension"
	"github.com/xaenox/reviewai/pkg/config"
)

var (
	configFlag string
	cookieFlag string
	verbose    bool

	rootCmd = &cobra.Command{
		Use:   "reviewai-agent",
		Short: "Headless ReviewAI browser companion",
	}
)

func main() {
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "config.yaml", "path to the config file")
	rootCmd.PersistentFlags().StringVar(&cookieFlag, "cookie", "", "value of the web app auth cookie")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr")

	rootCmd.AddCommand(sessionCmd, analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// newCookieJar stands in for the browser's cookie store: the cookie flag is
// set on the web app origin.
func newCookieJar(cfg *config.Config) (*cookiejar.Jar, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	if cookieFlag != "" && cfg.Auth.Configured() {
		name, err := auth.CookieName(cfg.Auth.SupabaseURL)
		if err != nil {
			return nil, err
		}
		origin, err := url.Parse(cfg.Server.WebAppURL)
		if err != nil {
			return nil, fmt.Errorf("invalid web app URL: %w", err)
		}
		jar.SetCookies(origin, []*http.Cookie{{Name: name, Value: cookieFlag, Path: "/"}})
	}
	return jar, nil
}

// newSynchronizer builds the background context's session source.
func newSynchronizer(cfg *config.Config, jar http.CookieJar, logger *zap.Logger) *extension.Synchronizer {
	var installer extension.SessionInstaller
	if cfg.Auth.Configured() {
		installer = auth.NewClient(cfg.Auth.SupabaseURL, cfg.Auth.SupabaseAnonKey, cfg.Auth.Timeout, logger)
	}

	return extension.NewSynchronizer(extension.SyncConfig{
		ProviderURL: cfg.Auth.SupabaseURL,
		AnonKey:     cfg.Auth.SupabaseAnonKey,
		WebAppURL:   cfg.Server.WebAppURL,
	}, extension.JarCookieReader{Jar: jar}, installer, logger)
}

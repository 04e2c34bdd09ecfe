package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/xaenox/reviewai/internal/extension"
	"github.com/xaenox/reviewai/internal/overlay"
	"github.com/xaenox/reviewai/internal/scraper"
	"github.com/xaenox/reviewai/internal/verdictcache"
	"github.com/xaenox/reviewai/pkg/config"
)

var (
	htmlFlag    string
	refreshFlag bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Analyze an Amazon product page and print the verdict badge",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		productURL := args[0]

		cfg, err := config.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		logger := newLogger()
		defer logger.Sync()

		var page *scraper.Page
		if htmlFlag != "" {
			f, err := os.Open(htmlFlag)
			if err != nil {
				return err
			}
			defer f.Close()
			if page, err = scraper.Parse(f, productURL); err != nil {
				return err
			}
		} else {
			fetcher := scraper.NewFetcher(cfg.Scraper.UserAgent, cfg.Scraper.Timeout, logger)
			if page, err = fetcher.Fetch(ctx, productURL); err != nil {
				return err
			}
		}

		store, err := verdictcache.OpenSQLite(cfg.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		jar, err := newCookieJar(cfg)
		if err != nil {
			return err
		}
		syncer := newSynchronizer(cfg, jar, logger)
		client := extension.NewAnalyzeClient(cfg.Server.WebAppURL, jar, cfg.Scraper.Timeout, logger)
		router := extension.NewRouter(syncer, client, logger)
		router.Warm(ctx)

		ctrl := overlay.NewController(
			overlay.NewDocument(page),
			extension.NewRuntime(router),
			verdictcache.New(store, cfg.Cache.TTL, logger),
			logger,
		)
		if err := ctrl.Start(ctx); err != nil {
			return fmt.Errorf("mount overlay: %w", err)
		}

		if s := ctrl.Snapshot(); s.State != overlay.StateResult || refreshFlag {
			// The badge already shows the error; the exit status reports it.
			err = ctrl.Trigger(ctx)
		}

		fmt.Fprintln(cmd.OutOrStdout(), renderBadge(ctrl.Snapshot(), router.Session() != nil))
		return err
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&htmlFlag, "html", "", "read the page from a saved HTML file instead of fetching it")
	analyzeCmd.Flags().BoolVar(&refreshFlag, "refresh", false, "analyze even when a fresh cached verdict exists")
}

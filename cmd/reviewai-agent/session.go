package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xaenox/reviewai/pkg/config"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Derive the session from the web app auth cookie",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		logger := newLogger()
		defer logger.Sync()

		jar, err := newCookieJar(cfg)
		if err != nil {
			return err
		}
		syncer := newSynchronizer(cfg, jar, logger)

		session := syncer.Sync(cmd.Context())
		if session == nil {
			fmt.Fprintln(cmd.OutOrStdout(), mutedStyle.Render("No session"))
			return nil
		}

		out, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/songlink/linkreader/internal/config"
	"github.com/songlink/linkreader/internal/logging"
	"github.com/songlink/linkreader/internal/spotify"
	"github.com/songlink/linkreader/internal/store"
)

func newAuthCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize the Spotify account that owns the playlists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := ctx.load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := ensureCredentials(cmd.Context(), cfg, v, ctx.configPath(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			if cfg.Storage.Path == "" {
				return errors.New("storage.path must be set to keep the authorization")
			}

			logger, closer, err := logging.Setup(logging.Options{File: cfg.Logging.File, Level: cfg.Logging.Level})
			if err != nil {
				return fmt.Errorf("failed to set up logging: %w", err)
			}
			defer closer.Close()

			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open store (is the bot running?): %w", err)
			}
			defer st.Close()

			runCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			oauthCfg := spotify.OAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL)
			creds, err := spotify.NewAuthFlow(oauthCfg, cmd.OutOrStdout(), logger).Run(runCtx)
			if err != nil {
				return err
			}
			if err := st.SaveCredentials(creds); err != nil {
				return fmt.Errorf("failed to save credentials: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Credentials saved. Start the bot with: linkreader run")
			return nil
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/songlink/linkreader/internal/bot"
	"github.com/songlink/linkreader/internal/cache"
	"github.com/songlink/linkreader/internal/config"
	"github.com/songlink/linkreader/internal/domain"
	"github.com/songlink/linkreader/internal/logging"
	"github.com/songlink/linkreader/internal/metrics"
	"github.com/songlink/linkreader/internal/playlist"
	"github.com/songlink/linkreader/internal/setup"
	"github.com/songlink/linkreader/internal/spotify"
	"github.com/songlink/linkreader/internal/store"
)

const shutdownTimeout = 5 * time.Second

func newRunCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start collecting links",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, v, err := ctx.load(cmd.Flags())
			if err != nil {
				return err
			}
			if err := ensureCredentials(cmd.Context(), cfg, v, ctx.configPath(), cmd.ErrOrStderr()); err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg)
		},
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

// ensureCredentials prompts for missing credentials and saves the answers
func ensureCredentials(ctx context.Context, cfg *config.Config, v *viper.Viper, file string, out io.Writer) error {
	missing := cfg.MissingCredentials()
	filled, err := setup.FillMissing(ctx, setup.NewPrompter(), cfg)
	if err != nil {
		if errors.Is(err, setup.ErrNotInteractive) {
			return fmt.Errorf("missing %s: set them in the config file, environment or flags", strings.Join(missing, ", "))
		}
		return err
	}
	if !filled {
		return nil
	}
	if file == "" {
		file = v.ConfigFileUsed()
	}
	if file == "" {
		file = config.DefaultConfigFile()
	}
	if err := config.SaveConfig(v, cfg, file); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved credentials to %s\n", file)
	return nil
}

func runBot(ctx context.Context, cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, closer, err := logging.Setup(logging.Options{File: cfg.Logging.File, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	logger.Info("starting linkreader", "version", Version, "cacheSize", cfg.Cache.Size)

	st, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	if !st.Persistent() {
		logger.Warn("storage.path is empty, guild settings will not survive a restart")
	}

	client, err := spotifyClient(ctx, cfg, st, logger)
	if err != nil {
		return err
	}

	membership, err := cache.New(cfg.Cache.Size)
	if err != nil {
		return err
	}
	playlists := playlist.NewService(client, membership, logger)
	m := metrics.New(membership)

	gateway, err := bot.NewGateway(cfg.Discord.Token, logger)
	if err != nil {
		return err
	}
	b := bot.New(gateway, st, playlists, bot.Options{
		SpotifyUserID:        client.UserID(),
		DefaultPrefix:        cfg.Bot.DefaultPrefix,
		ValidPrefixes:        cfg.Bot.ValidPrefixes,
		ModeratorPermissions: cfg.Discord.ModeratorPermissions,
		FillCooldown:         cfg.Bot.FillCooldown,
		ResetCooldown:        cfg.Bot.ResetCooldown,
		Metrics:              m,
	}, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return gateway.Run(gctx, b)
	})
	if cfg.Metrics.Addr != "" {
		serveMetrics(gctx, g, cfg.Metrics.Addr, m, logger)
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// spotifyClient builds an authorized client and resolves the account ID
func spotifyClient(ctx context.Context, cfg *config.Config, creds domain.CredentialStore, logger *slog.Logger) (*spotify.Client, error) {
	oauthCfg := spotify.OAuthConfig(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret, cfg.Spotify.RedirectURL)
	httpClient, stored, err := spotify.NewHTTPClient(ctx, oauthCfg, creds, logger)
	if err != nil {
		return nil, err
	}

	client := spotify.NewClient(cfg.Spotify.APIURL, httpClient, stored.UserID, logger)
	if stored.UserID != "" {
		return client, nil
	}

	user, err := client.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to look up spotify account: %w", err)
	}
	return spotify.NewClient(cfg.Spotify.APIURL, httpClient, user.ID, logger), nil
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, m *metrics.Metrics, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

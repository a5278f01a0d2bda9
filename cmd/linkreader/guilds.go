package main

import (
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/songlink/linkreader/internal/domain"
	"github.com/songlink/linkreader/internal/store"
)

func newGuildsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "guilds",
		Short: "Inspect stored server settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every server the bot has joined",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := ctx.load(nil)
			if err != nil {
				return err
			}
			if cfg.Storage.Path == "" {
				return errors.New("storage.path is empty, nothing is stored")
			}

			st, err := store.Open(cfg.Storage.Path)
			if err != nil {
				return fmt.Errorf("failed to open store (is the bot running?): %w", err)
			}
			defer st.Close()

			guilds, err := st.ListGuilds()
			if err != nil {
				return err
			}
			if len(guilds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No servers stored")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderGuilds(guilds))
			return nil
		},
	})

	return cmd
}

func renderGuilds(guilds []*domain.GuildSettings) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Server", "ID", "Playlist", "Music channel", "Logging channel", "Prefix", "Status", "Last fill"})

	for _, g := range guilds {
		status := "ok"
		if !g.Operational {
			status = "not operational"
		}
		lastFill := "never"
		if !g.LastFill.IsZero() {
			lastFill = g.LastFill.Local().Format("2006-01-02 15:04")
		}
		tw.AppendRow(table.Row{
			g.Name,
			g.GuildID,
			orDash(g.PlaylistID),
			orDash(g.MusicChannel),
			orDash(g.LoggingChannel),
			g.Prefix,
			status,
			lastFill,
		})
	}

	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 6, Align: text.AlignCenter},
	})
	return tw.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

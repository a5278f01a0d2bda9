package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/songlink/linkreader/internal/domain"
	"github.com/songlink/linkreader/internal/links"
)

// historyPageSize is the most messages the chat API returns per request
const historyPageSize = 100

func (b *Bot) fill(ctx context.Context, req *request) error {
	limit := 0
	switch len(req.args) {
	case 0:
	case 1:
		n, err := strconv.Atoi(req.args[0])
		if err != nil || n < 1 {
			b.send(req.logger, req.msg.ChannelID, "Unable to understand fill command")
			return nil
		}
		limit = n
	default:
		b.send(req.logger, req.msg.ChannelID, "Unable to understand fill command")
		return nil
	}

	if !b.claimCooldown(req, b.opts.FillCooldown, func(g *domain.GuildSettings) *time.Time { return &g.LastFill }) {
		return nil
	}

	// Start below the command itself
	ids, scanned, err := b.collectTrackIDs(ctx, req.msg.ChannelID, req.msg.ID, limit)
	if err != nil {
		b.logToGuild(req.logger, req.guild, fmt.Sprintf("Error adding songs to playlist %s. Error: %v", req.guild.PlaylistID, err))
		return fmt.Errorf("failed to read channel history: %w", err)
	}
	b.opts.Metrics.LinksSeen(len(ids))
	req.logger.Info("scanned channel history", "messages", scanned, "tracks", len(ids))

	if len(ids) == 0 {
		b.logToGuild(req.logger, req.guild, fmt.Sprintf("No songs found in the last %d messages", scanned))
		return nil
	}

	added, err := b.playlists.AddTracksSkippingDuplicates(ctx, req.guild.PlaylistID, ids)
	b.opts.Metrics.TracksAdded(len(added))
	if err != nil {
		b.logToGuild(req.logger, req.guild, fmt.Sprintf("Error adding songs to playlist %s. Error: %v", req.guild.PlaylistID, err))
		if errors.Is(err, domain.ErrAllDuplicates) {
			return nil
		}
		return fmt.Errorf("failed to add tracks: %w", err)
	}

	b.logToGuild(req.logger, req.guild, fmt.Sprintf("Successfully added %d songs to playlist %s", len(added), req.guild.PlaylistID))
	return nil
}

// collectTrackIDs walks channel history from beforeID backwards and returns
// the track ids found, newest first. A limit of zero reads the whole channel.
func (b *Bot) collectTrackIDs(ctx context.Context, channelID, beforeID string, limit int) ([]string, int, error) {
	var ids []string
	scanned := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, scanned, err
		}

		page, err := b.chat.ChannelMessages(channelID, historyPageSize, beforeID)
		if err != nil {
			return nil, scanned, err
		}
		if len(page) == 0 {
			return ids, scanned, nil
		}

		for _, m := range page {
			if limit > 0 && scanned == limit {
				return ids, scanned, nil
			}
			scanned++
			if m.AuthorIsBot {
				continue
			}
			ids = append(ids, links.TrackIDs(m.Content)...)
		}
		beforeID = page[len(page)-1].ID
	}
}

func (b *Bot) reset(ctx context.Context, req *request) error {
	if !b.claimCooldown(req, b.opts.ResetCooldown, func(g *domain.GuildSettings) *time.Time { return &g.LastReset }) {
		return nil
	}

	removed, err := b.playlists.Clear(ctx, req.guild.PlaylistID)
	if err != nil {
		b.logToGuild(req.logger, req.guild, fmt.Sprintf("Unable to clear playlist. %v", err))
		return fmt.Errorf("failed to clear playlist: %w", err)
	}

	req.logger.Info("cleared playlist", "playlistID", req.guild.PlaylistID, "removed", removed)
	b.logToGuild(req.logger, req.guild, "Cleared entire playlist")
	return nil
}

// claimCooldown stamps the command's last use with the current time. If the
// previous use is within cooldown it tells the caller how long to wait and
// returns false.
func (b *Bot) claimCooldown(req *request, cooldown time.Duration, last func(g *domain.GuildSettings) *time.Time) bool {
	now := b.now()
	var wait time.Duration

	_, ok := b.updateGuild(req.logger, req.guild.GuildID, func(g *domain.GuildSettings) bool {
		t := last(g)
		if !t.IsZero() && now.Sub(*t) < cooldown {
			wait = cooldown - now.Sub(*t)
			return false
		}
		*t = now
		return true
	})
	if !ok {
		return false
	}

	if wait > 0 {
		b.send(req.logger, req.msg.ChannelID, fmt.Sprintf("%s time limit on using this command, please wait %s more.",
			formatCooldown(cooldown), wait.Round(time.Second)))
		return false
	}
	return true
}

func formatCooldown(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%d hour", d/time.Hour)
	case d >= time.Minute && d%time.Minute == 0:
		return fmt.Sprintf("%d minute", d/time.Minute)
	default:
		return d.String()
	}
}

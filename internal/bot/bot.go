package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/songlink/linkreader/internal/domain"
	"github.com/songlink/linkreader/internal/links"
	"github.com/songlink/linkreader/internal/metrics"
)

// PlaylistService is the playlist behaviour the bot drives
type PlaylistService interface {
	AddTracksSkippingDuplicates(ctx context.Context, playlistID string, trackIDs []string) ([]string, error)
	Clear(ctx context.Context, playlistID string) (int, error)
	CreatePlaylist(ctx context.Context, name string) (*domain.Playlist, error)
}

// Options configures command behaviour
type Options struct {
	// SpotifyUserID owns every playlist the bot creates
	SpotifyUserID        string
	DefaultPrefix        string
	ValidPrefixes        []string
	ModeratorPermissions int64
	FillCooldown         time.Duration
	ResetCooldown        time.Duration
	Metrics              *metrics.Metrics
}

// Bot reacts to chat events: it collects track links into each guild's
// playlist and runs the prefix commands
type Bot struct {
	chat      ChatClient
	guilds    domain.GuildStore
	playlists PlaylistService
	opts      Options
	commands  map[string]*Command
	logger    *slog.Logger

	// Serialises read-modify-write of guild settings
	settingsMu sync.Mutex

	now func() time.Time
}

// New creates a bot. A nil logger uses slog.Default().
func New(chat ChatClient, guilds domain.GuildStore, playlists PlaylistService, opts Options, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.DefaultPrefix == "" {
		opts.DefaultPrefix = domain.DefaultPrefix
	}
	if len(opts.ValidPrefixes) == 0 {
		opts.ValidPrefixes = []string{opts.DefaultPrefix}
	}

	b := &Bot{
		chat:      chat,
		guilds:    guilds,
		playlists: playlists,
		opts:      opts,
		logger:    logger,
		now:       time.Now,
	}
	b.commands = b.registerCommands()
	return b
}

// HandleMessage processes a message posted in a guild channel
func (b *Bot) HandleMessage(ctx context.Context, msg *Message) {
	b.opts.Metrics.EventHandled("message_create")
	if msg.AuthorIsBot {
		return
	}

	guild, ok := b.guilds.GetGuild(msg.GuildID)
	if !ok {
		return
	}
	if guild.MusicChannel != "" && msg.ChannelID != guild.MusicChannel {
		return
	}

	logger := b.logger.With("event_id", uuid.NewString(), "guildID", msg.GuildID, "channelID", msg.ChannelID)

	tracks := links.FindTracks(msg.Content)
	if len(tracks) > 0 && guild.Operational && guild.ListensTo(msg.ChannelID) {
		b.addLinks(ctx, logger, guild, msg, tracks)
		return
	}

	if !strings.HasPrefix(msg.Content, guild.Prefix) {
		return
	}

	if !guild.Operational {
		if b.isModerator(logger, msg) {
			b.reply(logger, msg, "Something has gone horribly wrong, please contact bot owner.")
		}
		return
	}

	b.dispatch(ctx, logger, guild, msg)
}

func (b *Bot) addLinks(ctx context.Context, logger *slog.Logger, guild *domain.GuildSettings, msg *Message, tracks []links.Track) {
	b.opts.Metrics.LinksSeen(len(tracks))

	ids := make([]string, len(tracks))
	for i, t := range tracks {
		ids[i] = t.ID
	}

	added, err := b.playlists.AddTracksSkippingDuplicates(ctx, guild.PlaylistID, ids)
	b.opts.Metrics.TracksAdded(len(added))

	if err != nil {
		if !errors.Is(err, domain.ErrAllDuplicates) {
			logger.Error("failed to add tracks", "playlistID", guild.PlaylistID, "tracks", len(tracks), "error", err)
		}
		if len(tracks) == 1 {
			b.logToGuild(logger, guild, fmt.Sprintf("Could not add song %s sent by %s.\nError: %v", tracks[0].Link, msg.AuthorTag, err))
		} else {
			b.logToGuild(logger, guild, fmt.Sprintf("Error adding %d songs to playlist %s sent by %s.\n%v", len(tracks), guild.PlaylistID, msg.AuthorTag, err))
		}
		return
	}

	logger.Info("added tracks", "playlistID", guild.PlaylistID, "added", len(added), "author", msg.AuthorTag)
	if len(tracks) == 1 {
		b.logToGuild(logger, guild, fmt.Sprintf("Added song %s sent by %s", tracks[0].Link, msg.AuthorTag))
	} else {
		b.logToGuild(logger, guild, fmt.Sprintf("Successfully added %d songs to playlist %s", len(added), guild.PlaylistID))
	}
}

// HandleGuildAvailable sets up a guild the bot has joined. Guilds with stored
// settings are left alone unless an earlier playlist creation failed.
func (b *Bot) HandleGuildAvailable(ctx context.Context, guildID, name string) {
	b.opts.Metrics.EventHandled("guild_create")
	logger := b.logger.With("event_id", uuid.NewString(), "guildID", guildID)

	if existing, ok := b.guilds.GetGuild(guildID); ok {
		if existing.PlaylistID != "" {
			if existing.Name != name {
				b.updateGuild(logger, guildID, func(g *domain.GuildSettings) bool {
					g.Name = name
					return true
				})
			}
			return
		}
		logger.Info("retrying playlist creation", "guild", name)
	}

	settings := domain.NewGuildSettings(guildID, name)
	settings.Prefix = b.opts.DefaultPrefix

	pl, err := b.playlists.CreatePlaylist(ctx, name)
	if err != nil {
		logger.Error("failed to create playlist, guild is not operational", "guild", name, "error", err)
		settings.Operational = false
	} else {
		settings.PlaylistID = pl.ID
		logger.Info("joined guild", "guild", name, "playlistID", pl.ID)
	}

	b.settingsMu.Lock()
	defer b.settingsMu.Unlock()
	if existing, ok := b.guilds.GetGuild(guildID); ok {
		// Keep channels and prefix chosen before the retry
		settings.MusicChannel = existing.MusicChannel
		settings.LoggingChannel = existing.LoggingChannel
		settings.Prefix = existing.Prefix
		settings.LastFill = existing.LastFill
		settings.LastReset = existing.LastReset
	}
	if err := b.guilds.SaveGuild(settings); err != nil {
		logger.Error("failed to save guild settings", "error", err)
	}
}

// HandleGuildRemoved forgets a guild the bot has left
func (b *Bot) HandleGuildRemoved(guildID string) {
	b.opts.Metrics.EventHandled("guild_delete")
	if err := b.guilds.DeleteGuild(guildID); err != nil {
		b.logger.Error("failed to delete guild settings", "guildID", guildID, "error", err)
		return
	}
	b.logger.Info("left guild", "guildID", guildID)
}

// HandleChannelDeleted clears settings pointing at a deleted channel
func (b *Bot) HandleChannelDeleted(guildID, channelID string) {
	b.opts.Metrics.EventHandled("channel_delete")
	logger := b.logger.With("guildID", guildID, "channelID", channelID)
	changed := false
	b.updateGuild(logger, guildID, func(g *domain.GuildSettings) bool {
		changed = g.ClearChannel(channelID)
		return changed
	})
	if changed {
		logger.Info("cleared settings for deleted channel")
	}
}

// updateGuild applies fn to the stored settings and saves them when fn
// returns true. Returns the settings after fn ran.
func (b *Bot) updateGuild(logger *slog.Logger, guildID string, fn func(g *domain.GuildSettings) bool) (*domain.GuildSettings, bool) {
	b.settingsMu.Lock()
	defer b.settingsMu.Unlock()

	guild, ok := b.guilds.GetGuild(guildID)
	if !ok {
		return nil, false
	}
	if !fn(guild) {
		return guild, true
	}
	if err := b.guilds.SaveGuild(guild); err != nil {
		logger.Error("failed to save guild settings", "error", err)
		return guild, false
	}
	return guild, true
}

// logToGuild posts to the guild's logging channel if one is set
func (b *Bot) logToGuild(logger *slog.Logger, guild *domain.GuildSettings, text string) {
	if guild.LoggingChannel == "" {
		return
	}
	if err := b.chat.SendMessage(guild.LoggingChannel, text); err != nil {
		logger.Warn("failed to write to logging channel", "loggingChannel", guild.LoggingChannel, "error", err)
	}
}

func (b *Bot) send(logger *slog.Logger, channelID, text string) {
	if err := b.chat.SendMessage(channelID, text); err != nil {
		logger.Warn("failed to send message", "error", err)
	}
}

func (b *Bot) reply(logger *slog.Logger, msg *Message, text string) {
	if err := b.chat.Reply(msg.ChannelID, msg.ID, text); err != nil {
		logger.Warn("failed to reply", "error", err)
	}
}

func (b *Bot) isModerator(logger *slog.Logger, msg *Message) bool {
	perms, err := b.chat.Permissions(msg.ChannelID, msg.AuthorID)
	if err != nil {
		logger.Warn("failed to look up permissions", "userID", msg.AuthorID, "error", err)
		return false
	}
	return perms&b.opts.ModeratorPermissions != 0
}

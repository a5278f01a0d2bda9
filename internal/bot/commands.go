package bot

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/songlink/linkreader/internal/domain"
)

// Command outcomes recorded in metrics
const (
	outcomeOK     = "ok"
	outcomeDenied = "denied"
	outcomeError  = "error"
)

// Command is a prefix command
type Command struct {
	Name          string
	Usage         string
	Description   string
	ModeratorOnly bool

	run func(ctx context.Context, req *request) error
}

// request is one command invocation
type request struct {
	msg    *Message
	guild  *domain.GuildSettings
	args   []string
	logger *slog.Logger
}

func (b *Bot) registerCommands() map[string]*Command {
	cmds := []*Command{
		{
			Name:          "fill",
			Usage:         "fill [max messages]",
			Description:   "Fills the playlist with the given number of messages. By default, will try to fill with all messages it can find in a channel.",
			ModeratorOnly: true,
			run:           b.fill,
		},
		{
			Name:          "reset",
			Usage:         "reset",
			Description:   "clears the server playlist",
			ModeratorOnly: true,
			run:           b.reset,
		},
		{
			Name:        "playlist",
			Usage:       "playlist",
			Description: "Gives a link to the playlist of collected songs",
			run:         b.playlistLink,
		},
		{
			Name:          "set",
			Usage:         "set <music_channel|logging_channel|prefix> <value>",
			Description:   "Configure settings for the bot, such as music channel, logging channel, and prefix",
			ModeratorOnly: true,
			run:           b.set,
		},
		{
			Name:        "help",
			Usage:       "help",
			Description: "Lists the available commands",
			run:         b.help,
		},
	}

	byName := make(map[string]*Command, len(cmds))
	for _, c := range cmds {
		byName[c.Name] = c
	}
	return byName
}

// Commands returns the registered commands sorted by name
func (b *Bot) Commands() []*Command {
	out := make([]*Command, 0, len(b.commands))
	for _, c := range b.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (b *Bot) dispatch(ctx context.Context, logger *slog.Logger, guild *domain.GuildSettings, msg *Message) {
	args := strings.Fields(strings.TrimPrefix(msg.Content, guild.Prefix))
	if len(args) == 0 {
		return
	}
	name := strings.ToLower(args[0])

	cmd, ok := b.commands[name]
	if !ok {
		return
	}

	logger = logger.With("command", name, "author", msg.AuthorTag)

	if cmd.ModeratorOnly && !b.isModerator(logger, msg) {
		logger.Debug("command denied")
		b.opts.Metrics.CommandHandled(name, outcomeDenied)
		return
	}

	err := cmd.run(ctx, &request{
		msg:    msg,
		guild:  guild,
		args:   args[1:],
		logger: logger,
	})
	if err != nil {
		logger.Error("command failed", "error", err)
		b.opts.Metrics.CommandHandled(name, outcomeError)
		return
	}
	b.opts.Metrics.CommandHandled(name, outcomeOK)
}

func (b *Bot) playlistLink(_ context.Context, req *request) error {
	if req.guild.PlaylistID == "" {
		b.send(req.logger, req.msg.ChannelID, "This server does not have a playlist yet")
		return nil
	}
	link := domain.PlaylistURL(b.opts.SpotifyUserID, req.guild.PlaylistID)
	b.send(req.logger, req.msg.ChannelID, "View playlist here: "+link)
	return nil
}

func (b *Bot) help(_ context.Context, req *request) error {
	var sb strings.Builder
	sb.WriteString("Commands:\n")
	for _, c := range b.Commands() {
		fmt.Fprintf(&sb, "`%s%s`", req.guild.Prefix, c.Usage)
		if c.ModeratorOnly {
			sb.WriteString(" (moderators)")
		}
		fmt.Fprintf(&sb, ": %s\n", c.Description)
	}
	fmt.Fprintf(&sb, "Valid prefixes: %s", strings.Join(b.opts.ValidPrefixes, " "))

	b.send(req.logger, req.msg.ChannelID, sb.String())
	return nil
}

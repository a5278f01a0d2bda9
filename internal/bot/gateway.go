package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

var _ ChatClient = (*Gateway)(nil)

// Gateway connects the bot to Discord
type Gateway struct {
	session *discordgo.Session
	logger  *slog.Logger
}

// NewGateway creates a session for the bot token. Nothing connects until Run.
func NewGateway(token string, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent

	return &Gateway{session: session, logger: logger}, nil
}

// Run routes gateway events to b until ctx is cancelled
func (g *Gateway) Run(ctx context.Context, b *Bot) error {
	removers := []func(){
		g.session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
			g.logger.Info("connected to discord", "user", r.User.String(), "guilds", len(r.Guilds))
		}),
		g.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			if m.GuildID == "" || m.Author == nil {
				return
			}
			b.HandleMessage(ctx, toMessage(m.Message))
		}),
		// Sent for every guild on connect as well as on join
		g.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
			b.HandleGuildAvailable(ctx, e.ID, e.Name)
		}),
		g.session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildDelete) {
			// Unavailable means an outage, not a removal
			if e.Unavailable {
				return
			}
			b.HandleGuildRemoved(e.ID)
		}),
		g.session.AddHandler(func(_ *discordgo.Session, e *discordgo.ChannelDelete) {
			if e.Type != discordgo.ChannelTypeGuildText {
				return
			}
			b.HandleChannelDeleted(e.GuildID, e.ID)
		}),
	}
	defer func() {
		for _, remove := range removers {
			remove()
		}
	}()

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to connect to discord: %w", err)
	}

	<-ctx.Done()
	g.logger.Info("disconnecting from discord")
	if err := g.session.Close(); err != nil {
		return fmt.Errorf("failed to close discord session: %w", err)
	}
	return nil
}

func (g *Gateway) SendMessage(channelID, content string) error {
	_, err := g.session.ChannelMessageSend(channelID, content)
	return err
}

func (g *Gateway) Reply(channelID, messageID, content string) error {
	_, err := g.session.ChannelMessageSendReply(channelID, content, &discordgo.MessageReference{
		MessageID: messageID,
		ChannelID: channelID,
	})
	return err
}

func (g *Gateway) ChannelMessages(channelID string, limit int, beforeID string) ([]*Message, error) {
	msgs, err := g.session.ChannelMessages(channelID, limit, beforeID, "", "")
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m))
	}
	return out, nil
}

func (g *Gateway) TextChannels(guildID string) ([]Channel, error) {
	channels, err := g.session.GuildChannels(guildID)
	if err != nil {
		return nil, err
	}
	return textChannels(channels), nil
}

func (g *Gateway) Permissions(channelID, userID string) (int64, error) {
	return g.session.UserChannelPermissions(userID, channelID)
}

func toMessage(m *discordgo.Message) *Message {
	msg := &Message{
		ID:        m.ID,
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		Content:   m.Content,
	}
	if m.Author != nil {
		msg.AuthorID = m.Author.ID
		msg.AuthorTag = m.Author.String()
		msg.AuthorIsBot = m.Author.Bot
	}
	return msg
}

func textChannels(channels []*discordgo.Channel) []Channel {
	var out []Channel
	for _, c := range channels {
		if c.Type == discordgo.ChannelTypeGuildText {
			out = append(out, Channel{ID: c.ID, Name: c.Name})
		}
	}
	return out
}

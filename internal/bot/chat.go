package bot

// Message is an inbound chat message
type Message struct {
	ID          string
	GuildID     string
	ChannelID   string
	AuthorID    string
	AuthorTag   string
	AuthorIsBot bool
	Content     string
}

// Channel is a text channel in a guild
type Channel struct {
	ID   string
	Name string
}

// ChatClient is the part of the chat service the bot talks to
type ChatClient interface {
	// SendMessage posts content to a channel
	SendMessage(channelID, content string) error

	// Reply posts content to a channel as a reply to messageID
	Reply(channelID, messageID, content string) error

	// ChannelMessages returns up to limit messages older than beforeID, newest first.
	// An empty beforeID starts from the newest message.
	ChannelMessages(channelID string, limit int, beforeID string) ([]*Message, error)

	// TextChannels lists the text channels of a guild
	TextChannels(guildID string) ([]Channel, error)

	// Permissions returns the permission bits userID holds in a channel
	Permissions(channelID, userID string) (int64, error)
}

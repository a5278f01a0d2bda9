package bot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songlink/linkreader/internal/domain"
)

func TestPlaylistCommand(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "!PlayList"))

	assert.Equal(t, []string{"View playlist here: https://open.spotify.com/user/bot-user/playlist/pl"}, tb.chat.contents(musicChannel))
}

func TestHelpCommand(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "!help"))

	sent := tb.chat.contents(musicChannel)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0], "`!fill [max messages]` (moderators): Fills the playlist")
	assert.Contains(t, sent[0], "`!playlist`: Gives a link to the playlist of collected songs")
	assert.Contains(t, sent[0], "Valid prefixes: ! ? ++")
}

func TestUnknownCommandIgnored(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!dance now"))
	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!"))

	assert.Empty(t, tb.chat.messages())
}

func TestModeratorOnlyCommands(t *testing.T) {
	for _, cmd := range []string{"!fill", "!reset", "!set prefix ?"} {
		t.Run(cmd, func(t *testing.T) {
			tb := newTestBot(t)

			tb.HandleMessage(context.Background(), message(musicChannel, memberID, cmd))

			assert.Empty(t, tb.chat.messages())
			assert.Empty(t, tb.playlists.cleared)
			assert.Equal(t, "!", tb.guild(t).Prefix)
		})
	}
}

func TestCustomPrefix(t *testing.T) {
	tb := newTestBot(t)
	tb.updateStored(t, func(g *domain.GuildSettings) { g.Prefix = "++" })

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "!playlist"))
	assert.Empty(t, tb.chat.messages())

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "++ playlist"))
	assert.Len(t, tb.chat.contents(musicChannel), 1)
}

func TestCommandsSorted(t *testing.T) {
	tb := newTestBot(t)

	var names []string
	for _, c := range tb.Commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"fill", "help", "playlist", "reset", "set"}, names)
}

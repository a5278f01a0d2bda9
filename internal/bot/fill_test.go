package bot

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songlink/linkreader/internal/domain"
)

// seedHistory fills a channel with n messages, newest first. Every third
// message carries a track link named after its position.
func seedHistory(c *fakeChat, channelID string, n int) {
	msgs := make([]*Message, 0, n)
	for i := n; i >= 1; i-- {
		content := fmt.Sprintf("message %d", i)
		if i%3 == 0 {
			content = fmt.Sprintf("%st%d", trackLinkBase, i)
		}
		msgs = append(msgs, &Message{ID: fmt.Sprintf("h%d", i), ChannelID: channelID, Content: content})
	}
	c.history[channelID] = msgs
}

func TestFillReadsWholeChannel(t *testing.T) {
	tb := newTestBot(t)
	seedHistory(tb.chat, musicChannel, 250)

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))

	require.Len(t, tb.playlists.added, 1)
	ids := tb.playlists.added[0]
	assert.Len(t, ids, 83)
	assert.Equal(t, "t249", ids[0], "newest first")
	assert.Equal(t, "t3", ids[len(ids)-1])
	// Three full or partial pages and one empty page
	assert.Equal(t, 4, tb.chat.historyCalls)

	assert.Equal(t, []string{"Successfully added 83 songs to playlist pl"}, tb.chat.contents(loggingChan))
	assert.Equal(t, testNow, tb.guild(t).LastFill)
}

func TestFillWithLimit(t *testing.T) {
	tb := newTestBot(t)
	seedHistory(tb.chat, musicChannel, 250)

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill 10"))

	require.Len(t, tb.playlists.added, 1)
	// Messages 250 down to 241
	assert.Equal(t, []string{"t249", "t246", "t243"}, tb.playlists.added[0])
	assert.Equal(t, 1, tb.chat.historyCalls)
}

func TestFillSkipsBotMessages(t *testing.T) {
	tb := newTestBot(t)
	tb.chat.history[musicChannel] = []*Message{
		{ID: "2", Content: "Added song " + trackLinkBase + "fromlog", AuthorIsBot: true},
		{ID: "1", Content: trackLinkBase + "real"},
	}

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))

	assert.Equal(t, [][]string{{"real"}}, tb.playlists.added)
}

func TestFillBadArguments(t *testing.T) {
	for _, cmd := range []string{"!fill abc", "!fill 0", "!fill 1 2"} {
		t.Run(cmd, func(t *testing.T) {
			tb := newTestBot(t)

			tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, cmd))

			assert.Equal(t, []string{"Unable to understand fill command"}, tb.chat.contents(musicChannel))
			assert.Zero(t, tb.chat.historyCalls)
			assert.True(t, tb.guild(t).LastFill.IsZero(), "bad arguments do not start the cooldown")
		})
	}
}

func TestFillCooldown(t *testing.T) {
	tb := newTestBot(t)
	tb.updateStored(t, func(g *domain.GuildSettings) { g.LastFill = testNow.Add(-time.Hour) })

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))

	assert.Equal(t, []string{"3 hour time limit on using this command, please wait 2h0m0s more."}, tb.chat.contents(musicChannel))
	assert.Zero(t, tb.chat.historyCalls)
	assert.Equal(t, testNow.Add(-time.Hour), tb.guild(t).LastFill)

	// Expired cooldown
	tb.now = func() time.Time { return testNow.Add(2*time.Hour + time.Second) }
	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))
	assert.Equal(t, 1, tb.chat.historyCalls)
}

func TestFillNoSongs(t *testing.T) {
	tb := newTestBot(t)
	tb.chat.history[musicChannel] = []*Message{{ID: "1", Content: "hello"}}

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))

	assert.Empty(t, tb.playlists.added)
	assert.Equal(t, []string{"No songs found in the last 1 messages"}, tb.chat.contents(loggingChan))
}

func TestFillErrors(t *testing.T) {
	t.Run("history", func(t *testing.T) {
		tb := newTestBot(t)
		tb.chat.ExpectedHistoryErr = errors.New("missing access")

		tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))

		assert.Equal(t, []string{"Error adding songs to playlist pl. Error: missing access"}, tb.chat.contents(loggingChan))
	})

	t.Run("add", func(t *testing.T) {
		tb := newTestBot(t)
		seedHistory(tb.chat, musicChannel, 3)
		tb.playlists.ExpectedAddErr = domain.ErrServerOffline

		tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))

		assert.Equal(t, []string{"Error adding songs to playlist pl. Error: " + domain.ErrServerOffline.Error()}, tb.chat.contents(loggingChan))
	})
}

func TestReset(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!reset"))

	assert.Equal(t, []string{testPlaylist}, tb.playlists.cleared)
	assert.Equal(t, []string{"Cleared entire playlist"}, tb.chat.contents(loggingChan))
	assert.Equal(t, testNow, tb.guild(t).LastReset)

	// Second reset within the cooldown
	tb.now = func() time.Time { return testNow.Add(30 * time.Minute) }
	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!reset"))

	assert.Len(t, tb.playlists.cleared, 1)
	assert.Equal(t, []string{"3 hour time limit on using this command, please wait 2h30m0s more."}, tb.chat.contents(musicChannel))
}

func TestResetFailure(t *testing.T) {
	tb := newTestBot(t)
	tb.playlists.ExpectedClearErr = domain.ErrAuthFailed

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!reset"))

	assert.Equal(t, []string{"Unable to clear playlist. " + domain.ErrAuthFailed.Error()}, tb.chat.contents(loggingChan))
}

func TestFormatCooldown(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{3 * time.Hour, "3 hour"},
		{time.Hour, "1 hour"},
		{90 * time.Minute, "90 minute"},
		{45 * time.Second, "45s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatCooldown(tt.in))
	}
}

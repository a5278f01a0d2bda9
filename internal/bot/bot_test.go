package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/songlink/linkreader/internal/cache"
	"github.com/songlink/linkreader/internal/domain"
	"github.com/songlink/linkreader/internal/logging"
	"github.com/songlink/linkreader/internal/metrics"
	"github.com/songlink/linkreader/internal/store"
)

const (
	testGuild     = "g1"
	musicChannel  = "music"
	loggingChan   = "log"
	testPlaylist  = "pl"
	moderatorID   = "mod"
	memberID      = "member"
	manageGuild   = int64(1 << 5)
	sendMessages  = int64(1 << 11)
	trackLinkBase = "https://open.spotify.com/track/"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sentMessage struct {
	ChannelID string
	ReplyTo   string
	Content   string
}

// fakeChat records outgoing messages and serves canned history
type fakeChat struct {
	mu       sync.Mutex
	sent     []sentMessage
	history  map[string][]*Message // newest first
	channels []Channel
	perms    map[string]int64

	historyCalls int

	ExpectedHistoryErr  error
	ExpectedChannelsErr error
}

func newFakeChat() *fakeChat {
	return &fakeChat{
		history: make(map[string][]*Message),
		channels: []Channel{
			{ID: musicChannel, Name: "music"},
			{ID: loggingChan, Name: "bot-log"},
			{ID: "c3", Name: "general"},
		},
		perms: map[string]int64{
			moderatorID: manageGuild | sendMessages,
			memberID:    sendMessages,
		},
	}
}

func (c *fakeChat) SendMessage(channelID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{ChannelID: channelID, Content: content})
	return nil
}

func (c *fakeChat) Reply(channelID, messageID, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMessage{ChannelID: channelID, ReplyTo: messageID, Content: content})
	return nil
}

func (c *fakeChat) ChannelMessages(channelID string, limit int, beforeID string) ([]*Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyCalls++

	if c.ExpectedHistoryErr != nil {
		return nil, c.ExpectedHistoryErr
	}
	msgs := c.history[channelID]
	start := 0
	for i, m := range msgs {
		if m.ID == beforeID {
			start = i + 1
			break
		}
	}
	end := min(start+limit, len(msgs))
	return msgs[start:end], nil
}

func (c *fakeChat) TextChannels(string) ([]Channel, error) {
	if c.ExpectedChannelsErr != nil {
		return nil, c.ExpectedChannelsErr
	}
	return c.channels, nil
}

func (c *fakeChat) Permissions(_, userID string) (int64, error) {
	return c.perms[userID], nil
}

func (c *fakeChat) messages() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

func (c *fakeChat) contents(channelID string) []string {
	var out []string
	for _, m := range c.messages() {
		if m.ChannelID == channelID {
			out = append(out, m.Content)
		}
	}
	return out
}

// fakePlaylists records calls; every new id is reported as added
type fakePlaylists struct {
	mu      sync.Mutex
	added   [][]string
	cleared []string
	created []string

	ExpectedAddErr    error
	ExpectedClearErr  error
	ExpectedCreateErr error
}

func (p *fakePlaylists) AddTracksSkippingDuplicates(_ context.Context, playlistID string, trackIDs []string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.added = append(p.added, trackIDs)
	if p.ExpectedAddErr != nil {
		return nil, p.ExpectedAddErr
	}
	return trackIDs, nil
}

func (p *fakePlaylists) Clear(_ context.Context, playlistID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleared = append(p.cleared, playlistID)
	if p.ExpectedClearErr != nil {
		return 0, p.ExpectedClearErr
	}
	return 3, nil
}

func (p *fakePlaylists) CreatePlaylist(_ context.Context, name string) (*domain.Playlist, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, name)
	if p.ExpectedCreateErr != nil {
		return nil, p.ExpectedCreateErr
	}
	return &domain.Playlist{ID: "new-" + name, Name: name}, nil
}

type testBot struct {
	*Bot
	chat      *fakeChat
	playlists *fakePlaylists
	store     *store.Store
}

func newTestBot(t *testing.T) *testBot {
	t.Helper()

	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.SaveGuild(&domain.GuildSettings{
		GuildID:        testGuild,
		Name:           "Test Guild",
		MusicChannel:   musicChannel,
		LoggingChannel: loggingChan,
		PlaylistID:     testPlaylist,
		Prefix:         "!",
		Operational:    true,
	}))

	chat := newFakeChat()
	playlists := &fakePlaylists{}
	b := New(chat, s, playlists, Options{
		SpotifyUserID:        "bot-user",
		DefaultPrefix:        "!",
		ValidPrefixes:        []string{"!", "?", "++"},
		ModeratorPermissions: manageGuild,
		FillCooldown:         3 * time.Hour,
		ResetCooldown:        3 * time.Hour,
	}, logging.NullLogger())
	b.now = func() time.Time { return testNow }

	return &testBot{Bot: b, chat: chat, playlists: playlists, store: s}
}

func (tb *testBot) guild(t *testing.T) *domain.GuildSettings {
	t.Helper()
	g, ok := tb.store.GetGuild(testGuild)
	require.True(t, ok)
	return g
}

func (tb *testBot) updateStored(t *testing.T, fn func(g *domain.GuildSettings)) {
	t.Helper()
	g := tb.guild(t)
	fn(g)
	require.NoError(t, tb.store.SaveGuild(g))
}

func message(channelID, authorID, content string) *Message {
	return &Message{
		ID:        "m-" + authorID,
		GuildID:   testGuild,
		ChannelID: channelID,
		AuthorID:  authorID,
		AuthorTag: authorID + "#0001",
		Content:   content,
	}
}

func TestSingleLinkAdded(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "listen "+trackLinkBase+"abc?si=xyz"))

	assert.Equal(t, [][]string{{"abc"}}, tb.playlists.added)
	assert.Equal(t, []string{"Added song " + trackLinkBase + "abc sent by member#0001"}, tb.chat.contents(loggingChan))
}

func TestMultipleLinksAdded(t *testing.T) {
	tb := newTestBot(t)

	content := trackLinkBase + "one " + trackLinkBase + "two " + trackLinkBase + "one"
	tb.HandleMessage(context.Background(), message(musicChannel, memberID, content))

	assert.Equal(t, [][]string{{"one", "two"}}, tb.playlists.added)
	assert.Equal(t, []string{"Successfully added 2 songs to playlist pl"}, tb.chat.contents(loggingChan))
}

func TestLinkAddErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "single",
			content: trackLinkBase + "abc",
			want:    "Could not add song " + trackLinkBase + "abc sent by member#0001.\nError: " + domain.ErrAllDuplicates.Error(),
		},
		{
			name:    "multiple",
			content: trackLinkBase + "abc " + trackLinkBase + "def",
			want:    "Error adding 2 songs to playlist pl sent by member#0001.\n" + domain.ErrAllDuplicates.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.playlists.ExpectedAddErr = domain.ErrAllDuplicates

			tb.HandleMessage(context.Background(), message(musicChannel, memberID, tt.content))
			assert.Equal(t, []string{tt.want}, tb.chat.contents(loggingChan))
		})
	}
}

func TestLinksWithoutLoggingChannel(t *testing.T) {
	tb := newTestBot(t)
	tb.updateStored(t, func(g *domain.GuildSettings) { g.LoggingChannel = "" })

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, trackLinkBase+"abc"))

	assert.Len(t, tb.playlists.added, 1)
	assert.Empty(t, tb.chat.messages())
}

func TestMessagesIgnored(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
	}{
		{"other channel link", message("c3", memberID, trackLinkBase+"abc")},
		{"other channel command", message("c3", moderatorID, "!playlist")},
		{"bot author", &Message{ID: "b", GuildID: testGuild, ChannelID: musicChannel, AuthorIsBot: true, Content: trackLinkBase + "abc"}},
		{"unknown guild", &Message{ID: "u", GuildID: "nope", ChannelID: musicChannel, Content: trackLinkBase + "abc"}},
		{"album link", message(musicChannel, memberID, "https://open.spotify.com/album/abc")},
		{"no prefix", message(musicChannel, moderatorID, "playlist")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb := newTestBot(t)
			tb.HandleMessage(context.Background(), tt.msg)

			assert.Empty(t, tb.playlists.added)
			assert.Empty(t, tb.chat.messages())
		})
	}
}

func TestNoMusicChannel(t *testing.T) {
	tb := newTestBot(t)
	tb.updateStored(t, func(g *domain.GuildSettings) { g.MusicChannel = "" })

	// Links are only collected from the music channel
	tb.HandleMessage(context.Background(), message("c3", memberID, trackLinkBase+"abc"))
	assert.Empty(t, tb.playlists.added)

	// Commands work anywhere
	tb.HandleMessage(context.Background(), message("c3", memberID, "!playlist"))
	assert.Equal(t, []string{"View playlist here: https://open.spotify.com/user/bot-user/playlist/pl"}, tb.chat.contents("c3"))
}

func TestNonOperationalGuild(t *testing.T) {
	tb := newTestBot(t)
	tb.updateStored(t, func(g *domain.GuildSettings) { g.Operational = false })

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "!playlist"))
	tb.HandleMessage(context.Background(), message(musicChannel, memberID, trackLinkBase+"abc"))
	assert.Empty(t, tb.chat.messages())
	assert.Empty(t, tb.playlists.added)

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!fill"))
	assert.Equal(t, []sentMessage{{
		ChannelID: musicChannel,
		ReplyTo:   "m-" + moderatorID,
		Content:   "Something has gone horribly wrong, please contact bot owner.",
	}}, tb.chat.messages())
}

func TestGuildAvailableCreatesPlaylist(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleGuildAvailable(context.Background(), "g2", "New Guild")

	g, ok := tb.store.GetGuild("g2")
	require.True(t, ok)
	assert.Equal(t, []string{"New Guild"}, tb.playlists.created)
	assert.Equal(t, "new-New Guild", g.PlaylistID)
	assert.Equal(t, "!", g.Prefix)
	assert.True(t, g.Operational)
	assert.Empty(t, g.MusicChannel)
}

func TestGuildAvailablePlaylistFailure(t *testing.T) {
	tb := newTestBot(t)
	tb.playlists.ExpectedCreateErr = domain.ErrAuthFailed

	tb.HandleGuildAvailable(context.Background(), "g2", "New Guild")

	g, ok := tb.store.GetGuild("g2")
	require.True(t, ok)
	assert.False(t, g.Operational)
	assert.Empty(t, g.PlaylistID)
}

func TestGuildAvailableKnownGuild(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleGuildAvailable(context.Background(), testGuild, "Renamed")

	assert.Empty(t, tb.playlists.created)
	g := tb.guild(t)
	assert.Equal(t, "Renamed", g.Name)
	assert.Equal(t, testPlaylist, g.PlaylistID)
	assert.Equal(t, musicChannel, g.MusicChannel)
}

func TestGuildAvailableRetriesFailedSetup(t *testing.T) {
	tb := newTestBot(t)
	tb.updateStored(t, func(g *domain.GuildSettings) {
		g.PlaylistID = ""
		g.Operational = false
		g.Prefix = "?"
	})

	tb.HandleGuildAvailable(context.Background(), testGuild, "Test Guild")

	g := tb.guild(t)
	assert.Equal(t, []string{"Test Guild"}, tb.playlists.created)
	assert.True(t, g.Operational)
	assert.Equal(t, "new-Test Guild", g.PlaylistID)
	assert.Equal(t, "?", g.Prefix)
	assert.Equal(t, musicChannel, g.MusicChannel)
	assert.Equal(t, loggingChan, g.LoggingChannel)
}

func TestGuildRemoved(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleGuildRemoved(testGuild)

	_, ok := tb.store.GetGuild(testGuild)
	assert.False(t, ok)
}

func TestChannelDeleted(t *testing.T) {
	tb := newTestBot(t)

	tb.HandleChannelDeleted(testGuild, "c3")
	assert.Equal(t, musicChannel, tb.guild(t).MusicChannel)

	tb.HandleChannelDeleted(testGuild, loggingChan)
	g := tb.guild(t)
	assert.Equal(t, musicChannel, g.MusicChannel)
	assert.Empty(t, g.LoggingChannel)

	tb.HandleChannelDeleted(testGuild, musicChannel)
	assert.Empty(t, tb.guild(t).MusicChannel)

	// Unknown guilds are ignored
	tb.HandleChannelDeleted("nope", musicChannel)
}

func TestMetricsRecorded(t *testing.T) {
	tb := newTestBot(t)
	c, err := cache.New(1)
	require.NoError(t, err)
	m := metrics.New(c)
	tb.opts.Metrics = m

	tb.HandleMessage(context.Background(), message(musicChannel, memberID, trackLinkBase+"a "+trackLinkBase+"b"))
	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "!playlist"))
	tb.HandleMessage(context.Background(), message(musicChannel, memberID, "!reset"))

	expected := `
# HELP linkreader_commands_total Bot commands handled, by command and outcome.
# TYPE linkreader_commands_total counter
linkreader_commands_total{command="playlist",outcome="ok"} 1
linkreader_commands_total{command="reset",outcome="denied"} 1
# HELP linkreader_tracks_added_total Tracks appended to playlists.
# TYPE linkreader_tracks_added_total counter
linkreader_tracks_added_total 2
`
	err = testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"linkreader_commands_total", "linkreader_tracks_added_total")
	assert.NoError(t, err)
}

func TestPermissionLookupFailureIsNotModerator(t *testing.T) {
	tb := newTestBot(t)
	tb.Bot.chat = &failingPermissions{fakeChat: tb.chat}

	tb.HandleMessage(context.Background(), message(musicChannel, moderatorID, "!reset"))
	assert.Empty(t, tb.playlists.cleared)
}

type failingPermissions struct {
	*fakeChat
}

func (failingPermissions) Permissions(string, string) (int64, error) {
	return 0, errors.New("member not found")
}

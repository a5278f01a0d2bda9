package domain

import (
	"fmt"
	"strings"
	"time"
)

// trackURIPrefix is the canonical Spotify URI scheme for tracks
const trackURIPrefix = "spotify:track:"

// DefaultPrefix is the command prefix a guild starts with
const DefaultPrefix = "!"

// TrackSet maps a track ID to its canonical URI.
// It is the membership view of a playlist: keys are unique, order is irrelevant.
type TrackSet map[string]string

// TrackURI returns the canonical URI for a track ID
func TrackURI(trackID string) string {
	return trackURIPrefix + trackID
}

// TrackIDFromURI extracts the track ID from a canonical URI.
// Returns false if the URI is not a track URI.
func TrackIDFromURI(uri string) (string, bool) {
	if !strings.HasPrefix(uri, trackURIPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(uri, trackURIPrefix)
	return id, id != ""
}

// NewTrackSet builds a membership set from track IDs
func NewTrackSet(trackIDs ...string) TrackSet {
	set := make(TrackSet, len(trackIDs))
	for _, id := range trackIDs {
		set[id] = TrackURI(id)
	}
	return set
}

// Has reports whether the set contains the track
func (s TrackSet) Has(trackID string) bool {
	_, ok := s[trackID]
	return ok
}

// Clone returns an independent copy of the set
func (s TrackSet) Clone() TrackSet {
	out := make(TrackSet, len(s))
	for id, uri := range s {
		out[id] = uri
	}
	return out
}

// URIs returns the URIs in the set (unordered)
func (s TrackSet) URIs() []string {
	uris := make([]string, 0, len(s))
	for _, uri := range s {
		uris = append(uris, uri)
	}
	return uris
}

// Playlist represents a remote playlist owned by the bot account
type Playlist struct {
	ID      string
	Name    string
	OwnerID string
	Public  bool
}

// User is the remote music account the bot acts as
type User struct {
	ID          string
	DisplayName string
}

// PlaylistURL returns the public web link for a playlist owned by userID
func PlaylistURL(userID, playlistID string) string {
	return fmt.Sprintf("https://open.spotify.com/user/%s/playlist/%s", userID, playlistID)
}

// GuildSettings holds the per-guild bot configuration
type GuildSettings struct {
	GuildID        string    `json:"guild_id"`
	Name           string    `json:"name"`
	MusicChannel   string    `json:"music_channel"`
	LoggingChannel string    `json:"logging_channel"`
	PlaylistID     string    `json:"playlist_id"`
	Prefix         string    `json:"prefix"`
	Operational    bool      `json:"operational"`
	LastFill       time.Time `json:"last_fill"`
	LastReset      time.Time `json:"last_reset"`
}

// NewGuildSettings returns the settings a guild starts with when the bot joins
func NewGuildSettings(guildID, name string) *GuildSettings {
	return &GuildSettings{
		GuildID:     guildID,
		Name:        name,
		Prefix:      DefaultPrefix,
		Operational: true,
	}
}

// ListensTo reports whether messages in channelID should be scanned for links
func (g *GuildSettings) ListensTo(channelID string) bool {
	return g.MusicChannel != "" && g.MusicChannel == channelID
}

// ClearChannel unsets any setting that points at channelID.
// Returns true if a setting changed.
func (g *GuildSettings) ClearChannel(channelID string) bool {
	changed := false
	if g.MusicChannel == channelID {
		g.MusicChannel = ""
		changed = true
	}
	if g.LoggingChannel == channelID {
		g.LoggingChannel = ""
		changed = true
	}
	return changed
}

// Credentials holds the remote account tokens persisted between runs
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	UserID       string    `json:"user_id"`
}

// HasRefreshToken returns true if the credentials can be used to mint access tokens
func (c *Credentials) HasRefreshToken() bool {
	return c != nil && c.RefreshToken != ""
}

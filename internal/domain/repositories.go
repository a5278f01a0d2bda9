package domain

import (
	"context"
)

// MaxTracksPerRequest is the page and batch size of the remote playlist API
const MaxTracksPerRequest = 100

// PlaylistRepository provides network access to remote playlists
type PlaylistRepository interface {
	// GetPlaylistTracks returns one page of track IDs starting at offset and
	// whether more pages follow. Items without a track ID are skipped, so a
	// page may hold fewer than limit IDs without being the last.
	GetPlaylistTracks(ctx context.Context, playlistID string, offset, limit int) (ids []string, more bool, err error)

	// AddTracks appends up to MaxTracksPerRequest track URIs to a playlist
	AddTracks(ctx context.Context, playlistID string, uris []string) error

	// RemoveTracks removes up to MaxTracksPerRequest track URIs from a playlist
	RemoveTracks(ctx context.Context, playlistID string, uris []string) error

	// CreatePlaylist creates a private playlist with the given name
	CreatePlaylist(ctx context.Context, name string) (*Playlist, error)
}

// GuildStore persists per-guild settings
type GuildStore interface {
	GetGuild(guildID string) (*GuildSettings, bool)
	SaveGuild(settings *GuildSettings) error
	DeleteGuild(guildID string) error
	ListGuilds() ([]*GuildSettings, error)
}

// CredentialStore persists the remote account credentials
type CredentialStore interface {
	LoadCredentials() (*Credentials, bool)
	SaveCredentials(creds *Credentials) error
}

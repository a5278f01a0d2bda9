package spotify

// playlistTracksResponse is one page of GET /playlists/{id}/tracks filtered
// with fields=items(track.id),next
type playlistTracksResponse struct {
	Items []playlistItem `json:"items"`
	Next  *string        `json:"next"`
}

// playlistItem wraps a track; Track is null for removed or unavailable items
type playlistItem struct {
	Track *trackRef `json:"track"`
}

type trackRef struct {
	ID  string `json:"id,omitempty"`
	URI string `json:"uri,omitempty"`
}

// addTracksRequest is the body of POST /playlists/{id}/tracks
type addTracksRequest struct {
	URIs []string `json:"uris"`
}

// removeTracksRequest is the body of DELETE /playlists/{id}/tracks
type removeTracksRequest struct {
	Tracks []trackRef `json:"tracks"`
}

// createPlaylistRequest is the body of POST /users/{user}/playlists
type createPlaylistRequest struct {
	Name        string `json:"name"`
	Public      bool   `json:"public"`
	Description string `json:"description,omitempty"`
}

type playlistResponse struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Public bool      `json:"public"`
	Owner  ownerInfo `json:"owner"`
}

type ownerInfo struct {
	ID string `json:"id"`
}

// userResponse is the body of GET /me
type userResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// snapshotResponse is returned by playlist mutations
type snapshotResponse struct {
	SnapshotID string `json:"snapshot_id"`
}

// errorResponse is the error envelope used by the Web API
type errorResponse struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

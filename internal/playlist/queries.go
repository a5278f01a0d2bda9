package playlist

import (
	"context"

	"github.com/songlink/linkreader/internal/domain"
)

// EnsureMembership returns a copy of the playlist's membership, loading it
// from the remote service when it is not cached.
func (s *Service) EnsureMembership(ctx context.Context, playlistID string) (domain.TrackSet, error) {
	unlock := s.locks.Lock(playlistID)
	defer unlock()

	tracks, err := s.membership(ctx, playlistID)
	if err != nil {
		return nil, err
	}
	return tracks.Clone(), nil
}

// Contains reports whether the playlist already holds trackID
func (s *Service) Contains(ctx context.Context, playlistID, trackID string) (bool, error) {
	unlock := s.locks.Lock(playlistID)
	defer unlock()

	tracks, err := s.membership(ctx, playlistID)
	if err != nil {
		return false, err
	}
	return tracks.Has(trackID), nil
}

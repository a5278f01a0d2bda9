package playlist

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/songlink/linkreader/internal/cache"
	"github.com/songlink/linkreader/internal/domain"
)

// AddTracksSkippingDuplicates appends the tracks that are not yet in the
// playlist and returns their IDs in input order. Repeats within trackIDs are
// added once. Returns domain.ErrAllDuplicates when nothing is new.
//
// Tracks are sent in batches; when a batch fails the IDs added by earlier
// batches are returned along with the error.
func (s *Service) AddTracksSkippingDuplicates(ctx context.Context, playlistID string, trackIDs []string) ([]string, error) {
	unlock := s.locks.Lock(playlistID)
	defer unlock()

	tracks, err := s.membership(ctx, playlistID)
	if err != nil {
		return nil, err
	}

	fresh := make([]string, 0, len(trackIDs))
	seen := make(map[string]bool, len(trackIDs))
	for _, id := range trackIDs {
		if id == "" || seen[id] || tracks.Has(id) {
			continue
		}
		seen[id] = true
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil, domain.ErrAllDuplicates
	}

	added := make([]string, 0, len(fresh))
	for _, batch := range chunk(fresh, domain.MaxTracksPerRequest) {
		uris := make([]string, len(batch))
		for i, id := range batch {
			uris[i] = domain.TrackURI(id)
		}

		if err := s.repo.AddTracks(ctx, playlistID, uris); err != nil {
			s.logger.Error("failed to add tracks", "error", err, "playlistID", playlistID, "count", len(batch))
			return added, fmt.Errorf("failed to add %d tracks to playlist %s: %w", len(batch), playlistID, err)
		}

		for _, id := range batch {
			if err := s.cache.UpdateSong(playlistID, id); err != nil {
				// Evicted mid-operation; the next access refetches
				s.logger.Warn("playlist cache out of sync", "error", err, "playlistID", playlistID)
				break
			}
		}
		added = append(added, batch...)
	}

	s.logger.Info("added tracks", "playlistID", playlistID, "count", len(added))
	return added, nil
}

// Clear removes every track from the playlist and returns how many were removed
func (s *Service) Clear(ctx context.Context, playlistID string) (int, error) {
	unlock := s.locks.Lock(playlistID)
	defer unlock()

	tracks, err := s.membership(ctx, playlistID)
	if err != nil {
		return 0, err
	}

	uris := tracks.URIs()
	sort.Strings(uris)

	removed := 0
	for _, batch := range chunk(uris, domain.MaxTracksPerRequest) {
		if err := s.repo.RemoveTracks(ctx, playlistID, batch); err != nil {
			s.logger.Error("failed to remove tracks", "error", err, "playlistID", playlistID, "removed", removed)
			// Partially cleared; drop the entry so it is refetched
			s.forget(playlistID)
			return removed, fmt.Errorf("failed to clear playlist %s: %w", playlistID, err)
		}
		removed += len(batch)
	}

	s.forget(playlistID)
	s.logger.Info("cleared playlist", "playlistID", playlistID, "count", removed)
	return removed, nil
}

// CreatePlaylist creates a private playlist and caches it as empty
func (s *Service) CreatePlaylist(ctx context.Context, name string) (*domain.Playlist, error) {
	playlist, err := s.repo.CreatePlaylist(ctx, name)
	if err != nil {
		s.logger.Error("failed to create playlist", "error", err, "name", name)
		return nil, err
	}

	unlock := s.locks.Lock(playlist.ID)
	s.cache.Add(playlist.ID, make(domain.TrackSet))
	unlock()

	s.logger.Info("created playlist", "playlistID", playlist.ID, "name", name)
	return playlist, nil
}

// forget drops a cached playlist. Caller holds the playlist lock.
func (s *Service) forget(playlistID string) {
	if err := s.cache.DeletePlaylist(playlistID); err != nil && !errors.Is(err, cache.ErrPlaylistNotCached) {
		s.logger.Error("failed to drop cached playlist", "error", err, "playlistID", playlistID)
	}
}

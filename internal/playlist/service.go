package playlist

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/songlink/linkreader/internal/cache"
	"github.com/songlink/linkreader/internal/domain"
)

// Service keeps remote playlists and the membership cache in step.
//
// Every operation on a playlist runs under that playlist's lock, from the
// cache lookup through the remote call to the cache update. The membership
// map handed out by the cache is shared, so it is only touched while the
// lock is held.
type Service struct {
	repo   domain.PlaylistRepository
	cache  *cache.PlaylistCache
	locks  *keyedMutex
	logger *slog.Logger
}

// NewService creates a new playlist service.
func NewService(repo domain.PlaylistRepository, membership *cache.PlaylistCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		cache:  membership,
		locks:  newKeyedMutex(),
		logger: logger,
	}
}

// membership returns the live cached set for a playlist, fetching it on a miss.
// Caller holds the playlist lock.
func (s *Service) membership(ctx context.Context, playlistID string) (domain.TrackSet, error) {
	if tracks, ok := s.cache.Get(playlistID); ok {
		return tracks, nil
	}

	tracks, err := s.fetchAll(ctx, playlistID)
	if err != nil {
		s.logger.Error("failed to fetch playlist tracks", "error", err, "playlistID", playlistID)
		return nil, err
	}
	s.cache.Add(playlistID, tracks)
	s.logger.Debug("cached playlist", "playlistID", playlistID, "count", len(tracks))
	return tracks, nil
}

// fetchAll pages through the remote playlist
func (s *Service) fetchAll(ctx context.Context, playlistID string) (domain.TrackSet, error) {
	tracks := make(domain.TrackSet)
	for offset := 0; ; offset += domain.MaxTracksPerRequest {
		ids, more, err := s.repo.GetPlaylistTracks(ctx, playlistID, offset, domain.MaxTracksPerRequest)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tracks of playlist %s at offset %d: %w", playlistID, offset, err)
		}
		for _, id := range ids {
			tracks[id] = domain.TrackURI(id)
		}
		if !more {
			return tracks, nil
		}
	}
}

// chunk splits ids into groups of at most size
func chunk(ids []string, size int) [][]string {
	var out [][]string
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// keyedMutex hands out one mutex per key and forgets keys nobody holds
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the matching unlock
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

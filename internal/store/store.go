package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/songlink/linkreader/internal/domain"
)

// Bucket names
var (
	bucketGuilds      = []byte("guilds")
	bucketCredentials = []byte("credentials")
)

const credentialsKey = "spotify"

var (
	_ domain.GuildStore      = (*Store)(nil)
	_ domain.CredentialStore = (*Store)(nil)
)

// Store implements domain.GuildStore and domain.CredentialStore using BoltDB.
type Store struct {
	db *bolt.DB
	mu sync.RWMutex // Protects memory cache

	// In-memory cache for hot-path reads (promoted on access).
	// Every message event looks up its guild, so reads rarely touch disk.
	cache map[string][]byte
}

// Open opens or creates the database at path. An empty path keeps
// everything in memory, which is lost on exit.
func Open(path string) (*Store, error) {
	if path == "" {
		return &Store{cache: make(map[string][]byte)}, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketGuilds, bucketCredentials} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, cache: make(map[string][]byte)}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Persistent reports whether data survives a restart
func (s *Store) Persistent() bool {
	return s.db != nil
}

// === Generic helpers ===

func cacheKey(bucket []byte, key string) string {
	return string(bucket) + ":" + key
}

func (s *Store) get(bucket []byte, key string, dest interface{}) bool {
	ck := cacheKey(bucket, key)

	// Check memory cache first
	s.mu.RLock()
	if data, ok := s.cache[ck]; ok {
		s.mu.RUnlock()
		return json.Unmarshal(data, dest) == nil
	}
	s.mu.RUnlock()

	if s.db == nil {
		return false
	}

	var data []byte
	s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(key)); v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})

	if data == nil {
		return false
	}

	// Promote to memory cache
	s.mu.Lock()
	s.cache[ck] = data
	s.mu.Unlock()

	return json.Unmarshal(data, dest) == nil
}

func (s *Store) set(bucket []byte, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if s.db != nil {
		err := s.db.Update(func(tx *bolt.Tx) error {
			return tx.Bucket(bucket).Put([]byte(key), data)
		})
		if err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", bucket, key, err)
		}
	}

	s.mu.Lock()
	s.cache[cacheKey(bucket, key)] = data
	s.mu.Unlock()
	return nil
}

func (s *Store) delete(bucket []byte, key string) error {
	s.mu.Lock()
	delete(s.cache, cacheKey(bucket, key))
	s.mu.Unlock()

	if s.db == nil {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// values returns every raw value in a bucket
func (s *Store) values(bucket []byte) ([][]byte, error) {
	if s.db == nil {
		prefix := cacheKey(bucket, "")
		s.mu.RLock()
		defer s.mu.RUnlock()

		var out [][]byte
		for k, v := range s.cache {
			if strings.HasPrefix(k, prefix) {
				out = append(out, v)
			}
		}
		return out, nil
	}

	var out [][]byte
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, v []byte) error {
			data := make([]byte, len(v))
			copy(data, v)
			out = append(out, data)
			return nil
		})
	})
	return out, err
}

// === Guilds ===

// GetGuild returns a copy of a guild's settings; callers save changes with SaveGuild
func (s *Store) GetGuild(guildID string) (*domain.GuildSettings, bool) {
	var g domain.GuildSettings
	if !s.get(bucketGuilds, guildID, &g) {
		return nil, false
	}
	return &g, true
}

func (s *Store) SaveGuild(settings *domain.GuildSettings) error {
	if settings == nil || settings.GuildID == "" {
		return errors.New("cannot save guild without an ID")
	}
	return s.set(bucketGuilds, settings.GuildID, settings)
}

func (s *Store) DeleteGuild(guildID string) error {
	return s.delete(bucketGuilds, guildID)
}

// ListGuilds returns every stored guild ordered by name
func (s *Store) ListGuilds() ([]*domain.GuildSettings, error) {
	raw, err := s.values(bucketGuilds)
	if err != nil {
		return nil, fmt.Errorf("failed to list guilds: %w", err)
	}

	guilds := make([]*domain.GuildSettings, 0, len(raw))
	for _, data := range raw {
		var g domain.GuildSettings
		if err := json.Unmarshal(data, &g); err != nil {
			return nil, fmt.Errorf("failed to parse guild: %w", err)
		}
		guilds = append(guilds, &g)
	}

	sort.Slice(guilds, func(i, j int) bool {
		if guilds[i].Name != guilds[j].Name {
			return guilds[i].Name < guilds[j].Name
		}
		return guilds[i].GuildID < guilds[j].GuildID
	})
	return guilds, nil
}

// === Credentials ===

func (s *Store) LoadCredentials() (*domain.Credentials, bool) {
	var creds domain.Credentials
	if !s.get(bucketCredentials, credentialsKey, &creds) {
		return nil, false
	}
	return &creds, true
}

func (s *Store) SaveCredentials(creds *domain.Credentials) error {
	return s.set(bucketCredentials, credentialsKey, creds)
}

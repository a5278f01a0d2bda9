package cache

import (
	"errors"
	"fmt"
	"sync"

	"github.com/songlink/linkreader/internal/domain"
)

// nilSlot marks the absence of a neighbour or an empty end of the list
const nilSlot = -1

var (
	// ErrPlaylistNotCached is returned by UpdateSong and DeletePlaylist when the
	// playlist is not in the cache. Callers must Get or Add before mutating.
	ErrPlaylistNotCached = errors.New("playlist not found in cache")

	// ErrInvalidCapacity is returned by New for a capacity below one
	ErrInvalidCapacity = errors.New("cache capacity must be at least 1")
)

// entry is one playlist's membership plus its position in the recency list.
// prev/next are slot indices into PlaylistCache.slots.
type entry struct {
	playlistID string
	tracks     domain.TrackSet
	prev       int
	next       int
}

// Stats is a point-in-time view of cache activity
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Size      int
	Capacity  int
}

// PlaylistCache is a fixed-capacity LRU cache of playlist membership.
//
// Entries live in an arena slice and link to each other by slot index, so the
// recency list never holds pointers into the index map. head is the most
// recently used entry, tail the next eviction candidate. Every method is
// guarded by a single mutex and runs in O(1).
type PlaylistCache struct {
	mu       sync.Mutex
	capacity int
	index    map[string]int
	slots    []entry
	free     []int
	head     int
	tail     int

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates a cache holding at most capacity playlists
func New(capacity int) (*PlaylistCache, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidCapacity, capacity)
	}
	return &PlaylistCache{
		capacity: capacity,
		index:    make(map[string]int, capacity),
		slots:    make([]entry, 0, capacity),
		head:     nilSlot,
		tail:     nilSlot,
	}, nil
}

// Get returns the membership of a cached playlist and marks it most recently used.
// The returned set is the cache's own map: later UpdateSong calls are visible
// through it, and writes to it are visible to the cache.
func (c *PlaylistCache) Get(playlistID string) (domain.TrackSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.index[playlistID]
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	c.moveToFront(slot)
	return c.slots[slot].tracks, true
}

// Add stores a playlist's membership as the most recently used entry, evicting
// the least recently used playlist first when the cache is full.
// Adding a playlist that is already cached replaces its membership in place.
func (c *PlaylistCache) Add(playlistID string, tracks domain.TrackSet) {
	if tracks == nil {
		tracks = make(domain.TrackSet)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if slot, ok := c.index[playlistID]; ok {
		c.slots[slot].tracks = tracks
		c.moveToFront(slot)
		return
	}

	if len(c.index) == c.capacity {
		c.evictTail()
	}

	slot := c.allocate(entry{playlistID: playlistID, tracks: tracks, prev: nilSlot, next: nilSlot})
	c.index[playlistID] = slot
	c.pushFront(slot)
}

// UpdateSong records that trackID now belongs to a cached playlist.
// Recency is not changed.
func (c *PlaylistCache) UpdateSong(playlistID, trackID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.index[playlistID]
	if !ok {
		return fmt.Errorf("update %s: %w", playlistID, ErrPlaylistNotCached)
	}
	c.slots[slot].tracks[trackID] = domain.TrackURI(trackID)
	return nil
}

// DeletePlaylist drops a cached playlist
func (c *PlaylistCache) DeletePlaylist(playlistID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	slot, ok := c.index[playlistID]
	if !ok {
		return fmt.Errorf("delete %s: %w", playlistID, ErrPlaylistNotCached)
	}
	c.unlink(slot)
	c.release(slot)
	delete(c.index, playlistID)
	return nil
}

// Len returns the number of cached playlists
func (c *PlaylistCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index)
}

// Capacity returns the maximum number of cached playlists
func (c *PlaylistCache) Capacity() int {
	return c.capacity
}

// Keys returns cached playlist IDs from most to least recently used
func (c *PlaylistCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.index))
	for slot := c.head; slot != nilSlot; slot = c.slots[slot].next {
		keys = append(keys, c.slots[slot].playlistID)
	}
	return keys
}

// Stats returns hit/miss/eviction counters and the current size
func (c *PlaylistCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.index),
		Capacity:  c.capacity,
	}
}

// === List helpers (caller holds mu) ===

func (c *PlaylistCache) allocate(e entry) int {
	if n := len(c.free); n > 0 {
		slot := c.free[n-1]
		c.free = c.free[:n-1]
		c.slots[slot] = e
		return slot
	}
	c.slots = append(c.slots, e)
	return len(c.slots) - 1
}

// release clears a slot so its membership map can be collected, then recycles it
func (c *PlaylistCache) release(slot int) {
	c.slots[slot] = entry{prev: nilSlot, next: nilSlot}
	c.free = append(c.free, slot)
}

func (c *PlaylistCache) pushFront(slot int) {
	e := &c.slots[slot]
	e.prev = nilSlot
	e.next = c.head
	if c.head != nilSlot {
		c.slots[c.head].prev = slot
	}
	c.head = slot
	if c.tail == nilSlot {
		c.tail = slot
	}
}

func (c *PlaylistCache) unlink(slot int) {
	e := &c.slots[slot]
	if e.prev != nilSlot {
		c.slots[e.prev].next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nilSlot {
		c.slots[e.next].prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev = nilSlot
	e.next = nilSlot
}

func (c *PlaylistCache) moveToFront(slot int) {
	if slot == c.head {
		return
	}
	c.unlink(slot)
	c.pushFront(slot)
}

func (c *PlaylistCache) evictTail() {
	slot := c.tail
	if slot == nilSlot {
		return
	}
	id := c.slots[slot].playlistID
	c.unlink(slot)
	c.release(slot)
	delete(c.index, id)
	c.evictions++
}

// validate checks the structural invariants of the recency list against the index
func (c *PlaylistCache) validate() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.index) > c.capacity {
		return fmt.Errorf("size %d exceeds capacity %d", len(c.index), c.capacity)
	}
	if len(c.index) == 0 {
		if c.head != nilSlot || c.tail != nilSlot {
			return fmt.Errorf("empty cache has head=%d tail=%d", c.head, c.tail)
		}
		return nil
	}
	if c.slots[c.head].prev != nilSlot {
		return fmt.Errorf("head %d has predecessor %d", c.head, c.slots[c.head].prev)
	}
	if c.slots[c.tail].next != nilSlot {
		return fmt.Errorf("tail %d has successor %d", c.tail, c.slots[c.tail].next)
	}

	seen := make(map[int]bool, len(c.index))
	var forward []int
	for slot := c.head; slot != nilSlot; slot = c.slots[slot].next {
		if seen[slot] {
			return fmt.Errorf("slot %d visited twice", slot)
		}
		seen[slot] = true
		forward = append(forward, slot)
		if idx, ok := c.index[c.slots[slot].playlistID]; !ok || idx != slot {
			return fmt.Errorf("slot %d (%s) not indexed", slot, c.slots[slot].playlistID)
		}
	}
	if len(forward) != len(c.index) {
		return fmt.Errorf("list has %d entries, index has %d", len(forward), len(c.index))
	}

	i := len(forward) - 1
	for slot := c.tail; slot != nilSlot; slot = c.slots[slot].prev {
		if i < 0 || forward[i] != slot {
			return fmt.Errorf("reverse traversal diverges at slot %d", slot)
		}
		i--
	}
	if i != -1 {
		return errors.New("reverse traversal stopped early")
	}
	return nil
}

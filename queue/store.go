package queue

import (
	"math/rand"
	"sync"
)

// Snapshot is a consistent copy of the queue taken at a single point in time.
type Snapshot struct {
	Items        []Item `json:"items"`
	NowPlayingID string `json:"nowPlayingId,omitempty"`
	Autoplay     bool   `json:"autoplay"`
}

// Store is the authoritative ordered collection of queued items.
// Every operation is atomic with respect to the others.
type Store struct {
	mu           sync.Mutex
	items        []*Item
	nowPlayingID string
	autoplay     bool
}

// NewStore creates an empty queue with the given initial autoplay policy.
func NewStore(autoplay bool) *Store {
	return &Store{autoplay: autoplay}
}

// Append adds a new pending item for the submitted URL at the tail and returns it.
func (s *Store) Append(sourceURL string) Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	item := &Item{
		ID:        newID(),
		SourceURL: sourceURL,
		State:     StatePending,
	}
	s.items = append(s.items, item)
	return *item
}

// Resolve attaches resolved track metadata to an item and marks it ready.
// Returns ErrNotFound if the item was removed while resolution was in flight;
// the caller is expected to discard the result in that case.
func (s *Store) Resolve(id string, track *Track) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(id)
	if !ok {
		return Item{}, ErrNotFound
	}
	item.Track = track
	item.State = StateReady
	return *item, nil
}

// Fail marks an item's resolution as failed. The item stays visible in the queue.
func (s *Store) Fail(id string) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(id)
	if !ok {
		return Item{}, ErrNotFound
	}
	item.State = StateFailed
	return *item, nil
}

// Remove deletes an item. If it was the now-playing item the pointer is
// cleared and wasCurrent reports true; stopping the player is the caller's job.
func (s *Store) Remove(id string) (wasCurrent bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return false, ErrNotFound
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)

	if s.nowPlayingID == id {
		s.nowPlayingID = ""
		return true, nil
	}
	return false, nil
}

// MoveUp swaps an item with its predecessor. Already at the top is a no-op, not an error.
func (s *Store) MoveUp(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}
	if idx > 0 {
		s.items[idx], s.items[idx-1] = s.items[idx-1], s.items[idx]
	}
	return nil
}

// MoveDown swaps an item with its successor. Already at the bottom is a no-op, not an error.
func (s *Store) MoveDown(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}
	if idx < len(s.items)-1 {
		s.items[idx], s.items[idx+1] = s.items[idx+1], s.items[idx]
	}
	return nil
}

// Reorder relocates the item at oldIndex to newIndex.
// Both indices are validated against the current length.
func (s *Store) Reorder(oldIndex, newIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if oldIndex < 0 || oldIndex >= len(s.items) || newIndex < 0 || newIndex >= len(s.items) {
		return ErrInvalidPosition
	}

	item := s.items[oldIndex]
	s.items = append(s.items[:oldIndex], s.items[oldIndex+1:]...)

	rest := make([]*Item, 0, len(s.items)+1)
	rest = append(rest, s.items[:newIndex]...)
	rest = append(rest, item)
	rest = append(rest, s.items[newIndex:]...)
	s.items = rest
	return nil
}

// Shuffle randomizes the queue order. The now-playing item, if any, stays at
// index 0 so the live track is never interrupted.
func (s *Store) Shuffle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var current *Item
	if s.nowPlayingID != "" {
		if idx := s.indexOf(s.nowPlayingID); idx >= 0 {
			current = s.items[idx]
			s.items = append(s.items[:idx], s.items[idx+1:]...)
		}
	}

	rand.Shuffle(len(s.items), func(i, j int) {
		s.items[i], s.items[j] = s.items[j], s.items[i]
	})

	if current != nil {
		s.items = append([]*Item{current}, s.items...)
	}
}

// PromoteToFront moves an item to the head of the queue (play-now semantics).
func (s *Store) PromoteToFront(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOf(id)
	if idx < 0 {
		return ErrNotFound
	}
	item := s.items[idx]
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	s.items = append([]*Item{item}, s.items...)
	return nil
}

// Clear empties the queue and clears the now-playing pointer.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = nil
	s.nowPlayingID = ""
}

// SetNowPlaying points the queue at the item currently loaded into the player.
func (s *Store) SetNowPlaying(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(id); !ok {
		return ErrNotFound
	}
	s.nowPlayingID = id
	return nil
}

// ClearNowPlaying detaches the now-playing pointer without touching the items.
func (s *Store) ClearNowPlaying() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowPlayingID = ""
}

// NowPlaying returns the item the pointer references, if any.
func (s *Store) NowPlaying() (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nowPlayingID == "" {
		return Item{}, false
	}
	item, ok := s.lookup(s.nowPlayingID)
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Get returns a copy of the item with the given id.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(id)
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// NextReady returns the first ready item after the given id in queue order,
// skipping pending and failed entries. An empty or unknown id scans from the head.
func (s *Store) NextReady(afterID string) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if afterID != "" {
		if idx := s.indexOf(afterID); idx >= 0 {
			start = idx + 1
		}
	}
	for _, item := range s.items[min(start, len(s.items)):] {
		if item.State == StateReady {
			return *item, true
		}
	}
	return Item{}, false
}

// SetAutoplay updates the automatic-advance policy and returns the new value.
func (s *Store) SetAutoplay(enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoplay = enabled
	return s.autoplay
}

// ToggleAutoplay flips the automatic-advance policy and returns the new value.
func (s *Store) ToggleAutoplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoplay = !s.autoplay
	return s.autoplay
}

// Autoplay reports whether completion of the current item triggers automatic advance.
func (s *Store) Autoplay() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoplay
}

// Len returns the number of queued items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Snapshot returns a consistent copy of the entire queue state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	items := make([]Item, len(s.items))
	for i, item := range s.items {
		items[i] = *item
	}
	return Snapshot{
		Items:        items,
		NowPlayingID: s.nowPlayingID,
		Autoplay:     s.autoplay,
	}
}

// lookup finds an item by id. Caller must hold the lock.
func (s *Store) lookup(id string) (*Item, bool) {
	idx := s.indexOf(id)
	if idx < 0 {
		return nil, false
	}
	return s.items[idx], true
}

// indexOf returns the position of an item, or -1. Caller must hold the lock.
func (s *Store) indexOf(id string) int {
	for i, item := range s.items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Package queue implements the authoritative, mutually-exclusive playback queue.
//
// The Store owns every queued item and the now-playing pointer; all mutation
// happens through its methods so the pointer invariant (it references an
// existing item or nothing) is enforced in one place.
package queue

import (
	"errors"

	"github.com/google/uuid"
)

// State describes the resolution outcome of a queued item.
type State string

const (
	// StatePending marks an item whose resolution has not completed yet.
	StatePending State = "pending"
	// StateReady marks an item with a playable stream URL.
	StateReady State = "ready"
	// StateFailed marks an item whose resolution failed. It stays in the
	// queue so the user can retry or remove it.
	StateFailed State = "failed"
)

// Typed failures returned by Store mutations.
var (
	ErrNotFound        = errors.New("item not found in queue")
	ErrInvalidPosition = errors.New("position out of range")
)

// Track holds the resolved, playable metadata of an item.
// A Track is immutable once attached to an item.
type Track struct {
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	StreamURL string  `json:"audioUrl"`
	Source    string  `json:"source"`
}

// Item is a single queue entry. Its ID is generated at insertion and never reused.
type Item struct {
	ID        string `json:"id"`
	SourceURL string `json:"url"`
	State     State  `json:"state"`
	Track     *Track `json:"track,omitempty"`
}

// newID generates a unique item identifier. The full UUID is kept: a
// truncated id could collide and break item addressing.
func newID() string {
	return uuid.NewString()
}

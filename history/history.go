// Package history persists the record of tracks that finished playing.
package history

import (
	"time"

	"github.com/metafates/gache"

	"github.com/tannoy-player/tannoy/filesystem"
	"github.com/tannoy-player/tannoy/where"
)

// PlayedTrack is a single finished-playback entry.
type PlayedTrack struct {
	SourceURL    string    `json:"source_url"`
	Title        string    `json:"title"`
	Thumbnail    string    `json:"thumbnail"`
	Duration     float64   `json:"duration"`
	Source       string    `json:"source"`
	PlayCount    int       `json:"play_count"`
	LastPlayedAt time.Time `json:"last_played_at"`
}

// cacher is the disk-backed registry of played tracks, keyed by source URL.
var cacher = gache.New[map[string]*PlayedTrack](
	&gache.Options{
		Path:       where.History(),
		FileSystem: &filesystem.GacheFs{},
	},
)

// Get returns every persisted playback record.
func Get() (map[string]*PlayedTrack, error) {
	cached, expired, err := cacher.Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]*PlayedTrack), nil
	}
	return cached, nil
}

// Save records a finished track. Replaying the same source URL bumps its
// play count instead of duplicating the entry.
func Save(track *PlayedTrack) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	record := *track
	record.PlayCount = 1
	if existing, ok := saved[record.SourceURL]; ok {
		record.PlayCount = existing.PlayCount + 1
	}
	if record.LastPlayedAt.IsZero() {
		record.LastPlayedAt = time.Now()
	}

	saved[record.SourceURL] = &record
	return cacher.Set(saved)
}

// Remove deletes one playback record.
func Remove(sourceURL string) error {
	saved, err := Get()
	if err != nil {
		return err
	}

	delete(saved, sourceURL)
	return cacher.Set(saved)
}

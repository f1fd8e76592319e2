// Package player owns the external mpv process and its JSON-IPC control
// socket. It exposes a narrow, typed command surface over the line-oriented
// IPC protocol and supervises process restarts when the channel faults.
package player

// ConnectionState describes the health of the control channel.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateFaulted      ConnectionState = "faulted"
)

// PlaybackState describes what the player is doing with the loaded media.
type PlaybackState string

const (
	PlaybackIdle    PlaybackState = "idle"
	PlaybackLoading PlaybackState = "loading"
	PlaybackPlaying PlaybackState = "playing"
	PlaybackPaused  PlaybackState = "paused"
	PlaybackStopped PlaybackState = "stopped"
)

// Session is a point-in-time snapshot of the player state. Values may be
// stale between polls; the orchestrator treats them as advisory.
type Session struct {
	Connection ConnectionState `json:"connection"`
	Playback   PlaybackState   `json:"playback"`
	Position   float64         `json:"position"`
	Duration   float64         `json:"duration"`
	Volume     float64         `json:"volume"`

	// IdleActive mirrors mpv's idle-active property: true when no media
	// is loaded. EOFReached is set when the current media ran to its end.
	IdleActive bool `json:"-"`
	EOFReached bool `json:"-"`
}

// MediaFinished reports whether the loaded media ran to natural completion,
// as opposed to an explicit stop. The idle-active check covers mpv dropping
// back to idle after the playlist drains; the position check covers streams
// that report a duration but no end-of-file flag.
func (s Session) MediaFinished() bool {
	if s.EOFReached {
		return true
	}
	if s.IdleActive {
		return true
	}
	return s.Duration > 0 && s.Position >= s.Duration && s.Playback != PlaybackPlaying
}

// Channel encapsulates the capabilities the orchestrator needs from a
// playback backend. MPV is the only production implementation; tests
// substitute fakes.
type Channel interface {
	// Start spawns the player process and connects the control channel.
	Start() error

	// Load replaces the current media source and resets position to 0.
	Load(streamURL string) error

	// Play resumes playback. Issuing it while already playing is a no-op.
	Play() error

	// Pause suspends playback. Issuing it while already paused is a no-op.
	Pause() error

	// TogglePause inverts the current suspension state.
	TogglePause() error

	// Stop ends playback and unloads the media. Idempotent.
	Stop() error

	// Seek jumps to an absolute position expressed as a percentage of the
	// media duration. Out-of-range values are clamped, not rejected.
	Seek(percent float64) error

	// SetVolume sets the output volume. Clamped to [0, 100].
	SetVolume(volume float64) error

	// Status reads the fixed property set and returns a Session snapshot.
	// Property reads that fail while the player is idle are tolerated and
	// map to zero values rather than failing the whole query.
	Status() (Session, error)

	// State returns the current connection state.
	State() ConnectionState

	// Close terminates the player process and releases its resources.
	Close() error
}

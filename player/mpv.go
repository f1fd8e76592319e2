package player

import (
	"crypto/rand"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tannoy-player/tannoy/key"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/util"
)

const (
	socketWaitRetries = 10
	socketWaitDelay   = 300 * time.Millisecond

	restartBackoffBase = 500 * time.Millisecond
	restartBackoffCap  = 8 * time.Second

	quitGrace = 3 * time.Second
)

// MPV implements Channel against mpv's JSON-IPC protocol. One MPV value
// owns one mpv process for the lifetime of the service; when the channel
// faults it replaces the process rather than handing out a new value, so
// callers never need to re-acquire anything after a restart.
type MPV struct {
	// mu serializes every command and status poll against the socket, and
	// every connection state transition. A poll never interleaves with an
	// in-flight command.
	mu sync.Mutex

	socketPath string
	cmd        *exec.Cmd
	exited     chan struct{} // closed when the mpv process exits

	state       ConnectionState
	fails       int // consecutive failed operations
	maxFails    int
	maxRestarts int
	volume      float64
}

// NewMPV creates a control channel configured from the player settings.
// The process is not spawned until Start or the first command.
func NewMPV() *MPV {
	return &MPV{
		socketPath:  viper.GetString(key.PlayerSocket),
		state:       StateDisconnected,
		maxFails:    viper.GetInt(key.PlayerMaxConsecutiveFailures),
		maxRestarts: viper.GetInt(key.PlayerRestartMaxAttempts),
		volume:      util.Clamp(viper.GetFloat64(key.PlayerVolume), 0, 100),
	}
}

// Start spawns mpv and connects the control channel. Calling it while
// already connected is a no-op.
func (m *MPV) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureConnected()
}

// State returns the current connection state.
func (m *MPV) State() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Load replaces the current media source; position resets to 0.
func (m *MPV) Load(streamURL string) error {
	target, err := sanitizeMediaTarget(streamURL)
	if err != nil {
		return newError(KindProtocol, "load", err)
	}
	_, err = m.exec("load", "loadfile", target, "replace")
	return err
}

// Play resumes playback. A no-op when already playing.
func (m *MPV) Play() error {
	_, err := m.exec("play", "set_property", "pause", false)
	return err
}

// Pause suspends playback. A no-op when already paused.
func (m *MPV) Pause() error {
	_, err := m.exec("pause", "set_property", "pause", true)
	return err
}

// TogglePause inverts the suspension state.
func (m *MPV) TogglePause() error {
	_, err := m.exec("toggle-pause", "cycle", "pause")
	return err
}

// Stop ends playback and unloads the media. Idempotent.
func (m *MPV) Stop() error {
	_, err := m.exec("stop", "stop")
	return err
}

// Seek jumps to an absolute position as a percentage of the duration.
func (m *MPV) Seek(percent float64) error {
	_, err := m.exec("seek", "set_property", "percent-pos", util.Clamp(percent, 0, 100))
	return err
}

// SetVolume sets the output volume, clamped to [0, 100].
func (m *MPV) SetVolume(volume float64) error {
	v := util.Clamp(volume, 0, 100)
	_, err := m.exec("set-volume", "set_property", "volume", v)
	if err == nil {
		m.mu.Lock()
		m.volume = v
		m.mu.Unlock()
	}
	return err
}

// Status reads the fixed property set and returns a Session snapshot.
// Individual property reads answered with "property unavailable" map to
// zero values; only a channel-level failure fails the whole query.
func (m *MPV) Status() (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Session{Connection: m.state, Playback: PlaybackIdle, Volume: m.volume}

	if err := m.ensureConnected(); err != nil {
		return s, err
	}
	s.Connection = m.state

	idle, err := m.getBool("status", "idle-active")
	if err != nil && !isPropertyUnavailable(err) {
		err = m.fail(err)
		s.Connection = m.state
		return s, err
	}
	m.fails = 0
	s.IdleActive = idle

	if vol, err := m.getFloat("status", "volume"); err == nil {
		s.Volume = vol
		m.volume = vol
	}

	if idle {
		return s, nil
	}

	paused, _ := m.getBool("status", "pause")
	s.Position, _ = m.getFloat("status", "time-pos")
	s.Duration, _ = m.getFloat("status", "duration")
	s.EOFReached, _ = m.getBool("status", "eof-reached")

	if paused {
		s.Playback = PlaybackPaused
	} else {
		s.Playback = PlaybackPlaying
	}
	return s, nil
}

// Close shuts the mpv process down and releases its resources.
func (m *MPV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardown()
	m.state = StateDisconnected
	return nil
}

// exec runs one command against the socket under the channel lock,
// lazily connecting on first use and tracking consecutive failures.
func (m *MPV) exec(op string, command ...interface{}) (interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureConnected(); err != nil {
		return nil, err
	}

	data, err := sendCommand(m.socketPath, op, command)
	if err != nil {
		if isPropertyUnavailable(err) {
			return nil, err
		}
		return nil, m.fail(err)
	}
	m.fails = 0
	return data, nil
}

// getFloat reads a float property. Lock must be held.
func (m *MPV) getFloat(op, name string) (float64, error) {
	data, err := sendCommand(m.socketPath, op, []interface{}{"get_property", name})
	if err != nil {
		return 0, err
	}
	val, ok := data.(float64)
	if !ok {
		return 0, newError(KindProtocol, op, fmt.Errorf("property %s: expected float64, got %T", name, data))
	}
	return val, nil
}

// getBool reads a boolean property. Lock must be held.
func (m *MPV) getBool(op, name string) (bool, error) {
	data, err := sendCommand(m.socketPath, op, []interface{}{"get_property", name})
	if err != nil {
		return false, err
	}
	val, ok := data.(bool)
	if !ok {
		return false, newError(KindProtocol, op, fmt.Errorf("property %s: expected bool, got %T", name, data))
	}
	return val, nil
}

// ensureConnected makes the channel usable or reports why it is not.
// Lock must be held.
func (m *MPV) ensureConnected() error {
	switch m.state {
	case StateConnected:
		return nil
	case StateDisconnected:
		m.state = StateConnecting
		if err := m.spawn(); err != nil {
			m.state = StateDisconnected
			return newError(KindChannelClosed, "connect", err)
		}
		m.state = StateConnected
		m.fails = 0
		return nil
	default:
		// Faulted (restart loop owns recovery) or Connecting.
		return newError(KindChannelClosed, "connect", fmt.Errorf("channel is %s", m.state))
	}
}

// fail records a failed operation and trips the fault breaker once the
// consecutive-failure bound is reached. Lock must be held.
func (m *MPV) fail(err error) error {
	m.fails++
	if m.fails >= m.maxFails && m.state == StateConnected {
		m.state = StateFaulted
		log.Errorf("player channel faulted after %d consecutive failures: %s", m.fails, err)
		go m.restart()
	}
	return err
}

// restart replaces the mpv process with escalating backoff between
// attempts. When every attempt fails the channel stays Faulted and the
// orchestrator surfaces "player unavailable".
func (m *MPV) restart() {
	backoff := restartBackoffBase

	for attempt := 1; attempt <= m.maxRestarts; attempt++ {
		time.Sleep(backoff)
		if backoff *= 2; backoff > restartBackoffCap {
			backoff = restartBackoffCap
		}

		m.mu.Lock()
		if m.state != StateFaulted {
			// Something else recovered or shut the channel down.
			m.mu.Unlock()
			return
		}
		m.teardown()
		m.state = StateConnecting
		err := m.spawn()
		if err == nil {
			m.state = StateConnected
			m.fails = 0
			m.mu.Unlock()
			log.Infof("player restarted after %d attempt(s)", attempt)
			return
		}
		m.state = StateFaulted
		m.mu.Unlock()
		log.Warnf("player restart attempt %d/%d failed: %s", attempt, m.maxRestarts, err)
	}

	log.Errorf("player unavailable: %d restart attempts exhausted", m.maxRestarts)
}

// spawn starts a fresh mpv process and waits for its socket to accept a
// trivial status query. Lock must be held.
func (m *MPV) spawn() error {
	if m.socketPath == "" {
		randomBytes := make([]byte, 4)
		if _, err := rand.Read(randomBytes); err != nil {
			return fmt.Errorf("generate socket name: %w", err)
		}
		// os.TempDir, not /tmp: macOS puts $TMPDIR under /var/folders.
		m.socketPath = filepath.Join(os.TempDir(), fmt.Sprintf("tannoy-%x.sock", randomBytes))
	}
	_ = os.Remove(m.socketPath)

	args := []string{
		"--no-video",
		"--idle=yes",
		fmt.Sprintf("--input-ipc-server=%s", m.socketPath),
		fmt.Sprintf("--volume=%g", m.volume),
		"--no-terminal",
		"--really-quiet",
	}

	m.cmd = exec.Command("mpv", args...)

	// Detach from the parent process group so killing the service shell
	// does not cascade into the player.
	m.cmd.SysProcAttr = sysProcAttr()
	m.cmd.Stdout = nil
	m.cmd.Stderr = nil
	m.cmd.Stdin = nil

	if err := m.cmd.Start(); err != nil {
		return fmt.Errorf("start mpv: %w", err)
	}

	// Reap the process to prevent zombies.
	exited := make(chan struct{})
	m.exited = exited
	cmd := m.cmd
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	if err := m.waitForSocket(); err != nil {
		select {
		case <-m.exited:
		default:
			log.Warnf("killing mpv: socket never became ready")
			_ = killProcess(m.cmd)
		}
		return fmt.Errorf("mpv socket not ready: %w", err)
	}

	// The channel counts as connected once a trivial query answers.
	if _, err := sendCommand(m.socketPath, "connect", []interface{}{"get_property", "idle-active"}); err != nil && !isPropertyUnavailable(err) {
		_ = killProcess(m.cmd)
		return fmt.Errorf("mpv socket not answering: %w", err)
	}

	return nil
}

// waitForSocket polls until the IPC socket accepts connections or the
// process dies first.
func (m *MPV) waitForSocket() error {
	for i := 0; i < socketWaitRetries; i++ {
		time.Sleep(socketWaitDelay)

		select {
		case <-m.exited:
			return fmt.Errorf("mpv exited before socket was ready")
		default:
		}

		conn, err := net.Dial("unix", m.socketPath)
		if err == nil {
			conn.Close()
			return nil
		}
	}
	return fmt.Errorf("socket %s not ready after %d attempts", m.socketPath, socketWaitRetries)
}

// teardown stops the current process if any. Lock must be held.
func (m *MPV) teardown() {
	if m.cmd == nil {
		return
	}

	// Try a graceful quit first.
	_, _ = sendCommand(m.socketPath, "quit", []interface{}{"quit"})

	select {
	case <-m.exited:
	case <-time.After(quitGrace):
		_ = killProcess(m.cmd)
	}

	_ = os.Remove(m.socketPath)
	m.cmd = nil
}

// sanitizeMediaTarget validates that a target is safe to hand to mpv.
// Prevents flag injection through submitted URLs.
func sanitizeMediaTarget(link string) (string, error) {
	l := strings.TrimSpace(link)
	if l == "" {
		return "", fmt.Errorf("empty URL")
	}

	if strings.ContainsAny(l, "\x00\n\r") {
		return "", fmt.Errorf("invalid control characters in URL")
	}

	if strings.HasPrefix(l, "-") {
		return "", fmt.Errorf("url must not start with '-' (looks like a flag)")
	}

	if strings.Contains(l, "://") {
		u, err := url.Parse(l)
		if err != nil {
			return "", fmt.Errorf("invalid URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return l, nil
		default:
			return "", fmt.Errorf("unsupported URL scheme: %s", u.Scheme)
		}
	}

	return filepath.Clean(l), nil
}

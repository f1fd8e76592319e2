package player

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

// fakeIPC speaks just enough of mpv's JSON-IPC protocol to exercise the
// channel: one JSON command per line in, one JSON response per line out.
type fakeIPC struct {
	path string
	ln   net.Listener

	mu         sync.Mutex
	commands   [][]interface{}
	properties map[string]interface{} // name -> value; absent means unavailable
	mute       bool                   // accept but never answer
}

func newFakeIPC(t *testing.T) *fakeIPC {
	t.Helper()

	f := &fakeIPC{
		path:       filepath.Join(t.TempDir(), "ipc.sock"),
		properties: map[string]interface{}{},
	}

	ln, err := net.Listen("unix", f.path)
	if err != nil {
		t.Fatalf("listen: %s", err)
	}
	f.ln = ln
	t.Cleanup(func() { ln.Close(); os.Remove(f.path) })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn)
		}
	}()

	return f
}

func (f *fakeIPC) serve(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var cmd ipcCommand
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			continue
		}

		f.mu.Lock()
		f.commands = append(f.commands, cmd.Command)
		mute := f.mute
		resp := f.respond(cmd.Command)
		f.mu.Unlock()

		if mute {
			continue
		}

		payload, _ := json.Marshal(resp)
		_, _ = conn.Write(append(payload, '\n'))
	}
}

func (f *fakeIPC) respond(command []interface{}) ipcResponse {
	if len(command) >= 2 && command[0] == "get_property" {
		name, _ := command[1].(string)
		if val, ok := f.properties[name]; ok {
			return ipcResponse{Data: val, Error: "success"}
		}
		return ipcResponse{Error: "property unavailable"}
	}
	return ipcResponse{Error: "success"}
}

func (f *fakeIPC) set(name string, value interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.properties[name] = value
}

func (f *fakeIPC) sent() [][]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]interface{}, len(f.commands))
	copy(out, f.commands)
	return out
}

func (f *fakeIPC) last() []interface{} {
	cmds := f.sent()
	if len(cmds) == 0 {
		return nil
	}
	return cmds[len(cmds)-1]
}

// connected returns a channel wired to the fake, skipping process spawn.
func connected(f *fakeIPC) *MPV {
	return &MPV{
		socketPath:  f.path,
		state:       StateConnected,
		maxFails:    3,
		maxRestarts: 0,
		volume:      100,
	}
}

func TestSendCommand(t *testing.T) {
	Convey("sendCommand", t, func() {
		Convey("Should return the response data on success", func() {
			fake := newFakeIPC(t)
			fake.set("volume", 80.0)

			data, err := sendCommand(fake.path, "test", []interface{}{"get_property", "volume"})
			So(err, ShouldBeNil)
			So(data, ShouldEqual, 80.0)
		})

		Convey("Should surface property unavailable as a filterable error", func() {
			fake := newFakeIPC(t)

			_, err := sendCommand(fake.path, "test", []interface{}{"get_property", "time-pos"})
			So(err, ShouldNotBeNil)
			So(isPropertyUnavailable(err), ShouldBeTrue)
			So(IsProtocol(err), ShouldBeTrue)
		})

		Convey("Should report ChannelClosed when the socket is gone", func() {
			_, err := sendCommand(filepath.Join(t.TempDir(), "absent.sock"), "test", []interface{}{"stop"})
			So(err, ShouldNotBeNil)
			So(IsChannelClosed(err), ShouldBeTrue)
		})

		Convey("Should report Timeout when the player never answers", func() {
			fake := newFakeIPC(t)
			fake.mu.Lock()
			fake.mute = true
			fake.mu.Unlock()

			start := time.Now()
			_, err := sendCommand(fake.path, "test", []interface{}{"get_property", "pause"})
			So(err, ShouldNotBeNil)
			So(IsTimeout(err), ShouldBeTrue)
			So(time.Since(start), ShouldBeLessThan, readDeadline+time.Second)
		})
	})
}

func TestMPVCommands(t *testing.T) {
	Convey("MPV", t, func() {
		fake := newFakeIPC(t)
		mpv := connected(fake)

		Convey("Load should replace the current media", func() {
			err := mpv.Load("https://cdn.example.com/stream.m4a")
			So(err, ShouldBeNil)
			So(fake.last(), ShouldResemble, []interface{}{"loadfile", "https://cdn.example.com/stream.m4a", "replace"})
		})

		Convey("Load should reject flag-like targets", func() {
			err := mpv.Load("--script=evil.lua")
			So(err, ShouldNotBeNil)
			So(IsProtocol(err), ShouldBeTrue)
			So(fake.sent(), ShouldBeEmpty)
		})

		Convey("Play and Pause should set the pause property, not toggle it", func() {
			So(mpv.Play(), ShouldBeNil)
			So(fake.last(), ShouldResemble, []interface{}{"set_property", "pause", false})

			So(mpv.Pause(), ShouldBeNil)
			So(fake.last(), ShouldResemble, []interface{}{"set_property", "pause", true})
		})

		Convey("SetVolume should clamp out-of-range values", func() {
			So(mpv.SetVolume(150), ShouldBeNil)
			So(fake.last(), ShouldResemble, []interface{}{"set_property", "volume", 100.0})

			So(mpv.SetVolume(-20), ShouldBeNil)
			So(fake.last(), ShouldResemble, []interface{}{"set_property", "volume", 0.0})
		})

		Convey("Seek should clamp the percentage", func() {
			So(mpv.Seek(120), ShouldBeNil)
			So(fake.last(), ShouldResemble, []interface{}{"set_property", "percent-pos", 100.0})
		})
	})
}

func TestMPVStatus(t *testing.T) {
	Convey("Status", t, func() {
		fake := newFakeIPC(t)
		mpv := connected(fake)

		Convey("Should report playing state with position and duration", func() {
			fake.set("idle-active", false)
			fake.set("pause", false)
			fake.set("time-pos", 12.5)
			fake.set("duration", 60.0)
			fake.set("volume", 80.0)
			fake.set("eof-reached", false)

			s, err := mpv.Status()
			So(err, ShouldBeNil)
			So(s.Connection, ShouldEqual, StateConnected)
			So(s.Playback, ShouldEqual, PlaybackPlaying)
			So(s.Position, ShouldEqual, 12.5)
			So(s.Duration, ShouldEqual, 60.0)
			So(s.Volume, ShouldEqual, 80.0)
		})

		Convey("Should report paused state", func() {
			fake.set("idle-active", false)
			fake.set("pause", true)
			fake.set("volume", 80.0)

			s, err := mpv.Status()
			So(err, ShouldBeNil)
			So(s.Playback, ShouldEqual, PlaybackPaused)
		})

		Convey("Should tolerate unavailable properties while idle", func() {
			fake.set("idle-active", true)
			fake.set("volume", 65.0)

			s, err := mpv.Status()
			So(err, ShouldBeNil)
			So(s.Playback, ShouldEqual, PlaybackIdle)
			So(s.IdleActive, ShouldBeTrue)
			So(s.Volume, ShouldEqual, 65.0)
			So(s.Position, ShouldEqual, 0)
			So(s.Duration, ShouldEqual, 0)
		})
	})
}

func TestMPVFaulting(t *testing.T) {
	Convey("Fault breaker", t, func() {
		Convey("Should fault after consecutive failures and reject further ops", func() {
			mpv := &MPV{
				socketPath:  filepath.Join(t.TempDir(), "dead.sock"),
				state:       StateConnected,
				maxFails:    3,
				maxRestarts: 0,
			}

			for i := 0; i < 3; i++ {
				err := mpv.Stop()
				So(err, ShouldNotBeNil)
				So(IsChannelClosed(err), ShouldBeTrue)
			}
			So(mpv.State(), ShouldEqual, StateFaulted)

			err := mpv.Play()
			So(err, ShouldNotBeNil)
			So(IsChannelClosed(err), ShouldBeTrue)
		})

		Convey("A success should reset the failure counter", func() {
			fake := newFakeIPC(t)
			mpv := connected(fake)

			deadPath := filepath.Join(t.TempDir(), "dead.sock")
			mpv.socketPath = deadPath
			So(mpv.Stop(), ShouldNotBeNil)
			So(mpv.Stop(), ShouldNotBeNil)

			mpv.socketPath = fake.path
			So(mpv.Stop(), ShouldBeNil)

			mpv.socketPath = deadPath
			So(mpv.Stop(), ShouldNotBeNil)
			So(mpv.State(), ShouldEqual, StateConnected)
		})
	})
}

func TestSessionMediaFinished(t *testing.T) {
	Convey("Session.MediaFinished", t, func() {
		Convey("Should be true on end-of-file", func() {
			So(Session{EOFReached: true, Playback: PlaybackPlaying}.MediaFinished(), ShouldBeTrue)
		})

		Convey("Should be true when the player dropped back to idle", func() {
			So(Session{IdleActive: true, Playback: PlaybackIdle}.MediaFinished(), ShouldBeTrue)
		})

		Convey("Should be true when position reached duration and playback stopped", func() {
			s := Session{Position: 180, Duration: 180, Playback: PlaybackStopped}
			So(s.MediaFinished(), ShouldBeTrue)
		})

		Convey("Should be false mid-stream", func() {
			s := Session{Position: 30, Duration: 180, Playback: PlaybackPlaying}
			So(s.MediaFinished(), ShouldBeFalse)
		})

		Convey("Should be false when duration is unknown", func() {
			So(Session{Playback: PlaybackPlaying}.MediaFinished(), ShouldBeFalse)
		})
	})
}

func TestSanitizeMediaTarget(t *testing.T) {
	Convey("sanitizeMediaTarget", t, func() {
		Convey("Should accept http and https URLs", func() {
			out, err := sanitizeMediaTarget("https://cdn.example.com/a.m4a")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "https://cdn.example.com/a.m4a")
		})

		Convey("Should reject other schemes", func() {
			_, err := sanitizeMediaTarget("ftp://example.com/a.m4a")
			So(err, ShouldNotBeNil)
		})

		Convey("Should reject empty and flag-like input", func() {
			_, err := sanitizeMediaTarget("  ")
			So(err, ShouldNotBeNil)

			_, err = sanitizeMediaTarget("--ytdl-format=bad")
			So(err, ShouldNotBeNil)
		})

		Convey("Should clean local paths", func() {
			out, err := sanitizeMediaTarget("/music/./a.mp3")
			So(err, ShouldBeNil)
			So(out, ShouldEqual, "/music/a.mp3")
		})
	})
}

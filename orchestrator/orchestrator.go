// Package orchestrator coordinates the queue, the resolution client and
// the player channel: it decides when playback starts and advances, polls
// the player for completion, and emits observer events after every change.
package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/tannoy-player/tannoy/history"
	"github.com/tannoy-player/tannoy/hub"
	"github.com/tannoy-player/tannoy/key"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/player"
	"github.com/tannoy-player/tannoy/queue"
	"github.com/tannoy-player/tannoy/resolver"
)

// ErrBusy rejects a command that arrived while the bounded in-flight
// window for load/advance sequences was already full.
var ErrBusy = errors.New("player is busy, try again")

// ErrNotReady rejects play-now for an item whose resolution failed.
var ErrNotReady = errors.New("item is not playable")

// Resolver is the slice of the resolution client the orchestrator needs.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*resolver.Track, error)
	Search(ctx context.Context, query string, limit int) ([]resolver.Candidate, error)
}

// Broadcaster delivers events to connected observers.
type Broadcaster interface {
	Broadcast(ev hub.Event)
}

// Status is the player status payload surfaced to observers. Playback is
// normalized: it only reads playing/paused while the channel is connected.
type Status struct {
	Connection player.ConnectionState `json:"connection"`
	Playback   player.PlaybackState   `json:"playback"`
	Position   float64                `json:"position"`
	Duration   float64                `json:"duration"`
	Volume     float64                `json:"volume"`
	NowPlaying *queue.Item            `json:"nowPlaying,omitempty"`
	Autoplay   bool                   `json:"autoplay"`
	Error      string                 `json:"error,omitempty"`
}

// Orchestrator is safe for concurrent use by HTTP handlers. Sequences
// that load media (play-now, advance) are serialized; other commands pass
// through to the channel's own lock.
type Orchestrator struct {
	queue   *queue.Store
	channel player.Channel
	res     Resolver
	hub     Broadcaster

	// seqMu serializes load/advance sequences; slots bounds how many may
	// wait on it before new ones are rejected with ErrBusy.
	seqMu sync.Mutex
	slots chan struct{}

	mu         sync.Mutex
	deferredID string // single deferred play-now target
	lastPollID string // now-playing id seen by the previous poll
	prompted   bool   // remediation prompt sent this failure episode

	pollInterval   time.Duration
	resolveTimeout time.Duration
	retainFinished bool
	saveHistory    bool

	stop chan struct{}
	done chan struct{}
}

// New wires an orchestrator from its collaborators and the player config.
func New(store *queue.Store, channel player.Channel, res Resolver, broadcaster Broadcaster) *Orchestrator {
	return &Orchestrator{
		queue:          store,
		channel:        channel,
		res:            res,
		hub:            broadcaster,
		slots:          make(chan struct{}, 2),
		pollInterval:   time.Duration(viper.GetInt(key.PlayerPollIntervalMs)) * time.Millisecond,
		resolveTimeout: time.Duration(viper.GetInt(key.ResolverTimeoutSec)) * time.Second,
		retainFinished: viper.GetBool(key.QueueRetainFinished),
		saveHistory:    viper.GetBool(key.HistorySaveOnFinish),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start connects the player channel and begins status polling. A channel
// that cannot connect yet is not fatal: the poll loop keeps reporting the
// disconnected state and commands surface typed errors.
func (o *Orchestrator) Start() {
	if err := o.channel.Start(); err != nil {
		log.Warnf("player channel not ready at startup: %s", err)
	}
	go o.pollLoop()
}

// Close stops polling and shuts the player channel down.
func (o *Orchestrator) Close() error {
	close(o.stop)
	<-o.done
	return o.channel.Close()
}

// SnapshotEvents builds the full-state snapshot a new observer receives
// before any incremental event.
func (o *Orchestrator) SnapshotEvents() []hub.Event {
	return []hub.Event{
		{Type: hub.EventQueueRefreshed, Payload: o.queue.Snapshot()},
		{Type: hub.EventStatus, Payload: o.currentStatus()},
	}
}

// DebugState dumps queue and player state for the debug endpoint.
func (o *Orchestrator) DebugState() map[string]interface{} {
	o.mu.Lock()
	deferred := o.deferredID
	o.mu.Unlock()

	return map[string]interface{}{
		"queue":           o.queue.Snapshot(),
		"status":          o.currentStatus(),
		"connectionState": o.channel.State(),
		"deferredPlayNow": deferred,
	}
}

func (o *Orchestrator) pollLoop() {
	defer close(o.done)

	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stop:
			return
		case <-ticker.C:
			o.poll()
		}
	}
}

// poll reads player status, broadcasts it, and detects natural
// completion. The advance fires only when the previous poll saw the same
// item loaded, so one finished track advances exactly once.
func (o *Orchestrator) poll() {
	session, err := o.channel.Status()
	current, playing := o.queue.NowPlaying()

	if err != nil {
		o.mu.Lock()
		o.lastPollID = ""
		o.mu.Unlock()
		o.broadcastStatus(idleStatus(o.queue, session.Connection, "player unavailable"))
		return
	}

	status := o.statusFromSession(session)
	o.broadcastStatus(status)

	if !playing {
		o.mu.Lock()
		o.lastPollID = ""
		o.mu.Unlock()
		return
	}

	o.mu.Lock()
	confirmed := o.lastPollID == current.ID
	o.lastPollID = current.ID
	o.mu.Unlock()

	if confirmed && session.MediaFinished() {
		if err := o.finishCurrent(current); err != nil {
			log.Debugf("advance deferred to next poll: %s", err)
		}
	}
}

// finishCurrent retires the finished item and advances to the next Ready
// one if autoplay allows. Also the implementation behind skip.
func (o *Orchestrator) finishCurrent(current queue.Item) error {
	release, err := o.acquire()
	if err != nil {
		// For the poll path the next tick retries; skip callers surface
		// the busy rejection.
		return err
	}
	defer release()

	// Re-check under the sequence lock: another sequence may already have
	// moved past this item.
	nowCurrent, ok := o.queue.NowPlaying()
	if !ok || nowCurrent.ID != current.ID {
		return nil
	}

	if o.saveHistory && current.Track != nil {
		record := &history.PlayedTrack{
			SourceURL: current.SourceURL,
			Title:     current.Track.Title,
			Thumbnail: current.Track.Thumbnail,
			Duration:  current.Track.Duration,
			Source:    current.Track.Source,
		}
		if err := history.Save(record); err != nil {
			log.Warnf("save history for %s: %s", current.ID, err)
		}
	}

	o.queue.ClearNowPlaying()
	if !o.retainFinished {
		if _, err := o.queue.Remove(current.ID); err == nil {
			o.hub.Broadcast(hub.Event{Type: hub.EventItemRemoved, Payload: map[string]string{"id": current.ID}})
		}
	}

	o.mu.Lock()
	o.lastPollID = ""
	o.mu.Unlock()

	next, ok := o.queue.NextReady(current.ID)
	if !ok || !o.queue.Autoplay() {
		o.broadcastStatus(idleStatus(o.queue, o.channel.State(), ""))
		return nil
	}

	o.loadLocked(next)
	return nil
}

// loadLocked loads an item into the player and marks it now-playing.
// Caller must hold the sequence lock. Channel failures surface as an idle
// status event; the orchestrator stays available.
func (o *Orchestrator) loadLocked(item queue.Item) {
	if item.Track == nil || item.Track.StreamURL == "" {
		log.Errorf("item %s has no stream url", item.ID)
		return
	}

	if err := o.queue.SetNowPlaying(item.ID); err != nil {
		// Removed while we were loading; nothing plays.
		return
	}

	if err := o.channel.Load(item.Track.StreamURL); err != nil {
		o.playbackFailed(item, err)
		return
	}
	if err := o.channel.Play(); err != nil {
		o.playbackFailed(item, err)
		return
	}

	o.mu.Lock()
	o.lastPollID = ""
	o.mu.Unlock()

	log.Infof("now playing %s (%s)", item.ID, item.Track.Title)
	o.broadcastStatus(o.currentStatus())
}

func (o *Orchestrator) playbackFailed(item queue.Item, err error) {
	log.Errorf("start playback of %s: %s", item.ID, err)
	o.queue.ClearNowPlaying()
	o.broadcastStatus(idleStatus(o.queue, o.channel.State(), err.Error()))
}

// acquire claims one of the bounded sequence slots and then the sequence
// lock. A full window rejects immediately with ErrBusy instead of
// queueing unboundedly.
func (o *Orchestrator) acquire() (release func(), err error) {
	select {
	case o.slots <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	o.seqMu.Lock()
	return func() {
		o.seqMu.Unlock()
		<-o.slots
	}, nil
}

func (o *Orchestrator) statusFromSession(session player.Session) Status {
	status := Status{
		Connection: session.Connection,
		Playback:   session.Playback,
		Position:   session.Position,
		Duration:   session.Duration,
		Volume:     session.Volume,
		Autoplay:   o.queue.Autoplay(),
	}

	if session.Connection != player.StateConnected {
		status.Playback = player.PlaybackIdle
	}

	if current, ok := o.queue.NowPlaying(); ok {
		status.NowPlaying = &current
	} else if status.Playback == player.PlaybackPlaying || status.Playback == player.PlaybackPaused {
		// The player is doing something we no longer track; normalize.
		status.Playback = player.PlaybackIdle
	}

	return status
}

func (o *Orchestrator) currentStatus() Status {
	session, err := o.channel.Status()
	if err != nil {
		return idleStatus(o.queue, session.Connection, "player unavailable")
	}
	return o.statusFromSession(session)
}

func idleStatus(store *queue.Store, conn player.ConnectionState, reason string) Status {
	return Status{
		Connection: conn,
		Playback:   player.PlaybackIdle,
		Autoplay:   store.Autoplay(),
		Error:      reason,
	}
}

func (o *Orchestrator) broadcastStatus(status Status) {
	o.hub.Broadcast(hub.Event{Type: hub.EventStatus, Payload: status})
}

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/tannoy-player/tannoy/hub"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/player"
	"github.com/tannoy-player/tannoy/queue"
	"github.com/tannoy-player/tannoy/resolver"
)

// Submit appends a pending item for the URL and resolves it in the
// background. The returned item carries the assigned id; observers learn
// about state changes through fan-out events.
func (o *Orchestrator) Submit(sourceURL string) (queue.Item, error) {
	if sourceURL == "" {
		return queue.Item{}, fmt.Errorf("empty url")
	}

	item := o.queue.Append(sourceURL)
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueUpdate, Payload: item})

	go o.resolveItem(item.ID, sourceURL)
	return item, nil
}

// resolveItem runs one background resolution and applies the outcome. A
// result for an item that was removed in the meantime is discarded.
func (o *Orchestrator) resolveItem(id, sourceURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), o.resolveTimeout)
	defer cancel()

	track, err := o.res.Resolve(ctx, sourceURL)
	if err != nil {
		if failed, failErr := o.queue.Fail(id); failErr == nil {
			o.hub.Broadcast(hub.Event{Type: hub.EventQueueUpdate, Payload: failed})
		}
		o.clearDeferred(id)
		o.maybePromptRemediation(err)
		return
	}

	item, err := o.queue.Resolve(id, &queue.Track{
		Title:     track.Title,
		Thumbnail: track.Thumbnail,
		Duration:  track.Duration,
		StreamURL: track.AudioURL,
		Source:    track.Source,
	})
	if err != nil {
		// Removed before resolution finished; discard the result.
		o.clearDeferred(id)
		return
	}

	o.endFailureEpisode()
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueUpdate, Payload: item})

	if o.takeDeferred(id) {
		if err := o.playNow(item.ID); err != nil {
			log.Warnf("deferred play-now for %s: %s", item.ID, err)
		}
		return
	}

	if _, playing := o.queue.NowPlaying(); !playing && o.queue.Autoplay() {
		if err := o.playNow(item.ID); err != nil {
			log.Warnf("autoplay start for %s: %s", item.ID, err)
		}
	}
}

// Search proxies a text search through the resolution client, routing
// auth-suspected failures into the remediation prompt flow.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int) ([]resolver.Candidate, error) {
	candidates, err := o.res.Search(ctx, query, limit)
	if err != nil {
		o.maybePromptRemediation(err)
		return nil, err
	}
	o.endFailureEpisode()
	return candidates, nil
}

// PlayNow starts the item immediately if it is Ready. A Pending item
// parks in the single deferred slot; a newer play-now request replaces an
// older deferred target.
func (o *Orchestrator) PlayNow(id string) error {
	item, ok := o.queue.Get(id)
	if !ok {
		return queue.ErrNotFound
	}

	switch item.State {
	case queue.StateReady:
		o.clearDeferredSlot()
		return o.playNow(id)
	case queue.StatePending:
		o.mu.Lock()
		o.deferredID = id
		o.mu.Unlock()

		// Resolution may have completed between the state read and the
		// slot being armed; resolveItem would then never see the slot.
		// Re-check and run the ready path ourselves if the slot is
		// still ours.
		again, rechecked := o.queue.Get(id)
		if !rechecked || again.State == queue.StateFailed {
			o.mu.Lock()
			if o.deferredID == id {
				o.deferredID = ""
			}
			o.mu.Unlock()
			return nil
		}
		if again.State == queue.StateReady {
			claimed := false
			o.mu.Lock()
			if o.deferredID == id {
				o.deferredID = ""
				claimed = true
			}
			o.mu.Unlock()
			if claimed {
				return o.playNow(id)
			}
		}
		return nil
	default:
		return ErrNotReady
	}
}

// playNow is the guarded load sequence for an explicit start: the item
// moves to the front of the queue and begins playing.
func (o *Orchestrator) playNow(id string) error {
	release, err := o.acquire()
	if err != nil {
		return err
	}
	defer release()

	item, ok := o.queue.Get(id)
	if !ok {
		return queue.ErrNotFound
	}
	if item.State != queue.StateReady {
		return ErrNotReady
	}

	if err := o.queue.PromoteToFront(id); err != nil {
		return err
	}
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueRefreshed, Payload: o.queue.Snapshot()})

	o.loadLocked(item)
	return nil
}

// Control dispatches a transport action: playpause, stop or skip.
func (o *Orchestrator) Control(action string) error {
	switch action {
	case "playpause":
		return o.channel.TogglePause()
	case "stop":
		if err := o.channel.Stop(); err != nil && !isExpectedWhenIdle(err) {
			return err
		}
		o.queue.ClearNowPlaying()
		o.mu.Lock()
		o.lastPollID = ""
		o.mu.Unlock()
		o.broadcastStatus(idleStatus(o.queue, o.channel.State(), ""))
		return nil
	case "skip":
		current, ok := o.queue.NowPlaying()
		if !ok {
			return nil
		}
		return o.finishCurrent(current)
	default:
		return fmt.Errorf("unknown control action %q", action)
	}
}

// SetVolume passes through to the player.
func (o *Orchestrator) SetVolume(volume float64) error {
	return o.channel.SetVolume(volume)
}

// Seek passes through to the player as a duration percentage.
func (o *Orchestrator) Seek(percent float64) error {
	return o.channel.Seek(percent)
}

// Remove deletes an item. Removing the item that is currently playing
// stops playback.
func (o *Orchestrator) Remove(id string) error {
	wasCurrent, err := o.queue.Remove(id)
	if err != nil {
		return err
	}
	o.clearDeferred(id)

	o.hub.Broadcast(hub.Event{Type: hub.EventItemRemoved, Payload: map[string]string{"id": id}})

	if wasCurrent {
		if err := o.channel.Stop(); err != nil && !isExpectedWhenIdle(err) {
			log.Warnf("stop after removing current item: %s", err)
		}
		o.mu.Lock()
		o.lastPollID = ""
		o.mu.Unlock()
		o.broadcastStatus(idleStatus(o.queue, o.channel.State(), ""))
	}
	return nil
}

// Clear empties the queue and stops playback.
func (o *Orchestrator) Clear() error {
	_, hadCurrent := o.queue.NowPlaying()
	o.queue.Clear()
	o.clearDeferredSlot()

	o.hub.Broadcast(hub.Event{Type: hub.EventQueueCleared})

	if hadCurrent {
		if err := o.channel.Stop(); err != nil && !isExpectedWhenIdle(err) {
			log.Warnf("stop after clearing queue: %s", err)
		}
	}
	o.mu.Lock()
	o.lastPollID = ""
	o.mu.Unlock()
	o.broadcastStatus(idleStatus(o.queue, o.channel.State(), ""))
	return nil
}

// MoveUp swaps an item with its predecessor.
func (o *Orchestrator) MoveUp(id string) error {
	if err := o.queue.MoveUp(id); err != nil {
		return err
	}
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueRefreshed, Payload: o.queue.Snapshot()})
	return nil
}

// MoveDown swaps an item with its successor.
func (o *Orchestrator) MoveDown(id string) error {
	if err := o.queue.MoveDown(id); err != nil {
		return err
	}
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueRefreshed, Payload: o.queue.Snapshot()})
	return nil
}

// Reorder relocates one item between two positions.
func (o *Orchestrator) Reorder(oldIndex, newIndex int) error {
	if err := o.queue.Reorder(oldIndex, newIndex); err != nil {
		return err
	}
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueRefreshed, Payload: o.queue.Snapshot()})
	return nil
}

// Shuffle randomizes the queue, keeping the playing item first.
func (o *Orchestrator) Shuffle() {
	o.queue.Shuffle()
	o.hub.Broadcast(hub.Event{Type: hub.EventQueueRefreshed, Payload: o.queue.Snapshot()})
}

// ToggleAutoplay flips the autoplay flag and returns the new value.
func (o *Orchestrator) ToggleAutoplay() bool {
	enabled := o.queue.ToggleAutoplay()
	o.hub.Broadcast(hub.Event{Type: hub.EventAutoplayToggled, Payload: enabled})
	return enabled
}

// Autoplay returns the current autoplay flag.
func (o *Orchestrator) Autoplay() bool {
	return o.queue.Autoplay()
}

// Queue returns the current queue snapshot.
func (o *Orchestrator) Queue() queue.Snapshot {
	return o.queue.Snapshot()
}

// maybePromptRemediation emits at most one remediation prompt per failure
// episode, so a playlist of doomed submissions does not storm the UI.
func (o *Orchestrator) maybePromptRemediation(err error) {
	var resErr *resolver.Error
	if !errors.As(err, &resErr) || !resErr.AuthSuspected {
		return
	}

	o.mu.Lock()
	already := o.prompted
	o.prompted = true
	o.mu.Unlock()

	if already {
		return
	}
	o.hub.Broadcast(hub.Event{
		Type:    hub.EventRemediationPrompt,
		Payload: map[string]string{"reason": string(resErr.Reason)},
	})
}

// endFailureEpisode re-arms the remediation prompt after a success.
func (o *Orchestrator) endFailureEpisode() {
	o.mu.Lock()
	o.prompted = false
	o.mu.Unlock()
}

// takeDeferred consumes the deferred play-now slot when it targets id.
func (o *Orchestrator) takeDeferred(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.deferredID == id {
		o.deferredID = ""
		return true
	}
	return false
}

// clearDeferred drops the deferred slot if it targets id.
func (o *Orchestrator) clearDeferred(id string) {
	o.mu.Lock()
	if o.deferredID == id {
		o.deferredID = ""
	}
	o.mu.Unlock()
}

func (o *Orchestrator) clearDeferredSlot() {
	o.mu.Lock()
	o.deferredID = ""
	o.mu.Unlock()
}

// isExpectedWhenIdle filters stop failures that only mean nothing was
// loaded in the first place.
func isExpectedWhenIdle(err error) bool {
	return player.IsProtocol(err)
}

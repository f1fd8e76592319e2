// Package hub fans orchestrator events out to connected websocket
// observers. Observers get a full state snapshot on connect, before any
// incremental event, so a fresh page never renders from a partial view.
package hub

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tannoy-player/tannoy/log"
)

// EventType names a fan-out event.
type EventType string

const (
	EventStatus            EventType = "status"
	EventQueueUpdate       EventType = "queue_update"
	EventQueueCleared      EventType = "queue_cleared"
	EventItemRemoved       EventType = "item_removed"
	EventQueueRefreshed    EventType = "queue_refreshed"
	EventAutoplayToggled   EventType = "autoplay_toggled"
	EventRemediationPrompt EventType = "remediation_prompt"
)

// Event is one message pushed to observers.
type Event struct {
	Type    EventType   `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Upgrader is shared with the HTTP layer. The service is personal and
// LAN-facing, so cross-origin websocket upgrades are accepted.
var Upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	writeDeadline = 10 * time.Second
	sendBuffer    = 32
)

// observer is one connected websocket client. A single writer goroutine
// drains out; gorilla connections do not allow concurrent writers.
type observer struct {
	conn *websocket.Conn
	out  chan []byte
}

// Hub is the observer registry. Events broadcast while holding the
// registry lock are delivered to every observer's buffer in the order
// they were committed.
type Hub struct {
	mu        sync.Mutex
	observers map[*observer]struct{}
}

func New() *Hub {
	return &Hub{observers: map[*observer]struct{}{}}
}

// Register adds a connected websocket and queues the snapshot events
// ahead of any broadcast the observer will see. The snapshot function is
// evaluated while holding the registry lock so its capture serializes
// with broadcasts: nothing can be committed and broadcast between the
// snapshot and the observer joining the set. The hub owns the connection
// from here on.
func (h *Hub) Register(conn *websocket.Conn, snapshot func() []Event) {
	ob := &observer{
		conn: conn,
		out:  make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if snapshot != nil {
		for _, ev := range snapshot() {
			// Buffer is empty at this point, enqueue cannot fail.
			ob.enqueue(ev)
		}
	}
	h.observers[ob] = struct{}{}
	h.mu.Unlock()

	go ob.writePump()
	go h.readPump(ob)

	log.Infof("observer connected (%d total)", h.Count())
}

// Broadcast pushes one event to every connected observer. Observers that
// cannot keep up are disconnected; they recover by reconnecting, which
// hands them a fresh snapshot.
func (h *Hub) Broadcast(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("marshal %s event: %s", ev.Type, err)
		return
	}

	h.mu.Lock()
	var stalled []*observer
	for ob := range h.observers {
		select {
		case ob.out <- payload:
		default:
			stalled = append(stalled, ob)
		}
	}
	for _, ob := range stalled {
		delete(h.observers, ob)
		close(ob.out)
	}
	h.mu.Unlock()

	for range stalled {
		log.Warnf("dropping stalled observer")
	}
}

// Count returns the number of connected observers.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.observers)
}

// Close disconnects every observer.
func (h *Hub) Close() {
	h.mu.Lock()
	for ob := range h.observers {
		delete(h.observers, ob)
		close(ob.out)
	}
	h.mu.Unlock()
}

func (h *Hub) remove(ob *observer) {
	h.mu.Lock()
	if _, ok := h.observers[ob]; ok {
		delete(h.observers, ob)
		close(ob.out)
	}
	h.mu.Unlock()
}

// readPump discards inbound frames; the command surface is HTTP. Its job
// is noticing the peer going away.
func (h *Hub) readPump(ob *observer) {
	for {
		if _, _, err := ob.conn.ReadMessage(); err != nil {
			break
		}
	}
	h.remove(ob)
}

// enqueue must only be called with room in the buffer or under the hub
// lock during registration.
func (ob *observer) enqueue(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("marshal %s event: %s", ev.Type, err)
		return
	}
	select {
	case ob.out <- payload:
	default:
	}
}

func (ob *observer) writePump() {
	defer ob.conn.Close()
	for payload := range ob.out {
		_ = ob.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := ob.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
	_ = ob.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}
// Package server exposes the HTTP command surface and the websocket
// observer endpoint over the playback orchestrator.
package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tannoy-player/tannoy/hub"
	"github.com/tannoy-player/tannoy/log"
	"github.com/tannoy-player/tannoy/orchestrator"
	"github.com/tannoy-player/tannoy/query"
	"github.com/tannoy-player/tannoy/queue"
	"github.com/tannoy-player/tannoy/resolver"
)

// API handles the HTTP control endpoints.
type API struct {
	orch *orchestrator.Orchestrator
	hub  *hub.Hub
}

// NewAPI creates the API handler set.
func NewAPI(orch *orchestrator.Orchestrator, h *hub.Hub) *API {
	return &API{orch: orch, hub: h}
}

// WebSocket upgrades the connection and registers it as an observer. The
// full state snapshot is queued before any incremental event.
func (a *API) WebSocket(c *gin.Context) {
	conn, err := hub.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warnf("websocket upgrade: %s", err)
		return
	}
	a.hub.Register(conn, a.orch.SnapshotEvents)
}

// SubmitRequest is the request body for the submit endpoint.
type SubmitRequest struct {
	URL string `json:"url" binding:"required"`
}

// SearchRequest is the request body for the search endpoint.
type SearchRequest struct {
	Query string `json:"query" binding:"required"`
	Limit int    `json:"limit"`
}

// ControlRequest is the request body for the transport endpoint.
type ControlRequest struct {
	Action string `json:"action" binding:"required"`
}

// VolumeRequest is the request body for the volume endpoint.
type VolumeRequest struct {
	Volume float64 `json:"volume"`
}

// SeekRequest is the request body for the seek endpoint; Position is a
// percentage of the track duration.
type SeekRequest struct {
	Position float64 `json:"position"`
}

// ItemRequest addresses one queue item by id.
type ItemRequest struct {
	ID string `json:"id" binding:"required"`
}

// ReorderRequest is the request body for the reorder endpoint.
type ReorderRequest struct {
	OldIndex int `json:"oldIndex"`
	NewIndex int `json:"newIndex"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Submit queues a URL for resolution and playback.
func (a *API) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "url is required"})
		return
	}

	item, err := a.orch.Submit(req.URL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "queued", "item": item})
}

// Search runs a text search against the resolution service.
func (a *API) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "query is required"})
		return
	}

	candidates, err := a.orch.Search(c.Request.Context(), req.Query, req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := query.Remember(req.Query, 1); err != nil {
		log.Warnf("remember query %q: %s", req.Query, err)
	}

	if candidates == nil {
		candidates = []resolver.Candidate{}
	}
	c.JSON(http.StatusOK, gin.H{"query": req.Query, "results": candidates})
}

// SearchSuggestions returns ranked historical queries for a partial input.
func (a *API) SearchSuggestions(c *gin.Context) {
	q := c.Query("q")
	if q == "" {
		c.JSON(http.StatusOK, gin.H{"suggestions": []string{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": query.SuggestMany(q)})
}

// Control dispatches playpause, stop or skip.
func (a *API) Control(c *gin.Context) {
	var req ControlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "action is required"})
		return
	}

	switch req.Action {
	case "playpause", "stop", "skip":
	default:
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unknown action"})
		return
	}

	if err := a.orch.Control(req.Action); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Volume sets the playback volume.
func (a *API) Volume(c *gin.Context) {
	var req VolumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	if err := a.orch.SetVolume(req.Volume); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Seek jumps to a position within the current track.
func (a *API) Seek(c *gin.Context) {
	var req SeekRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	if err := a.orch.Seek(req.Position); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// PlayNow starts a queued item immediately.
func (a *API) PlayNow(c *gin.Context) {
	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id is required"})
		return
	}

	if err := a.orch.PlayNow(req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RemoveItem deletes one queue item.
func (a *API) RemoveItem(c *gin.Context) {
	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id is required"})
		return
	}

	if err := a.orch.Remove(req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ClearQueue empties the queue.
func (a *API) ClearQueue(c *gin.Context) {
	if err := a.orch.Clear(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ShuffleQueue randomizes the queue order.
func (a *API) ShuffleQueue(c *gin.Context) {
	a.orch.Shuffle()
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// MoveUp swaps an item with its predecessor.
func (a *API) MoveUp(c *gin.Context) {
	a.move(c, a.orch.MoveUp)
}

// MoveDown swaps an item with its successor.
func (a *API) MoveDown(c *gin.Context) {
	a.move(c, a.orch.MoveDown)
}

func (a *API) move(c *gin.Context, op func(string) error) {
	var req ItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "id is required"})
		return
	}

	if err := op(req.ID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ReorderQueue relocates one item between two positions.
func (a *API) ReorderQueue(c *gin.Context) {
	var req ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	if err := a.orch.Reorder(req.OldIndex, req.NewIndex); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ToggleAutoplay flips the autoplay flag.
func (a *API) ToggleAutoplay(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"autoplay": a.orch.ToggleAutoplay()})
}

// AutoplayStatus reports the autoplay flag.
func (a *API) AutoplayStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"autoplay": a.orch.Autoplay()})
}

// Queue returns the current queue snapshot.
func (a *API) Queue(c *gin.Context) {
	c.JSON(http.StatusOK, a.orch.Queue())
}

// DebugState dumps internal state for troubleshooting.
func (a *API) DebugState(c *gin.Context) {
	c.JSON(http.StatusOK, a.orch.DebugState())
}

// respondError maps typed domain failures onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var resErr *resolver.Error
	switch {
	case errors.Is(err, queue.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, queue.ErrInvalidPosition):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, orchestrator.ErrNotReady):
		status = http.StatusConflict
	case errors.As(err, &resErr):
		status = http.StatusBadGateway
	}

	c.JSON(status, ErrorResponse{Error: err.Error()})
}

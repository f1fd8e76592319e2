package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/tannoy-player/tannoy/config"
	"github.com/tannoy-player/tannoy/filesystem"
	"github.com/tannoy-player/tannoy/hub"
	"github.com/tannoy-player/tannoy/orchestrator"
	"github.com/tannoy-player/tannoy/player"
	"github.com/tannoy-player/tannoy/queue"
	"github.com/tannoy-player/tannoy/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
	filesystem.SetMemMapFs()
	lo.Must0(config.Setup())
}

// stubChannel accepts every transport command without a player process.
type stubChannel struct {
	session player.Session
}

func newStubChannel() *stubChannel {
	return &stubChannel{
		session: player.Session{
			Connection: player.StateConnected,
			Playback:   player.PlaybackIdle,
			IdleActive: true,
			Volume:     80,
		},
	}
}

func (s *stubChannel) Start() error                        { return nil }
func (s *stubChannel) Load(string) error                   { return nil }
func (s *stubChannel) Play() error                         { return nil }
func (s *stubChannel) Pause() error                        { return nil }
func (s *stubChannel) TogglePause() error                  { return nil }
func (s *stubChannel) Stop() error                         { return nil }
func (s *stubChannel) Seek(float64) error                  { return nil }
func (s *stubChannel) SetVolume(float64) error             { return nil }
func (s *stubChannel) Status() (player.Session, error)     { return s.session, nil }
func (s *stubChannel) State() player.ConnectionState       { return player.StateConnected }
func (s *stubChannel) Close() error                        { return nil }

// stubResolver answers instantly without a network.
type stubResolver struct {
	err error
}

func (s *stubResolver) Resolve(_ context.Context, url string) (*resolver.Track, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &resolver.Track{
		Title:    "stub track",
		AudioURL: "https://cdn.example.com/stub.m4a",
		Duration: 120,
		Source:   url,
	}, nil
}

func (s *stubResolver) Search(context.Context, string, int) ([]resolver.Candidate, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []resolver.Candidate{
		{ID: "v1", URL: "https://yt/v1", Title: "first", Duration: 100},
		{ID: "v2", URL: "https://yt/v2", Title: "second", Duration: 200},
	}, nil
}

func setupTestRouter(res orchestrator.Resolver) (*gin.Engine, *orchestrator.Orchestrator) {
	store := queue.NewStore(true)
	observers := hub.New()
	orch := orchestrator.New(store, newStubChannel(), res, observers)
	return SetupRouter(NewAPI(orch, observers)), orch
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func waitForReadyItems(orch *orchestrator.Orchestrator, want int) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ready := 0
		for _, item := range orch.Queue().Items {
			if item.State == queue.StateReady {
				ready++
			}
		}
		if ready >= want {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{})

	w := doJSON(router, "GET", "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestSubmitEndpoint(t *testing.T) {
	router, orch := setupTestRouter(&stubResolver{})

	w := doJSON(router, "POST", "/submit", `{"url": "https://youtube.com/watch?v=test"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Status string     `json:"status"`
		Item   queue.Item `json:"item"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if resp.Status != "queued" {
		t.Errorf("expected status queued, got %s", resp.Status)
	}
	if resp.Item.ID == "" {
		t.Error("expected an assigned item id")
	}

	if !waitForReadyItems(orch, 1) {
		t.Error("item never became ready")
	}
}

func TestSubmitEndpoint_MissingURL(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{})

	w := doJSON(router, "POST", "/submit", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{})

	w := doJSON(router, "POST", "/search", `{"query": "some song"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var resp struct {
		Query   string               `json:"query"`
		Results []resolver.Candidate `json:"results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	if len(resp.Results) != 2 {
		t.Errorf("expected 2 results, got %d", len(resp.Results))
	}
}

func TestSearchEndpoint_UpstreamFailure(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{
		err: &resolver.Error{Reason: resolver.ReasonUpstream},
	})

	w := doJSON(router, "POST", "/search", `{"query": "some song"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}

func TestControlEndpoint(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{})

	for _, action := range []string{"playpause", "stop", "skip"} {
		w := doJSON(router, "POST", "/control", `{"action": "`+action+`"}`)
		if w.Code != http.StatusOK {
			t.Errorf("action %s: expected status 200, got %d", action, w.Code)
		}
	}

	w := doJSON(router, "POST", "/control", `{"action": "rewind"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unknown action, got %d", w.Code)
	}
}

func TestQueueMutationEndpoints(t *testing.T) {
	router, orch := setupTestRouter(&stubResolver{})

	doJSON(router, "POST", "/submit", `{"url": "https://yt/w1"}`)
	doJSON(router, "POST", "/submit", `{"url": "https://yt/w2"}`)
	if !waitForReadyItems(orch, 2) {
		t.Fatal("items never became ready")
	}

	items := orch.Queue().Items
	last := items[len(items)-1]

	// Boundary moves are no-ops, not errors.
	if w := doJSON(router, "POST", "/move-down", `{"id": "`+last.ID+`"}`); w.Code != http.StatusOK {
		t.Errorf("move-down at tail: expected 200, got %d", w.Code)
	}
	if w := doJSON(router, "POST", "/move-up", `{"id": "`+last.ID+`"}`); w.Code != http.StatusOK {
		t.Errorf("move-up: expected 200, got %d", w.Code)
	}

	if w := doJSON(router, "POST", "/remove-item", `{"id": "absent"}`); w.Code != http.StatusNotFound {
		t.Errorf("remove unknown: expected 404, got %d", w.Code)
	}
	if w := doJSON(router, "POST", "/play-now", `{"id": "absent"}`); w.Code != http.StatusNotFound {
		t.Errorf("play-now unknown: expected 404, got %d", w.Code)
	}
	if w := doJSON(router, "POST", "/reorder-queue", `{"oldIndex": 0, "newIndex": 9}`); w.Code != http.StatusBadRequest {
		t.Errorf("reorder out of range: expected 400, got %d", w.Code)
	}

	if w := doJSON(router, "POST", "/shuffle-queue", ""); w.Code != http.StatusOK {
		t.Errorf("shuffle: expected 200, got %d", w.Code)
	}
	if w := doJSON(router, "POST", "/clear-queue", ""); w.Code != http.StatusOK {
		t.Errorf("clear: expected 200, got %d", w.Code)
	}
	if got := len(orch.Queue().Items); got != 0 {
		t.Errorf("expected empty queue after clear, got %d items", got)
	}
}

func TestAutoplayEndpoints(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{})

	w := doJSON(router, "GET", "/autoplay-status", "")
	var status struct {
		Autoplay bool `json:"autoplay"`
	}
	json.Unmarshal(w.Body.Bytes(), &status)
	if !status.Autoplay {
		t.Error("expected autoplay enabled by default")
	}

	w = doJSON(router, "POST", "/toggle-autoplay", "")
	json.Unmarshal(w.Body.Bytes(), &status)
	if status.Autoplay {
		t.Error("expected autoplay disabled after toggle")
	}
}

func TestWebSocketSnapshot(t *testing.T) {
	router, orch := setupTestRouter(&stubResolver{})

	doJSON(router, "POST", "/submit", `{"url": "https://yt/w1"}`)
	if !waitForReadyItems(orch, 1) {
		t.Fatal("item never became ready")
	}

	srv := httptest.NewServer(router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %s", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first, second hub.Event
	if _, payload, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read first event: %s", err)
	} else {
		json.Unmarshal(payload, &first)
	}
	if _, payload, err := conn.ReadMessage(); err != nil {
		t.Fatalf("read second event: %s", err)
	} else {
		json.Unmarshal(payload, &second)
	}

	if first.Type != hub.EventQueueRefreshed {
		t.Errorf("expected queue_refreshed first, got %s", first.Type)
	}
	if second.Type != hub.EventStatus {
		t.Errorf("expected status second, got %s", second.Type)
	}
}

func TestDebugStateEndpoint(t *testing.T) {
	router, _ := setupTestRouter(&stubResolver{})

	w := doJSON(router, "GET", "/debug-state", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var state map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatalf("unmarshal: %s", err)
	}
	for _, field := range []string{"queue", "status", "connectionState"} {
		if _, ok := state[field]; !ok {
			t.Errorf("debug state missing %q", field)
		}
	}
}

package controllers

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"walk_tracker/internal/middleware"
	"walk_tracker/internal/tracking"
)

type fakeStateSource struct {
	mu       sync.Mutex
	ch       chan tracking.State
	canceled bool
}

func newFakeStateSource() *fakeStateSource {
	return &fakeStateSource{ch: make(chan tracking.State, 8)}
}

func (f *fakeStateSource) Subscribe() (<-chan tracking.State, func()) {
	return f.ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.canceled {
			f.canceled = true
			close(f.ch)
		}
	}
}

type recordingPusher struct {
	mu     sync.Mutex
	fixes  []tracking.LocationFix
	accept bool
}

func (p *recordingPusher) Push(fix tracking.LocationFix) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fixes = append(p.fixes, fix)
	return p.accept
}

type recordingSteps struct {
	mu    sync.Mutex
	total int
}

func (s *recordingSteps) Record(_ time.Time, steps int) {
	s.mu.Lock()
	s.total += steps
	s.mu.Unlock()
}

func newStreamServer(t *testing.T, source *fakeStateSource, fixes *recordingPusher, steps *recordingSteps) (*httptest.Server, *middleware.Auth) {
	t.Helper()
	auth := middleware.NewAuth("ws-secret", time.Hour)
	hub := NewStateHub(source)
	t.Cleanup(hub.Close)

	ctrl := NewStreamController(hub, fixes, steps, auth)
	r := gin.New()
	r.GET("/ws/state", ctrl.HandleStateStream)
	r.GET("/ws/fixes", ctrl.HandleFixStream)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, auth
}

func wsURL(srv *httptest.Server, path, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path + "?token=" + token
}

func TestStreamRejectsMissingToken(t *testing.T) {
	srv, _ := newStreamServer(t, newFakeStateSource(), &recordingPusher{}, &recordingSteps{})

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/state", ""), nil)
	if err == nil {
		t.Fatalf("expected handshake to fail without token")
	}
	if resp == nil || resp.StatusCode != 401 {
		t.Fatalf("expected 401, got %v", resp)
	}
}

func TestStateStreamPushesChanges(t *testing.T) {
	source := newFakeStateSource()
	srv, auth := newStreamServer(t, source, &recordingPusher{}, &recordingSteps{})
	token, _ := auth.GenerateToken("watch-1")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/state", token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first map[string]any
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read primed state: %v", err)
	}
	if first["phase"] != "idle" {
		t.Fatalf("expected idle primed state, got %v", first)
	}

	source.ch <- tracking.State{Phase: tracking.PhaseActive}
	var next map[string]any
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read update: %v", err)
	}
	if next["phase"] != "active" {
		t.Fatalf("expected active update, got %v", next)
	}
}

func TestFixStreamAcknowledgesMessages(t *testing.T) {
	fixes := &recordingPusher{accept: true}
	steps := &recordingSteps{}
	srv, auth := newStreamServer(t, newFakeStateSource(), fixes, steps)
	token, _ := auth.GenerateToken("watch-1")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/ws/fixes", token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	cases := []struct {
		msg    string
		status string
	}{
		{`{"type": "fix", "latitude": 31.7767, "longitude": 35.2345, "accuracy": 4}`, "forwarded"},
		{`{"type": "steps", "steps": 40}`, "recorded"},
		{`{"type": "heartbeat"}`, "error"},
		{`not json`, "error"},
	}
	for _, tc := range cases {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(tc.msg)); err != nil {
			t.Fatalf("write %s: %v", tc.msg, err)
		}
		var ack map[string]any
		if err := conn.ReadJSON(&ack); err != nil {
			t.Fatalf("read ack: %v", err)
		}
		if ack["status"] != tc.status {
			t.Fatalf("%s: expected %s, got %v", tc.msg, tc.status, ack)
		}
	}

	fixes.mu.Lock()
	defer fixes.mu.Unlock()
	if len(fixes.fixes) != 1 || fixes.fixes[0].HorizontalAccuracy != 4 || fixes.fixes[0].Timestamp.IsZero() {
		t.Fatalf("unexpected forwarded fixes %+v", fixes.fixes)
	}
	if steps.total != 40 {
		t.Fatalf("expected 40 steps recorded, got %d", steps.total)
	}
}

func TestStateHubClosesClientsWhenSourceEnds(t *testing.T) {
	source := newFakeStateSource()
	hub := NewStateHub(source)
	client := hub.RegisterClient()

	if st := <-client.send; st.Phase != tracking.PhaseIdle {
		t.Fatalf("expected primed idle state, got %v", st.Phase)
	}
	hub.Close()

	select {
	case _, ok := <-client.send:
		if ok {
			t.Fatalf("expected client channel closed")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("client channel not closed after hub close")
	}

	late := hub.RegisterClient()
	if _, ok := <-late.send; ok {
		t.Fatalf("expected clients registered after close to be closed")
	}
}

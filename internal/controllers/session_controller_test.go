package controllers

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"walk_tracker/internal/location"
	"walk_tracker/internal/stepfeed"
	"walk_tracker/internal/tracking"
)

type sessionHarness struct {
	router  *gin.Engine
	machine *tracking.Machine
	store   *memoryPersistence
	relay   *location.Relay
}

func newSessionHarness(t *testing.T) *sessionHarness {
	t.Helper()
	store := &memoryPersistence{}
	relay := location.NewRelay(nil)
	counter := stepfeed.NewCounter(nil, 0)
	machine, err := tracking.New(context.Background(), tracking.Deps{
		Persistence: store,
		Fixes:       relay,
		Steps:       counter,
	}, tracking.Options{})
	if err != nil {
		t.Fatalf("new machine: %v", err)
	}
	t.Cleanup(func() { machine.Close() })

	ctrl := NewSessionController(machine, relay, counter)
	r := gin.New()
	r.GET("/session", ctrl.GetState)
	r.POST("/session/start", ctrl.Start)
	r.POST("/session/pause", ctrl.Pause)
	r.POST("/session/resume", ctrl.Resume)
	r.POST("/session/stop", ctrl.Stop)
	r.POST("/session/cancel", ctrl.Cancel)
	r.POST("/session/fixes", ctrl.PostFixes)
	r.POST("/session/steps", ctrl.PostSteps)
	r.POST("/session/media", ctrl.AttachMedia)
	return &sessionHarness{router: r, machine: machine, store: store, relay: relay}
}

// barrier waits until every event queued so far has been applied: the
// rejected start travels through the same queue as fixes and steps.
func (h *sessionHarness) barrier(t *testing.T) {
	t.Helper()
	if w := perform(h.router, http.MethodPost, "/session/start", nil); w.Code != http.StatusConflict {
		t.Fatalf("barrier expected 409, got %d", w.Code)
	}
}

func TestSessionControllerLifecycle(t *testing.T) {
	h := newSessionHarness(t)

	w := perform(h.router, http.MethodPost, "/session/start", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if phase := decode(t, w)["phase"]; phase != "active" {
		t.Fatalf("expected active phase, got %v", phase)
	}

	fixes := `[
		{"latitude": 31.7767, "longitude": 35.2345, "altitude": 800, "accuracy": 5, "timestamp": "2026-05-01T08:00:00"},
		{"latitude": 31.7777, "longitude": 35.2345, "altitude": 805, "accuracy": 5, "timestamp": 1777622410},
		{"latitude": 31.7787, "longitude": 35.2345, "altitude": 805, "accuracy": 80}
	]`
	w = perform(h.router, http.MethodPost, "/session/fixes", fixes)
	if w.Code != http.StatusAccepted {
		t.Fatalf("fixes: expected 202, got %d: %s", w.Code, w.Body.String())
	}
	body := decode(t, w)
	if body["received"] != float64(3) || body["forwarded"] != float64(3) {
		t.Fatalf("expected 3 received and forwarded, got %v", body)
	}

	if w = perform(h.router, http.MethodPost, "/session/steps", `{"steps": 120}`); w.Code != http.StatusAccepted {
		t.Fatalf("steps: expected 202, got %d", w.Code)
	}
	h.barrier(t)

	state := h.machine.State()
	if len(state.Metrics.Route) != 2 {
		t.Fatalf("expected the inaccurate fix filtered, route has %d points", len(state.Metrics.Route))
	}
	if state.Metrics.StepCount != 120 {
		t.Fatalf("expected 120 steps, got %d", state.Metrics.StepCount)
	}

	if w = perform(h.router, http.MethodPost, "/session/pause", nil); w.Code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", w.Code)
	}
	w = perform(h.router, http.MethodPost, "/session/fixes", `[{"latitude": 1, "longitude": 1, "accuracy": 5}]`)
	if decode(t, w)["forwarded"] != float64(0) {
		t.Fatalf("expected fixes dropped while paused, got %s", w.Body.String())
	}

	if w = perform(h.router, http.MethodPost, "/session/resume", nil); w.Code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = perform(h.router, http.MethodPost, "/session/stop", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body = decode(t, w)
	if body["phase"] != "finished" || body["record"] == nil {
		t.Fatalf("expected finished state with record, got %v", body)
	}
	if history, _ := h.store.LoadHistory(context.Background()); len(history) != 1 {
		t.Fatalf("expected one saved walk, got %d", len(history))
	}
	if h.relay.Running() {
		t.Fatalf("expected location relay stopped after finish")
	}
}

func TestSessionControllerRejectsInvalidCommands(t *testing.T) {
	h := newSessionHarness(t)

	if w := perform(h.router, http.MethodPost, "/session/pause", nil); w.Code != http.StatusConflict {
		t.Fatalf("pause while idle: expected 409, got %d", w.Code)
	}

	perform(h.router, http.MethodPost, "/session/start", nil)
	w := perform(h.router, http.MethodPost, "/session/start", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("double start: expected 409, got %d", w.Code)
	}
	if state, ok := decode(t, w)["state"].(map[string]any); !ok || state["phase"] != "active" {
		t.Fatalf("expected current state in the error body, got %s", w.Body.String())
	}
}

func TestSessionControllerStopFailureKeepsSession(t *testing.T) {
	h := newSessionHarness(t)
	perform(h.router, http.MethodPost, "/session/start", nil)
	h.store.setFailSave(true)

	w := perform(h.router, http.MethodPost, "/session/stop", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	body := decode(t, w)
	if msg, _ := body["error"].(string); !strings.HasPrefix(msg, "walk not saved") {
		t.Fatalf("expected walk not saved error, got %v", body["error"])
	}
	if h.machine.State().Phase != tracking.PhaseActive {
		t.Fatalf("expected session still active, got %v", h.machine.State().Phase)
	}

	h.store.setFailSave(false)
	if w = perform(h.router, http.MethodPost, "/session/stop", nil); w.Code != http.StatusOK {
		t.Fatalf("retry stop: expected 200, got %d", w.Code)
	}
}

func TestSessionControllerAttachMedia(t *testing.T) {
	h := newSessionHarness(t)

	media := `{"kind": "camera", "local_identifier": "IMG_0001"}`
	if w := perform(h.router, http.MethodPost, "/session/media", media); w.Code != http.StatusConflict {
		t.Fatalf("attach while idle: expected 409, got %d", w.Code)
	}

	perform(h.router, http.MethodPost, "/session/start", nil)
	if w := perform(h.router, http.MethodPost, "/session/media", `{"kind": "scanner", "local_identifier": "x"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown kind: expected 400, got %d", w.Code)
	}

	perform(h.router, http.MethodPost, "/session/media", media)
	w := perform(h.router, http.MethodPost, "/session/media", media)
	if w.Code != http.StatusOK {
		t.Fatalf("attach: expected 200, got %d", w.Code)
	}
	if got := len(h.machine.State().Media); got != 1 {
		t.Fatalf("expected duplicate attach ignored, got %d media", got)
	}
}

func TestSessionControllerRejectsBadPayloads(t *testing.T) {
	h := newSessionHarness(t)

	if w := perform(h.router, http.MethodPost, "/session/fixes", `[{"latitude": 1, "timestamp": "yesterday"}]`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad timestamp: expected 400, got %d", w.Code)
	}
	if w := perform(h.router, http.MethodPost, "/session/steps", `{"steps": -4}`); w.Code != http.StatusBadRequest {
		t.Fatalf("negative steps: expected 400, got %d", w.Code)
	}
}

package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"walk_tracker/internal/tracking"
)

func init() {
	gin.SetMode(gin.TestMode)
	logrus.SetLevel(logrus.PanicLevel)
}

func perform(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return out
}

var errDiskFull = errors.New("disk full")

// memoryPersistence keeps snapshots and history in memory.
type memoryPersistence struct {
	mu       sync.Mutex
	inFlight *tracking.InFlight
	history  []tracking.WalkRecord
	failSave bool
}

func (p *memoryPersistence) SaveInFlight(_ context.Context, snap tracking.InFlight) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = &snap
	return nil
}

func (p *memoryPersistence) LoadInFlight(context.Context) (*tracking.InFlight, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight, nil
}

func (p *memoryPersistence) ClearInFlight(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight = nil
	return nil
}

func (p *memoryPersistence) SaveFinal(_ context.Context, record tracking.WalkRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failSave {
		return errDiskFull
	}
	p.history = append(p.history, record)
	return nil
}

func (p *memoryPersistence) LoadHistory(context.Context) ([]tracking.WalkRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]tracking.WalkRecord(nil), p.history...), nil
}

func (p *memoryPersistence) DeleteRecord(context.Context, string) error { return nil }

func (p *memoryPersistence) setFailSave(fail bool) {
	p.mu.Lock()
	p.failSave = fail
	p.mu.Unlock()
}

package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"walk_tracker/internal/middleware"
	"walk_tracker/internal/tracking"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	clientSend = 4
)

// StateSource is the machine's change feed.
type StateSource interface {
	Subscribe() (<-chan tracking.State, func())
}

type TokenValidator interface {
	ValidateToken(token string) (*middleware.Claims, error)
}

type stateClient struct {
	send chan tracking.State
}

// StateHub fans the machine's state changes out to every connected observer
// through a single subscription.
type StateHub struct {
	mu      sync.Mutex
	clients map[*stateClient]struct{}
	current tracking.State
	closed  bool
	cancel  func()
}

func NewStateHub(source StateSource) *StateHub {
	updates, cancel := source.Subscribe()
	hub := &StateHub{
		clients: make(map[*stateClient]struct{}),
		cancel:  cancel,
	}
	go hub.run(updates)
	return hub
}

func (h *StateHub) run(updates <-chan tracking.State) {
	for st := range updates {
		h.mu.Lock()
		h.current = st
		for cl := range h.clients {
			// a slow observer loses its oldest pending state, never the newest
			select {
			case cl.send <- st:
			default:
				select {
				case <-cl.send:
				default:
				}
				cl.send <- st
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		delete(h.clients, cl)
		close(cl.send)
	}
	logrus.Debug("State hub stopped.")
}

// RegisterClient returns a client primed with the current state.
func (h *StateHub) RegisterClient() *stateClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	cl := &stateClient{send: make(chan tracking.State, clientSend)}
	if h.closed {
		close(cl.send)
		return cl
	}
	cl.send <- h.current
	h.clients[cl] = struct{}{}
	logrus.WithField("clients", len(h.clients)).Info("State observer registered.")
	return cl
}

func (h *StateHub) UnregisterClient(cl *stateClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		delete(h.clients, cl)
		close(cl.send)
		logrus.WithField("clients", len(h.clients)).Info("State observer unregistered.")
	}
}

func (h *StateHub) Close() {
	h.cancel()
}

// StreamController serves the live WebSocket endpoints: state changes out,
// fixes and steps in.
type StreamController struct {
	hub      *StateHub
	fixes    FixPusher
	steps    StepRecorder
	auth     TokenValidator
	upgrader websocket.Upgrader
	now      func() time.Time
}

func NewStreamController(hub *StateHub, fixes FixPusher, steps StepRecorder, auth TokenValidator) *StreamController {
	return &StreamController{
		hub:   hub,
		fixes: fixes,
		steps: steps,
		auth:  auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// browsers cannot set headers on a websocket handshake; the
			// token query parameter is the access check
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		now: time.Now,
	}
}

var errMissingToken = errors.New("missing authentication token")

func (s *StreamController) authenticate(c *gin.Context) (string, error) {
	token := c.Query("token")
	if token == "" {
		return "", errMissingToken
	}
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	return claims.DeviceID, nil
}

func (s *StreamController) upgrade(c *gin.Context) (*websocket.Conn, string, bool) {
	deviceID, err := s.authenticate(c)
	if err != nil {
		logrus.WithError(err).WithField("path", c.FullPath()).Warn("WebSocket connection attempt rejected.")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return nil, "", false
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade WebSocket connection.")
		return nil, "", false
	}
	return conn, deviceID, true
}

// HandleStateStream pushes every state change to the observer as JSON.
func (s *StreamController) HandleStateStream(c *gin.Context) {
	conn, deviceID, ok := s.upgrade(c)
	if !ok {
		return
	}
	defer conn.Close()
	log := logrus.WithFields(logrus.Fields{"device_id": deviceID, "conn_ptr": fmt.Sprintf("%p", conn)})
	log.Info("State stream connection established.")

	client := s.hub.RegisterClient()
	defer s.hub.UnregisterClient(client)

	// observers send nothing; reading detects the close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.WithError(err).Debug("State stream read ended.")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case st, ok := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(st); err != nil {
				log.WithError(err).Warn("Failed to send state update.")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-gone:
			log.Info("State stream connection closed.")
			return
		}
	}
}

type ingestMessage struct {
	Type string `json:"type"`
}

// HandleFixStream ingests {"type":"fix",...} and {"type":"steps",...}
// messages from a companion device and acknowledges each one.
func (s *StreamController) HandleFixStream(c *gin.Context) {
	conn, deviceID, ok := s.upgrade(c)
	if !ok {
		return
	}
	defer conn.Close()
	log := logrus.WithFields(logrus.Fields{"device_id": deviceID, "conn_ptr": fmt.Sprintf("%p", conn)})
	log.Info("Fix stream connection established.")

	for {
		messageType, p, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Info("Fix stream closed.")
			} else {
				log.WithError(err).Error("Error reading fix stream message.")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if err := conn.WriteJSON(s.ingest(p, log)); err != nil {
			log.WithError(err).Warn("Failed to acknowledge fix stream message.")
			return
		}
	}
}

func (s *StreamController) ingest(p []byte, log logrus.FieldLogger) gin.H {
	var msg ingestMessage
	if err := json.Unmarshal(p, &msg); err != nil {
		return gin.H{"status": "error", "error": "invalid message"}
	}

	switch msg.Type {
	case "fix":
		var fix fixPayload
		if err := json.Unmarshal(p, &fix); err != nil {
			log.WithError(err).WithField("payload", string(p)).Debug("Invalid fix message.")
			return gin.H{"status": "error", "error": err.Error()}
		}
		if !s.fixes.Push(fix.fix(s.now())) {
			return gin.H{"status": "ignored", "type": msg.Type}
		}
		return gin.H{"status": "forwarded", "type": msg.Type}
	case "steps":
		var steps stepsPayload
		if err := json.Unmarshal(p, &steps); err != nil || steps.Steps < 0 {
			return gin.H{"status": "error", "error": "invalid steps message"}
		}
		at := steps.Timestamp
		if at.IsZero() {
			at = s.now()
		}
		s.steps.Record(at, steps.Steps)
		return gin.H{"status": "recorded", "type": msg.Type}
	default:
		return gin.H{"status": "error", "error": fmt.Sprintf("unknown message type %q", msg.Type)}
	}
}

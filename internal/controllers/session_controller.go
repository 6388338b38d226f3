package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"walk_tracker/internal/tracking"
)

// SessionMachine is the lifecycle API the session endpoints drive.
type SessionMachine interface {
	Start(ctx context.Context) (tracking.State, error)
	Pause(ctx context.Context) (tracking.State, error)
	Resume(ctx context.Context) (tracking.State, error)
	Stop(ctx context.Context) (tracking.State, error)
	Cancel(ctx context.Context) (tracking.State, error)
	AttachMedia(ctx context.Context, ref tracking.MediaRef) (tracking.State, error)
	State() tracking.State
}

// FixPusher forwards fixes to the machine while its location source runs.
type FixPusher interface {
	Push(fix tracking.LocationFix) bool
}

// StepRecorder accepts pedometer increments.
type StepRecorder interface {
	Record(at time.Time, steps int)
}

type SessionController struct {
	machine SessionMachine
	fixes   FixPusher
	steps   StepRecorder
	now     func() time.Time
}

func NewSessionController(machine SessionMachine, fixes FixPusher, steps StepRecorder) *SessionController {
	return &SessionController{machine: machine, fixes: fixes, steps: steps, now: time.Now}
}

func (s *SessionController) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.machine.State())
}

func (s *SessionController) Start(c *gin.Context) { s.command(c, s.machine.Start) }
func (s *SessionController) Pause(c *gin.Context) { s.command(c, s.machine.Pause) }
func (s *SessionController) Resume(c *gin.Context) { s.command(c, s.machine.Resume) }
func (s *SessionController) Stop(c *gin.Context) { s.command(c, s.machine.Stop) }
func (s *SessionController) Cancel(c *gin.Context) { s.command(c, s.machine.Cancel) }

func (s *SessionController) command(c *gin.Context, op func(context.Context) (tracking.State, error)) {
	state, err := op(c.Request.Context())
	if err != nil {
		respondError(c, err, gin.H{"state": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

// PostFixes accepts a batch of fixes. Fixes arriving while the session is not
// active are counted but dropped.
func (s *SessionController) PostFixes(c *gin.Context) {
	var batch []fixPayload
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	now := s.now()
	forwarded := 0
	for _, p := range batch {
		if s.fixes.Push(p.fix(now)) {
			forwarded++
		}
	}
	c.JSON(http.StatusAccepted, gin.H{"received": len(batch), "forwarded": forwarded})
}

func (s *SessionController) PostSteps(c *gin.Context) {
	var body stepsPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	at := body.Timestamp
	if at.IsZero() {
		at = s.now()
	}
	s.steps.Record(at, body.Steps)
	c.JSON(http.StatusAccepted, gin.H{"recorded": body.Steps})
}

func (s *SessionController) AttachMedia(c *gin.Context) {
	var body mediaPayload
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	state, err := s.machine.AttachMedia(c.Request.Context(), tracking.MediaRef{
		Kind:            body.Kind,
		LocalIdentifier: body.LocalIdentifier,
	})
	if err != nil {
		respondError(c, err, gin.H{"state": state})
		return
	}
	c.JSON(http.StatusOK, state)
}

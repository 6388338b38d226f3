package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"walk_tracker/internal/deeplink"
	"walk_tracker/internal/tracking"
)

type SessionStarter interface {
	Start(ctx context.Context) (tracking.State, error)
}

type DeeplinkController struct {
	machine SessionStarter
}

func NewDeeplinkController(machine SessionStarter) *DeeplinkController {
	return &DeeplinkController{machine: machine}
}

func (d *DeeplinkController) Open(c *gin.Context) {
	var body struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	action, err := deeplink.Parse(body.URL)
	if err != nil {
		logrus.WithField("url", body.URL).Info("Ignoring unknown deep link.")
		respondError(c, err, nil)
		return
	}

	// start is the only action the scheme defines
	state, err := d.machine.Start(c.Request.Context())
	if err != nil {
		respondError(c, err, gin.H{"action": action, "state": state})
		return
	}
	c.JSON(http.StatusOK, gin.H{"action": action, "state": state})
}

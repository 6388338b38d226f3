package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"walk_tracker/internal/deeplink"
	"walk_tracker/internal/goals"
	"walk_tracker/internal/persistence"
	"walk_tracker/internal/tracking"
	"walk_tracker/internal/widget"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, tracking.ErrConcurrentSession),
		errors.Is(err, tracking.ErrInvalidTransition),
		errors.Is(err, persistence.ErrDuplicateWalk):
		return http.StatusConflict
	case errors.Is(err, persistence.ErrWalkNotFound):
		return http.StatusNotFound
	case errors.Is(err, goals.ErrInvalidGoal),
		errors.Is(err, widget.ErrInvalidGoal),
		errors.Is(err, deeplink.ErrUnknownLink):
		return http.StatusBadRequest
	case errors.Is(err, tracking.ErrClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status; extra fields are merged
// into the body.
func respondError(c *gin.Context, err error, extra gin.H) {
	status := statusFor(err)
	entry := logrus.WithError(err).WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed.")
	} else {
		entry.Debug("Request rejected.")
	}

	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(status, body)
}

package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"walk_tracker/internal/widget"
)

type WidgetSource interface {
	Latest(ctx context.Context) (*widget.LatestWalk, error)
	GoalTarget(ctx context.Context) int
}

type WidgetController struct {
	source WidgetSource
}

func NewWidgetController(source WidgetSource) *WidgetController {
	return &WidgetController{source: source}
}

// Latest returns the last handed-off walk (null before the first one) and
// the current goal.
func (w *WidgetController) Latest(c *gin.Context) {
	ctx := c.Request.Context()
	latest, err := w.source.Latest(ctx)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"walk": latest,
		"goal": w.source.GoalTarget(ctx),
	})
}

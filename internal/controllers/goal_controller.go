package controllers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"walk_tracker/internal/models"
)

const frequentGoals = 5

type GoalService interface {
	Use(ctx context.Context, goal int) (models.GoalHistory, error)
	Frequent(ctx context.Context, limit int) ([]models.GoalHistory, error)
	ClearOverride(ctx context.Context) error
	Current(ctx context.Context) int
}

type GoalController struct {
	goals GoalService
}

func NewGoalController(goals GoalService) *GoalController {
	return &GoalController{goals: goals}
}

func (g *GoalController) List(c *gin.Context) {
	ctx := c.Request.Context()
	frequent, err := g.goals.Frequent(ctx, frequentGoals)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"current":  g.goals.Current(ctx),
		"frequent": frequent,
	})
}

func (g *GoalController) Use(c *gin.Context) {
	var body struct {
		Goal int `json:"goal" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := g.goals.Use(c.Request.Context(), body.Goal)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"current": entry.Goal, "goal": entry})
}

func (g *GoalController) ClearOverride(c *gin.Context) {
	ctx := c.Request.Context()
	if err := g.goals.ClearOverride(ctx); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": g.goals.Current(ctx)})
}

package routes

import (
	"github.com/gin-gonic/gin"
)

func GoalRoutes(r *gin.Engine, h Handlers) {
	goals := r.Group("/goals")
	goals.Use(h.Auth.RequireAuth())
	{
		goals.GET("", h.Goals.List)
		goals.POST("", h.Goals.Use)
		goals.DELETE("/override", h.Goals.ClearOverride)
	}
}

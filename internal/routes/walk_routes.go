package routes

import (
	"github.com/gin-gonic/gin"
)

func WalkRoutes(r *gin.Engine, h Handlers) {
	walks := r.Group("/walks")
	walks.Use(h.Auth.RequireAuth())
	{
		walks.GET("", h.Walks.List)
		walks.GET("/today", h.Walks.Today)
		walks.GET("/:id", h.Walks.Get)
		walks.PATCH("/:id", h.Walks.Rename)
		walks.DELETE("/:id", h.Walks.Delete)
	}
}

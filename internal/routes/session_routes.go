package routes

import (
	"github.com/gin-gonic/gin"
)

func SessionRoutes(r *gin.Engine, h Handlers) {
	session := r.Group("/session")
	session.Use(h.Auth.RequireAuth())
	{
		session.GET("", h.Session.GetState)
		session.POST("/start", h.Session.Start)
		session.POST("/pause", h.Session.Pause)
		session.POST("/resume", h.Session.Resume)
		session.POST("/stop", h.Session.Stop)
		session.POST("/cancel", h.Session.Cancel)
		session.POST("/fixes", h.Session.PostFixes)
		session.POST("/steps", h.Session.PostSteps)
		session.POST("/media", h.Session.AttachMedia)
	}
}

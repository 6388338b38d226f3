package routes

import (
	"github.com/gin-gonic/gin"
)

func DeeplinkRoutes(r *gin.Engine, h Handlers) {
	r.POST("/deeplink", h.Auth.RequireAuth(), h.Deeplink.Open)
}

package routes

import (
	"github.com/gin-gonic/gin"
)

// WebSocketRoutes authenticate through the token query parameter.
func WebSocketRoutes(r *gin.Engine, h Handlers) {
	wsRoutes := r.Group("/ws")
	{
		wsRoutes.GET("/state", h.Streams.HandleStateStream)
		wsRoutes.GET("/fixes", h.Streams.HandleFixStream)
	}
}

package routes

import (
	"github.com/gin-gonic/gin"
)

// WidgetRoutes are read-only and unauthenticated so home-screen surfaces can
// poll them.
func WidgetRoutes(r *gin.Engine, h Handlers) {
	widget := r.Group("/widget")
	{
		widget.GET("/latest", h.Widget.Latest)
	}
}

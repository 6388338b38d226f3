package routes

import (
	"github.com/gin-gonic/gin"
)

func AuthRoutes(r *gin.Engine, h Handlers) {
	auth := r.Group("/auth")
	{
		auth.POST("/token", h.Tokens.IssueToken)
	}
}

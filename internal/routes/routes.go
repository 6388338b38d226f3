package routes

import (
	"io"
	"net/http"
	"os"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"walk_tracker/internal/controllers"
	"walk_tracker/internal/middleware"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth      *middleware.Auth
	Tokens    *controllers.AuthController
	Session   *controllers.SessionController
	Walks     *controllers.WalkController
	Goals     *controllers.GoalController
	Widget    *controllers.WidgetController
	Deeplink  *controllers.DeeplinkController
	Streams   *controllers.StreamController
	AccessLog io.Writer
}

func SetupRouter(h Handlers) *gin.Engine {
	accessLog := h.AccessLog
	if accessLog == nil {
		accessLog = os.Stdout
	}

	r := gin.New()
	r.Use(
		ginlog.SetLogger(
			ginlog.WithWriter(accessLog),
			ginlog.WithUTC(true),
			ginlog.WithSkipPath([]string{"/healthz"}),
			ginlog.WithClientErrorLevel(zerolog.WarnLevel),
			ginlog.WithServerErrorLevel(zerolog.ErrorLevel),
		),
		gin.Recovery(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	AuthRoutes(r, h)
	SessionRoutes(r, h)
	WalkRoutes(r, h)
	GoalRoutes(r, h)
	DeeplinkRoutes(r, h)
	WidgetRoutes(r, h)
	WebSocketRoutes(r, h)

	return r
}

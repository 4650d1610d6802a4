package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/auth"
	"github.com/vovakirdan/roomcast/internal/config"
	"github.com/vovakirdan/roomcast/internal/core"
	"github.com/vovakirdan/roomcast/internal/observability"
	"github.com/vovakirdan/roomcast/internal/presence"
	"github.com/vovakirdan/roomcast/internal/service/messages"
	"github.com/vovakirdan/roomcast/internal/store"
)

// Deps are the collaborators the HTTP layer routes to.
type Deps struct {
	Coordinator *core.Coordinator
	Connections *core.Connections
	Auth        *auth.Service
	Messages    *messages.Service
	Users       store.UserStore
	Presence    presence.Tracker
}

// NewServer builds an HTTP server with REST, metrics and WebSocket routes.
func NewServer(deps Deps, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(deps, cfg, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter builds the request multiplexer. It is separate from NewServer for tests.
//
// The WebSocket endpoint lives on the plain mux: the handshake hijacks the
// connection, which gin's response writer does not allow once it has written.
func NewRouter(deps Deps, cfg *config.Config, logger *zerolog.Logger) stdhttp.Handler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery(), LoggerMiddleware(logger), observability.HTTPMetricsMiddleware())

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	api := router.Group("/api")
	if deps.Auth != nil {
		apiHandlers := NewAPIHandlers(deps.Auth, logger)
		api.POST("/register", apiHandlers.Register)
		api.POST("/login", apiHandlers.Login)
		api.POST("/guest", apiHandlers.GuestLogin)

		if deps.Users != nil {
			userHandlers := NewUserHandlers(deps.Users, logger)
			api.GET("/me", AuthMiddleware(deps.Auth, logger), userHandlers.Me)
		}
	}

	rooms := api.Group("/rooms")
	if cfg.JWTRequired && deps.Auth != nil {
		rooms.Use(AuthMiddleware(deps.Auth, logger))
	}
	roomHandlers := NewRoomHandlers(deps.Coordinator.Registry(), deps.Messages, deps.Presence, logger)
	rooms.GET("", roomHandlers.ListRooms)
	rooms.GET("/:room/messages", roomHandlers.History)
	rooms.GET("/:room/presence", roomHandlers.Presence)

	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", NewWSHandler(deps.Coordinator, deps.Connections, deps.Auth, cfg, logger))
	mux.Handle("/", router)
	return mux
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

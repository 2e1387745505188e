package http

import (
	"fmt"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/synctalk/relay/internal/auth"
	"github.com/synctalk/relay/internal/config"
	"github.com/synctalk/relay/internal/relay"
	"github.com/synctalk/relay/internal/store"
)

// NewServer builds the HTTP server: REST API plus the WebSocket gateway.
// stop is closed on shutdown and releases background helpers like the
// connection rate limiter.
func NewServer(rl *relay.Relay, sessions *SessionTable, authService *auth.Service, st store.Store, cfg config.Config, stop <-chan struct{}, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", healthHandler)
	router.GET("/ws", gin.WrapH(NewWSHandler(rl, sessions, authService, st, cfg.WSConnPerMinute, stop, logger)))

	apiHandlers := NewAPIHandlers(authService, logger)
	convHandlers := NewConversationHandlers(st, rl, logger)

	api := router.Group("/api")
	api.POST("/auth/register", apiHandlers.Register)
	api.POST("/auth/login", apiHandlers.Login)

	authed := api.Group("", AuthMiddleware(authService, logger))
	authed.GET("/conversations", convHandlers.List)
	authed.POST("/conversations", convHandlers.CreateGroup)
	authed.POST("/conversations/direct", convHandlers.CreateDirect)
	authed.GET("/conversations/:id/messages", convHandlers.ListMessages)
	authed.POST("/conversations/:id/messages", convHandlers.SendMessage)
	authed.POST("/conversations/:id/participants", convHandlers.AddParticipant)
	authed.DELETE("/conversations/:id/participants/:userId", convHandlers.RemoveParticipant)
	authed.DELETE("/messages/:id", convHandlers.DeleteMessage)

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	fmt.Fprint(c.Writer, "ok")
}

package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/soulstream/livecast/internal/config"
	"github.com/soulstream/livecast/internal/gateway"
	"github.com/soulstream/livecast/internal/storage/sqlite"
)

// ClientTokenMiddleware assigns every browser a stable connection id via
// cookie. The gateway uses it as the ConnID for the websocket session.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = uuid.NewString()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, store *sqlite.Store, gw *gateway.Gateway) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookieStore := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LivecastSessions", cookieStore))
	r.Use(ClientTokenMiddleware())

	api := r.Group("/api")

	// Fetch-once discovery: the durable mirror, not the registry.
	// Eventually consistent by design.
	api.GET("/streams", func(c *gin.Context) {
		rows, err := store.ListActive(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "transport.http").Msg("list active streams")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list streams"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	api.GET("/streams/history", func(c *gin.Context) {
		rows, err := store.ListHistory(c.Request.Context(), 50)
		if err != nil {
			log.Error().Err(err).Str("module", "transport.http").Msg("list stream history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list history"})
			return
		}
		c.JSON(http.StatusOK, rows)
	})

	api.GET("/ws", func(c *gin.Context) {
		log.Info().Str("module", "transport.http").Str("conn", c.GetString("client_token")).Msg("ws endpoint hit")
		gw.HandleWS(ctx, c)
	})

	return r
}

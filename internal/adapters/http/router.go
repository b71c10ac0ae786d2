package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/officeverse/office/internal/adapters/signal"
	"github.com/officeverse/office/internal/config"
	"github.com/officeverse/office/internal/core"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags every browser with a stable cookie token;
// session ids stay per-connection, the token is for logs and sessions.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *core.RoomManager, dir core.Directory) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("OfficeSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "Office server running")
	})

	// Private-room listing comes from the directory store, so it can be
	// stale while the store is down; the rooms themselves keep running.
	r.GET("/privateRooms", func(c *gin.Context) {
		recs, err := dir.ListPrivate(c.Request.Context())
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("list private rooms")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
			return
		}
		c.JSON(http.StatusOK, recs)
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, rooms.List())
	})

	// Clients fetch their ICE config here before opening the mesh.
	api.GET("/iceServers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"urls": cfg.STUNServers})
	})

	ctrl := signal.NewController(rooms, cfg)
	api.GET("/ws/rooms", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("client_token", c.GetString("client_token")).Msg("ws rooms endpoint hit")
		ctrl.HandleWS(ctx, c)
	})

	return r
}

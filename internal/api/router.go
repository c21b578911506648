package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/scenetrack/internal/api/handlers"
	"github.com/your-org/scenetrack/internal/api/ws"
	"github.com/your-org/scenetrack/internal/auth"
)

type RouterConfig struct {
	APIKey  string
	Scenes  handlers.SceneStore
	Blobs   handlers.BlobStore
	Control handlers.ControlPublisher
	Hub     *ws.Hub
	Checks  map[string]handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Sessions
	sessionH := handlers.NewSessionHandler(cfg.Hub, cfg.Scenes)
	v1.GET("/sessions", sessionH.List)
	v1.GET("/sessions/:id/objects", sessionH.Objects)

	// Scene history
	sceneH := handlers.NewSceneHandler(cfg.Scenes, cfg.Blobs)
	v1.GET("/sessions/:id/scenes", sceneH.List)
	v1.GET("/scenes/:id/snapshot", sceneH.Snapshot)

	// Track history
	trackH := handlers.NewTrackHandler(cfg.Scenes)
	v1.GET("/sessions/:id/tracks", trackH.History)

	// Controls
	controlH := handlers.NewControlHandler(cfg.Control)
	v1.POST("/sessions/:id/select", controlH.Select)
	v1.POST("/sessions/:id/tracks/:trackId/scan", controlH.Scan)
	v1.POST("/sessions/:id/conditions", controlH.Conditions)

	return r
}

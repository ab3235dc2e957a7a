package router

import (
	"time"

	"cinepos/internal/bridge"
	"cinepos/internal/config"
	"cinepos/internal/engine"
	"cinepos/internal/handler"
	"cinepos/internal/infra"
	"cinepos/internal/middleware"
	"cinepos/internal/notify"
	"cinepos/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Deps carries the wired components the HTTP surface exposes.
type Deps struct {
	Engine  *engine.Engine
	Bridge  *bridge.Client
	Broker  *notify.Broker
	Prefs   *store.Prefs
	Redis   *redis.Client
	Breaker *infra.CircuitBreaker
}

// New returns the configured Gin engine for the counter UI.
func New(cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware chain (order matters)
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.CORS())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.RateLimiter(1000, time.Minute))

	ordersH := handler.NewOrdersHandler(d.Engine)
	bridgeH := handler.NewBridgeHandler(cfg.TheaterID, d.Bridge, d.Prefs)
	streamH := handler.NewStreamHandler(d.Broker, d.Engine)

	r.GET("/health", handler.Health(d.Redis, d.Bridge, d.Breaker))

	v1 := r.Group("/v1")
	{
		v1.GET("/status", ordersH.Status)
		v1.GET("/orders", ordersH.List)
		v1.POST("/orders/:id/reprint", ordersH.Reprint)
		v1.PUT("/window", ordersH.SetWindow)
		v1.POST("/engine/pause", ordersH.Pause)
		v1.POST("/engine/resume", ordersH.Resume)

		v1.GET("/printers", bridgeH.Printers)
		v1.POST("/printers/refresh", bridgeH.Refresh)
		v1.PUT("/printers/selection", bridgeH.SetSelection)
		v1.POST("/bridge/connect", bridgeH.Connect)
		v1.POST("/bridge/disconnect", bridgeH.Disconnect)

		v1.GET("/events", streamH.Events)
	}

	return r
}

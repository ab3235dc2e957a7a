package handler

import (
	"context"
	"net/http"
	"time"

	"cinepos/internal/bridge"
	"cinepos/internal/infra"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Health returns a JSON health check response. Checks Redis connectivity and
// reports the bridge and order-API breaker states; a disconnected bridge is
// not unhealthy — the agent keeps beeping without it.
func Health(rdb *redis.Client, br *bridge.Client, cb *infra.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		redisStatus := "connected"
		if rdb.Ping(ctx).Err() != nil {
			redisStatus = "error"
		}

		status := http.StatusOK
		if redisStatus != "connected" {
			status = http.StatusServiceUnavailable
		}

		c.JSON(status, gin.H{
			"ok":        status == http.StatusOK,
			"redis":     redisStatus,
			"bridge":    br.State().String(),
			"order_api": cb.State().String(),
		})
	}
}

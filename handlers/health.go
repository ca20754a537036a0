package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"goflare.io/storecredit/driver"
)

type HealthHandler interface {
	Live(c echo.Context) error
	Ready(c echo.Context) error
}

type healthHandler struct {
	conn  driver.PostgresPool
	redis *redis.Client
}

func NewHealthHandler(conn driver.PostgresPool, redisClient *redis.Client) HealthHandler {
	return &healthHandler{conn: conn, redis: redisClient}
}

// Live handles GET /health
func (hh *healthHandler) Live(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /ready
func (hh *healthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"postgres": "ok", "redis": "ok"}
	status := http.StatusOK

	if err := hh.conn.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
		status = http.StatusServiceUnavailable
	}
	if err := hh.redis.Ping(ctx).Err(); err != nil {
		checks["redis"] = err.Error()
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, checks)
}

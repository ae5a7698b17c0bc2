package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler reports whether the database and the cache are reachable.
// The database is required; Redis is optional.
type HealthHandler struct {
	DB    Pinger
	Redis *redis.Client
}

// NewHealthHandler probes db and, when non-nil, rdb.
func NewHealthHandler(db Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{DB: db, Redis: rdb}
}

// Health reports whether the database and Redis answer a ping.  Only a
// database failure makes it 503.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	resp := echo.Map{"status": "ok", "db": "up", "redis": "disabled"}
	code := http.StatusOK

	if err := h.DB.PingContext(ctx); err != nil {
		resp["db"] = "down"
		resp["status"] = "unavailable"
		code = http.StatusServiceUnavailable
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			resp["redis"] = "down"
			if code == http.StatusOK {
				resp["status"] = "degraded"
			}
		} else {
			resp["redis"] = "up"
		}
	}
	return c.JSON(code, resp)
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"ticket-admission/internal/store"
	"ticket-admission/utils"
)

const healthTimeout = 2 * time.Second

type HealthHandler struct {
	store store.TicketStore
	redis redis.Cmdable
	now   func() time.Time
}

// NewHealthHandler reports on the ticket store and, when redisClient is
// non-nil, on Redis as well.
func NewHealthHandler(ticketStore store.TicketStore, redisClient redis.Cmdable) *HealthHandler {
	return &HealthHandler{store: ticketStore, redis: redisClient, now: time.Now}
}

func (h *HealthHandler) Health(e *core.RequestEvent) error {
	ctx, cancel := context.WithTimeout(e.Request.Context(), healthTimeout)
	defer cancel()

	code := http.StatusOK
	body := map[string]any{
		"status":    "healthy",
		"timestamp": h.now().Unix(),
		"store":     "up",
	}

	if err := h.store.Ping(ctx); err != nil {
		code = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["store"] = "down"
	}
	if h.redis != nil {
		body["redis"] = "up"
		if err := utils.RedisHealthCheck(ctx, h.redis); err != nil {
			// Redis only backs rate limiting unless it is the store.
			body["redis"] = "down"
		}
	}

	return e.JSON(code, body)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/pkg/database"
	pkgredis "github.com/prachya-t/ticket-reserve/pkg/redis"
	"github.com/prachya-t/ticket-reserve/pkg/response"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	db    *database.PostgresDB
	redis *pkgredis.Client
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *database.PostgresDB, redis *pkgredis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// Live handles GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// Ready handles GET /health/ready, checking downstream dependencies
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx := c.Request.Context()
	checks := gin.H{}
	healthy := true

	if err := h.db.HealthCheck(ctx); err != nil {
		checks["postgres"] = err.Error()
		healthy = false
	} else {
		checks["postgres"] = "ok"
	}

	if err := h.redis.HealthCheck(ctx); err != nil {
		checks["redis"] = err.Error()
		healthy = false
	} else {
		checks["redis"] = "ok"
	}

	if !healthy {
		response.Error(c, http.StatusServiceUnavailable, "NOT_READY", "dependency check failed", checks)
		return
	}
	response.Success(c, gin.H{"status": "ok", "checks": checks})
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/pkg/config"
	"github.com/prachya-t/ticket-reserve/pkg/middleware"
	pkgredis "github.com/prachya-t/ticket-reserve/pkg/redis"
)

// Handlers bundles everything the router mounts
type Handlers struct {
	Reservation *ReservationHandler
	SeatJob     *SeatJobHandler
	Waitlist    *WaitlistHandler
	Health      *HealthHandler
}

// NewRouter builds the gin engine with all routes and middleware wired
func NewRouter(cfg *config.Config, redisClient *pkgredis.Client, h *Handlers) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health/live", h.Health.Live)
	r.GET("/health/ready", h.Health.Ready)

	auth := middleware.AuthMiddleware(cfg.JWT.Secret)
	idem := middleware.Idempotency(&middleware.IdempotencyConfig{
		Redis: redisClient,
		TTL:   cfg.Reservation.IdempotencyTTL,
	})

	v1 := r.Group("/api/v1")
	{
		reservations := v1.Group("/reservations", auth)
		{
			// Writes require an idempotency key so client retries replay
			// instead of double-booking
			reservations.POST("", idem, h.Reservation.Create)
			reservations.GET("/:id", h.Reservation.Get)
			reservations.DELETE("/:id", h.Reservation.Cancel)
		}

		seatJobs := v1.Group("/seat-jobs", auth)
		{
			seatJobs.POST("", idem, h.SeatJob.Submit)
			seatJobs.GET("/:id", h.SeatJob.Poll)
		}

		events := v1.Group("/events", auth)
		{
			events.POST("/:id/waitlist", h.Waitlist.Join)
			events.DELETE("/:id/waitlist", h.Waitlist.Leave)
			events.POST("/:id/waitlist/promote", h.Waitlist.Promote)
		}
	}

	return r
}

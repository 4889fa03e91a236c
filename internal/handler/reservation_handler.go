package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/dto"
	"github.com/prachya-t/ticket-reserve/pkg/middleware"
	"github.com/prachya-t/ticket-reserve/pkg/response"
)

// CapacityService is the reservation surface the handler depends on
type CapacityService interface {
	Reserve(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error)
	Cancel(ctx context.Context, userID, reservationID string) (*domain.Reservation, error)
	GetReservation(ctx context.Context, userID, reservationID string) (*domain.Reservation, error)
}

// ReservationHandler serves the synchronous quantity reservation endpoints
type ReservationHandler struct {
	capacityService CapacityService
}

// NewReservationHandler creates a new ReservationHandler
func NewReservationHandler(capacityService CapacityService) *ReservationHandler {
	return &ReservationHandler{capacityService: capacityService}
}

// Create handles POST /api/v1/reservations
func (h *ReservationHandler) Create(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.ReserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	idempotencyKey, _ := middleware.GetIdempotencyKey(c)

	res, err := h.capacityService.Reserve(c.Request.Context(), userID, req.EventID, req.Quantity, idempotencyKey)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, dto.NewReservationResponse(res))
}

// Get handles GET /api/v1/reservations/:id
func (h *ReservationHandler) Get(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	res, err := h.capacityService.GetReservation(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.NewReservationResponse(res))
}

// Cancel handles DELETE /api/v1/reservations/:id
func (h *ReservationHandler) Cancel(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	res, err := h.capacityService.Cancel(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.NewReservationResponse(res))
}

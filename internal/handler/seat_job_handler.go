package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/dto"
	"github.com/prachya-t/ticket-reserve/pkg/middleware"
	"github.com/prachya-t/ticket-reserve/pkg/response"
)

// SeatJobService is the job surface the handler depends on
type SeatJobService interface {
	Submit(ctx context.Context, userID, eventID string, seatIDs []string, idempotencyKey string) (*domain.ReservationJob, error)
	Poll(ctx context.Context, userID, jobID string) (*domain.ReservationJob, error)
}

// SeatJobHandler serves the asynchronous seat booking endpoints
type SeatJobHandler struct {
	seatJobService SeatJobService
}

// NewSeatJobHandler creates a new SeatJobHandler
func NewSeatJobHandler(seatJobService SeatJobService) *SeatJobHandler {
	return &SeatJobHandler{seatJobService: seatJobService}
}

// Submit handles POST /api/v1/seat-jobs. The request is accepted, not
// committed: 202 with a job id the client polls for the outcome.
func (h *SeatJobHandler) Submit(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.SubmitSeatJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body: "+err.Error())
		return
	}

	idempotencyKey, _ := middleware.GetIdempotencyKey(c)

	job, err := h.seatJobService.Submit(c.Request.Context(), userID, req.EventID, req.SeatIDs, idempotencyKey)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Accepted(c, dto.NewSeatJobResponse(job))
}

// Poll handles GET /api/v1/seat-jobs/:id
func (h *SeatJobHandler) Poll(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	job, err := h.seatJobService.Poll(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, dto.NewSeatJobResponse(job))
}

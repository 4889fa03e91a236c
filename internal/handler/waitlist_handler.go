package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/dto"
	"github.com/prachya-t/ticket-reserve/pkg/middleware"
	"github.com/prachya-t/ticket-reserve/pkg/response"
)

// WaitlistService is the waitlist surface the handler depends on
type WaitlistService interface {
	Join(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error)
	Leave(ctx context.Context, userID, eventID string) error
	Promote(ctx context.Context, eventID string, slots int) ([]domain.PromotionResult, error)
}

// WaitlistHandler serves the waitlist endpoints
type WaitlistHandler struct {
	waitlistService  WaitlistService
	defaultSlotLimit int
}

// NewWaitlistHandler creates a new WaitlistHandler
func NewWaitlistHandler(waitlistService WaitlistService, defaultSlotLimit int) *WaitlistHandler {
	if defaultSlotLimit < 1 {
		defaultSlotLimit = 10
	}
	return &WaitlistHandler{
		waitlistService:  waitlistService,
		defaultSlotLimit: defaultSlotLimit,
	}
}

// Join handles POST /api/v1/events/:id/waitlist
func (h *WaitlistHandler) Join(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	entry, err := h.waitlistService.Join(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, dto.NewWaitlistEntryResponse(entry))
}

// Leave handles DELETE /api/v1/events/:id/waitlist
func (h *WaitlistHandler) Leave(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.Unauthorized(c, "authentication required")
		return
	}

	if err := h.waitlistService.Leave(c.Request.Context(), userID, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"left": true})
}

// Promote handles POST /api/v1/events/:id/waitlist/promote. Typically driven
// by an operator or a capacity-freed hook rather than end users.
func (h *WaitlistHandler) Promote(c *gin.Context) {
	var req dto.PromoteRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, "invalid request body: "+err.Error())
			return
		}
	}
	slots := req.Slots
	if slots <= 0 {
		slots = h.defaultSlotLimit
	}

	results, err := h.waitlistService.Promote(c.Request.Context(), c.Param("id"), slots)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"results": dto.NewPromotionResults(results)})
}

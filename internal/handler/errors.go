package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/response"
)

// respondError maps domain errors onto the HTTP error envelope
func respondError(c *gin.Context, err error) {
	switch {
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())

	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())

	case errors.Is(err, domain.ErrInsufficientCapacity):
		var capErr *domain.InsufficientCapacityError
		var details interface{}
		if errors.As(err, &capErr) {
			details = gin.H{
				"requested": capErr.Requested,
				"available": capErr.Available,
			}
		}
		response.Conflict(c, "INSUFFICIENT_CAPACITY", "not enough capacity available", details)

	case errors.Is(err, domain.ErrSeatUnavailable):
		var seatErr *domain.SeatUnavailableError
		var details interface{}
		if errors.As(err, &seatErr) {
			details = gin.H{"unavailable_seats": seatErr.SeatIDs}
		}
		response.Conflict(c, "SEAT_UNAVAILABLE", "one or more seats unavailable", details)

	case errors.Is(err, domain.ErrPastDeadline):
		response.Conflict(c, "PAST_DEADLINE", "sales deadline has passed", nil)

	case errors.Is(err, domain.ErrAlreadyCancelled):
		response.Conflict(c, "ALREADY_CANCELLED", "reservation already cancelled", nil)

	case errors.Is(err, domain.ErrAlreadyWaitlisted):
		response.Conflict(c, "ALREADY_WAITLISTED", "already on the waitlist", nil)

	case domain.IsTransientError(err):
		// The bounded retry loop was exhausted; the client may try again
		response.Error(c, http.StatusServiceUnavailable, "CONFLICT_RETRY", "high contention, please retry", nil)

	default:
		response.InternalError(c, err)
	}
}

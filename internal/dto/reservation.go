package dto

import (
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

// ReserveRequest is the body for quantity-based reservation requests
type ReserveRequest struct {
	EventID  string `json:"event_id" binding:"required"`
	Quantity int    `json:"quantity" binding:"required,min=1"`
}

// ReservationResponse is the API view of a reservation
type ReservationResponse struct {
	ID          string     `json:"id"`
	EventID     string     `json:"event_id"`
	Quantity    int        `json:"quantity"`
	SeatIDs     []string   `json:"seat_ids,omitempty"`
	Status      string     `json:"status"`
	UnitPrice   float64    `json:"unit_price"`
	TotalPrice  float64    `json:"total_price"`
	ConfirmedAt time.Time  `json:"confirmed_at"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// NewReservationResponse converts a domain reservation to its API view
func NewReservationResponse(res *domain.Reservation) *ReservationResponse {
	return &ReservationResponse{
		ID:          res.ID,
		EventID:     res.EventID,
		Quantity:    res.Quantity,
		SeatIDs:     res.SeatIDs,
		Status:      res.Status.String(),
		UnitPrice:   res.UnitPrice,
		TotalPrice:  res.TotalPrice,
		ConfirmedAt: res.ConfirmedAt,
		CancelledAt: res.CancelledAt,
		CreatedAt:   res.CreatedAt,
	}
}

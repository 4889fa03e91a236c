package dto

import (
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

// SubmitSeatJobRequest is the body for asynchronous seat booking requests
type SubmitSeatJobRequest struct {
	EventID string   `json:"event_id" binding:"required"`
	SeatIDs []string `json:"seat_ids" binding:"required,min=1"`
}

// SeatJobResponse is the API view of a reservation job, including the
// terminal result once recorded.
type SeatJobResponse struct {
	ID          string    `json:"id"`
	EventID     string    `json:"event_id"`
	SeatIDs     []string  `json:"seat_ids"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	SubmittedAt time.Time `json:"submitted_at"`

	ReservationID    string     `json:"reservation_id,omitempty"`
	TotalPrice       float64    `json:"total_price,omitempty"`
	FailureCode      string     `json:"failure_code,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	UnavailableSeats []string   `json:"unavailable_seats,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// NewSeatJobResponse converts a domain job to its API view
func NewSeatJobResponse(job *domain.ReservationJob) *SeatJobResponse {
	return &SeatJobResponse{
		ID:               job.ID,
		EventID:          job.EventID,
		SeatIDs:          job.SeatIDs,
		Status:           string(job.Status),
		Attempts:         job.Attempts,
		SubmittedAt:      job.SubmittedAt,
		ReservationID:    job.ReservationID,
		TotalPrice:       job.TotalPrice,
		FailureCode:      job.FailureCode,
		FailureReason:    job.FailureReason,
		UnavailableSeats: job.UnavailableSeats,
		CompletedAt:      job.CompletedAt,
	}
}

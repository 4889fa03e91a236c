package domain

import (
	"time"
)

// ReservationStatus represents the lifecycle state of a reservation.
// Transitions only move forward: PENDING -> CONFIRMED -> CANCELLED.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// String returns the string representation of the status
func (s ReservationStatus) String() string {
	return string(s)
}

// Reservation is a committed claim on inventory, either quantity against the
// whole-event pool or a fixed set of seats.
type Reservation struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	EventID        string            `json:"event_id"`
	Quantity       int               `json:"quantity"`
	SeatIDs        []string          `json:"seat_ids,omitempty"`
	Status         ReservationStatus `json:"status"`
	IdempotencyKey string            `json:"idempotency_key,omitempty"`
	UnitPrice      float64           `json:"unit_price"`
	TotalPrice     float64           `json:"total_price"`
	// ReservedVersion is the event version produced by the decrement that
	// committed this reservation.
	ReservedVersion int64      `json:"reserved_version"`
	ConfirmedAt     time.Time  `json:"confirmed_at"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// BelongsToUser checks if the reservation belongs to the given user
func (r *Reservation) BelongsToUser(userID string) bool {
	return r.UserID == userID
}

// IsConfirmed checks if the reservation is confirmed
func (r *Reservation) IsConfirmed() bool {
	return r.Status == ReservationStatusConfirmed
}

// IsCancelled checks if the reservation is cancelled
func (r *Reservation) IsCancelled() bool {
	return r.Status == ReservationStatusCancelled
}

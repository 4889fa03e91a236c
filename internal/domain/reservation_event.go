package domain

import (
	"time"
)

// ReservationEventType identifies the kind of lifecycle event published after
// a commit. Consumers (notification dispatcher, analytics) are fire-and-forget.
type ReservationEventType string

const (
	ReservationEventConfirmed   ReservationEventType = "reservation.confirmed"
	ReservationEventCancelled   ReservationEventType = "reservation.cancelled"
	ReservationEventSeatsBooked ReservationEventType = "reservation.seats_booked"
	WaitlistEventPromoted       ReservationEventType = "waitlist.promoted"
)

// ReservationEvent is the wire payload for lifecycle topics.
type ReservationEvent struct {
	EventType  ReservationEventType `json:"event_type"`
	OccurredAt time.Time            `json:"occurred_at"`
	UserID     string               `json:"user_id"`
	EventID    string               `json:"event_id"`

	ReservationID string   `json:"reservation_id,omitempty"`
	Quantity      int      `json:"quantity,omitempty"`
	SeatIDs       []string `json:"seat_ids,omitempty"`
	TotalPrice    float64  `json:"total_price,omitempty"`
	ClaimToken    string   `json:"claim_token,omitempty"`
}

package domain

import (
	"time"
)

// Event is the bookable inventory unit: a fixed pool of sellable capacity,
// optionally broken down into individually numbered seats.
type Event struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	BasePrice     float64   `json:"base_price"`
	TotalCapacity int       `json:"total_capacity"`
	Available     int       `json:"available"`
	Version       int64     `json:"version"`
	SalesDeadline time.Time `json:"sales_deadline"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SalesClosed reports whether the event's effective booking window has passed.
func (e *Event) SalesClosed(now time.Time) bool {
	return !e.SalesDeadline.IsZero() && now.After(e.SalesDeadline)
}

// Section groups seats within a venue layout and carries the price multiplier
// applied on top of the event base price.
type Section struct {
	ID              string  `json:"id"`
	EventID         string  `json:"event_id"`
	Name            string  `json:"name"`
	PriceMultiplier float64 `json:"price_multiplier"`
}

// Seat is a single numbered unit. Blocked seats are administratively reserved
// and never bookable. A seat holds at most one confirmed reservation link.
type Seat struct {
	ID        string `json:"id"`
	SectionID string `json:"section_id"`
	Label     string `json:"label"`
	Blocked   bool   `json:"blocked"`
}

// SeatState is the re-validated view of a seat read inside the seat lock,
// immediately before commit.
type SeatState struct {
	Seat
	PriceMultiplier      float64 `json:"price_multiplier"`
	ConfirmedReservation string  `json:"confirmed_reservation,omitempty"`
}

// Bookable reports whether the seat can be committed right now.
func (s *SeatState) Bookable() bool {
	return !s.Blocked && s.ConfirmedReservation == ""
}

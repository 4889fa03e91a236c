package domain

import (
	"time"
)

// WaitlistStatus represents the state of a waitlist entry
type WaitlistStatus string

const (
	WaitlistStatusActive   WaitlistStatus = "active"
	WaitlistStatusPromoted WaitlistStatus = "promoted"
	WaitlistStatusExpired  WaitlistStatus = "expired"
)

// WaitlistEntry is one user's place in line for a sold-out event. Active
// positions per event are always a dense 1..N sequence: any removal renumbers
// every higher position down by one in the same transaction.
type WaitlistEntry struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	EventID   string         `json:"event_id"`
	Position  int            `json:"position"`
	Status    WaitlistStatus `json:"status"`
	JoinedAt  time.Time      `json:"joined_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// PromotionResult reports the outcome of promoting a single waitlist entry.
// A failed entry never blocks the remaining entries of the same call.
type PromotionResult struct {
	UserID        string `json:"user_id"`
	ReservationID string `json:"reservation_id,omitempty"`
	ClaimToken    string `json:"claim_token,omitempty"`
	Err           error  `json:"-"`
	ErrorMessage  string `json:"error,omitempty"`
}

// Promoted reports whether this entry was converted into a reservation.
func (p *PromotionResult) Promoted() bool {
	return p.Err == nil && p.ReservationID != ""
}

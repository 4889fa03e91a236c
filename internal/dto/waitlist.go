package dto

import (
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

// WaitlistEntryResponse is the API view of a waitlist entry
type WaitlistEntryResponse struct {
	ID       string    `json:"id"`
	EventID  string    `json:"event_id"`
	Position int       `json:"position"`
	Status   string    `json:"status"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewWaitlistEntryResponse converts a domain entry to its API view
func NewWaitlistEntryResponse(entry *domain.WaitlistEntry) *WaitlistEntryResponse {
	return &WaitlistEntryResponse{
		ID:       entry.ID,
		EventID:  entry.EventID,
		Position: entry.Position,
		Status:   string(entry.Status),
		JoinedAt: entry.JoinedAt,
	}
}

// PromoteRequest is the body for waitlist promotion requests
type PromoteRequest struct {
	Slots int `json:"slots" binding:"omitempty,min=1"`
}

// PromotionResultResponse reports one entry's promotion outcome
type PromotionResultResponse struct {
	UserID        string `json:"user_id"`
	ReservationID string `json:"reservation_id,omitempty"`
	ClaimToken    string `json:"claim_token,omitempty"`
	Error         string `json:"error,omitempty"`
}

// NewPromotionResults converts domain promotion results to their API view
func NewPromotionResults(results []domain.PromotionResult) []PromotionResultResponse {
	out := make([]PromotionResultResponse, 0, len(results))
	for i := range results {
		out = append(out, PromotionResultResponse{
			UserID:        results[i].UserID,
			ReservationID: results[i].ReservationID,
			ClaimToken:    results[i].ClaimToken,
			Error:         results[i].ErrorMessage,
		})
	}
	return out
}

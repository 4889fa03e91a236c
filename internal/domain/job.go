package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// JobStatus represents the lifecycle of a seat reservation job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Failure codes recorded on terminal jobs
const (
	JobFailureSeatUnavailable      = "SEAT_UNAVAILABLE"
	JobFailureLockContended        = "LOCK_CONTENDED"
	JobFailureInsufficientCapacity = "INSUFFICIENT_CAPACITY"
	JobFailurePastDeadline         = "PAST_DEADLINE"
	JobFailureInternal             = "INTERNAL_ERROR"
)

// ReservationJob is an accepted seat-mode booking request awaiting asynchronous
// processing. Once a terminal result is recorded the job is immutable.
type ReservationJob struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	EventID        string    `json:"event_id"`
	SeatIDs        []string  `json:"seat_ids"`
	IdempotencyKey string    `json:"idempotency_key"`
	Status         JobStatus `json:"status"`
	Attempts       int       `json:"attempts"`
	SubmittedAt    time.Time `json:"submitted_at"`

	// Terminal result, set exactly once
	ReservationID    string     `json:"reservation_id,omitempty"`
	TotalPrice       float64    `json:"total_price,omitempty"`
	FailureCode      string     `json:"failure_code,omitempty"`
	FailureReason    string     `json:"failure_reason,omitempty"`
	UnavailableSeats []string   `json:"unavailable_seats,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// IsTerminal reports whether a result has been recorded.
func (j *ReservationJob) IsTerminal() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}

// Validate validates the job submission fields
func (j *ReservationJob) Validate() error {
	if j.UserID == "" {
		return ErrInvalidUserID
	}
	if j.EventID == "" {
		return ErrInvalidEventID
	}
	if len(j.SeatIDs) == 0 {
		return ErrInvalidSeatIDs
	}
	return nil
}

// NewReservationJob builds a job with a deterministic identity so accidental
// duplicate submissions (double click, client retry within the same second)
// collapse onto one job.
func NewReservationJob(userID, eventID string, seatIDs []string, idempotencyKey string, submittedAt time.Time) *ReservationJob {
	sorted := SortedSeatIDs(seatIDs)
	return &ReservationJob{
		ID:             deriveJobID(userID, eventID, sorted, submittedAt),
		UserID:         userID,
		EventID:        eventID,
		SeatIDs:        sorted,
		IdempotencyKey: idempotencyKey,
		Status:         JobStatusQueued,
		SubmittedAt:    submittedAt,
	}
}

// SortedSeatIDs returns a deduplicated, sorted copy of the seat id set, the
// canonical ordering used for both job identity and lock keys.
func SortedSeatIDs(seatIDs []string) []string {
	seen := make(map[string]struct{}, len(seatIDs))
	out := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// deriveJobID hashes (user, event, sorted seats, second-truncated timestamp).
func deriveJobID(userID, eventID string, sortedSeatIDs []string, submittedAt time.Time) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(eventID))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(sortedSeatIDs, ",")))
	h.Write([]byte{0})
	h.Write([]byte(submittedAt.UTC().Truncate(time.Second).Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

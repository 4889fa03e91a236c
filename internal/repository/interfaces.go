package repository

import (
	"context"
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

// EventRepository reads inventory units. All capacity mutations go through
// the version-guarded writes owned by ReservationRepository and
// WaitlistRepository; nothing else touches available/version.
type EventRepository interface {
	// GetByID returns the event including its current available capacity and version
	GetByID(ctx context.Context, id string) (*domain.Event, error)
}

// ReservationRepository owns reservation rows and the version-guarded
// capacity writes that accompany them.
type ReservationRepository interface {
	// GetByID retrieves a reservation by its ID
	GetByID(ctx context.Context, id string) (*domain.Reservation, error)

	// GetByIdempotencyKey returns the reservation committed for
	// (userID, key), or nil when none exists.
	GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Reservation, error)

	// CreateWithCapacityDecrement commits, in one transaction, the guarded
	// capacity decrement and the reservation row. Returns false without
	// writing anything when the version guard matched zero rows.
	CreateWithCapacityDecrement(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error)

	// CreateWithSeats commits, in one transaction, the reservation row, one
	// link per seat and the guarded capacity decrement. A seat that already
	// holds a confirmed link makes the whole transaction roll back and is
	// reported in unavailable. committed=false with empty unavailable means
	// the version guard failed.
	CreateWithSeats(ctx context.Context, res *domain.Reservation, expectedVersion int64) (committed bool, unavailable []string, err error)

	// CancelWithCapacityRelease flips CONFIRMED->CANCELLED and releases the
	// reservation's quantity back to the event under the same version guard.
	// Returns false when the guard matched zero rows.
	CancelWithCapacityRelease(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error)
}

// SeatRepository reads seat state for the locked re-validation pass.
type SeatRepository interface {
	// GetStates returns the current state of every requested seat, including
	// the section price multiplier and any active confirmed reservation link.
	// Missing seat ids yield domain.ErrSeatNotFound.
	GetStates(ctx context.Context, eventID string, seatIDs []string) ([]domain.SeatState, error)
}

// WaitlistRepository owns waitlist entries and their dense-position invariant.
type WaitlistRepository interface {
	// Join appends the user at position N+1 in one transaction
	Join(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error)

	// Leave removes the user's active entry and renumbers every higher
	// position down by one in the same transaction
	Leave(ctx context.Context, userID, eventID string) error

	// TopActive returns up to limit active entries ordered by position
	TopActive(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error)

	// Promote commits one entry's promotion in its own transaction: the
	// guarded capacity decrement, the confirmed reservation row, the entry
	// status flip and the renumbering of the remaining active entries.
	// Returns false when the version guard matched zero rows.
	Promote(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error)
}

// JobRepository owns the durable reservation job records.
type JobRepository interface {
	// Create inserts the job row; a duplicate id is not an error and reports
	// created=false so duplicate submissions collapse onto one job.
	Create(ctx context.Context, job *domain.ReservationJob) (created bool, err error)

	// GetByID retrieves a job by its ID
	GetByID(ctx context.Context, id string) (*domain.ReservationJob, error)

	// MarkRunning records the start of a processing attempt
	MarkRunning(ctx context.Context, id string, attempt int) error

	// CompleteSuccess records the terminal success result exactly once
	CompleteSuccess(ctx context.Context, id, reservationID string, totalPrice float64) error

	// CompleteFailure records the terminal failure result exactly once
	CompleteFailure(ctx context.Context, id, code, reason string, unavailableSeats []string) error

	// Requeue resets a transiently failed job back to queued
	Requeue(ctx context.Context, id string) error
}

// JobQueue is the at-least-once hand-off between submission and the worker
// pool, with delayed re-delivery for backoff retries.
type JobQueue interface {
	// Enqueue pushes a job id onto the ready queue
	Enqueue(ctx context.Context, jobID string) error

	// Dequeue blocks up to timeout for the next ready job id
	Dequeue(ctx context.Context, timeout time.Duration) (jobID string, ok bool, err error)

	// EnqueueDelayed schedules a job id for re-delivery after delay
	EnqueueDelayed(ctx context.Context, jobID string, delay time.Duration) error

	// MoveDue moves delayed jobs whose time has come onto the ready queue
	MoveDue(ctx context.Context, now time.Time) (int, error)

	// Depth returns the current ready-queue length
	Depth(ctx context.Context) (int64, error)
}

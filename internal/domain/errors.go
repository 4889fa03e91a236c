package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors
var (
	// Capacity errors
	ErrInsufficientCapacity = errors.New("insufficient capacity available")
	ErrVersionConflict      = errors.New("concurrent update conflict, please retry")
	ErrPastDeadline         = errors.New("sales deadline has passed")

	// Reservation errors
	ErrReservationNotFound = errors.New("reservation not found")
	ErrReservationExists   = errors.New("reservation already exists for this idempotency key")
	ErrAlreadyCancelled    = errors.New("reservation already cancelled")
	ErrAlreadyConfirmed    = errors.New("reservation already confirmed")

	// Seat errors
	ErrSeatUnavailable = errors.New("one or more seats unavailable")
	ErrLockContended   = errors.New("seats are being booked by another request, please retry")

	// Entity errors
	ErrEventNotFound     = errors.New("event not found")
	ErrSeatNotFound      = errors.New("seat not found")
	ErrJobNotFound       = errors.New("reservation job not found")
	ErrWaitlistNotFound  = errors.New("waitlist entry not found")
	ErrAlreadyWaitlisted = errors.New("user is already on the waitlist")

	// Validation errors
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrInvalidEventID  = errors.New("invalid event id")
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	ErrInvalidSeatIDs  = errors.New("at least one seat id is required")
	ErrInvalidSlots    = errors.New("slots must be greater than zero")
)

// InsufficientCapacityError carries the current availability so callers can
// react without re-querying.
type InsufficientCapacityError struct {
	EventID   string
	Requested int
	Available int
}

func (e *InsufficientCapacityError) Error() string {
	return fmt.Sprintf("insufficient capacity for event %s: requested %d, available %d",
		e.EventID, e.Requested, e.Available)
}

func (e *InsufficientCapacityError) Is(target error) bool {
	return target == ErrInsufficientCapacity
}

// SeatUnavailableError lists the specific conflicting seats of a seat-mode
// request. The whole request is rejected, never partially booked.
type SeatUnavailableError struct {
	SeatIDs []string
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %s", strings.Join(e.SeatIDs, ", "))
}

func (e *SeatUnavailableError) Is(target error) bool {
	return target == ErrSeatUnavailable
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrSeatNotFound) ||
		errors.Is(err, ErrJobNotFound) ||
		errors.Is(err, ErrWaitlistNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidQuantity) ||
		errors.Is(err, ErrInvalidSeatIDs) ||
		errors.Is(err, ErrInvalidSlots)
}

// IsConflictError checks if the error is a business conflict the caller must
// re-decide, as opposed to a transient condition worth an automatic retry.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrInsufficientCapacity) ||
		errors.Is(err, ErrSeatUnavailable) ||
		errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrAlreadyConfirmed) ||
		errors.Is(err, ErrAlreadyWaitlisted) ||
		errors.Is(err, ErrPastDeadline)
}

// IsTransientError reports whether a bounded retry may succeed.
func IsTransientError(err error) bool {
	return errors.Is(err, ErrVersionConflict) || errors.Is(err, ErrLockContended)
}

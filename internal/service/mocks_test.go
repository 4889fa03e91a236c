package service

import (
	"context"
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/repository"
)

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	GetByIDFunc func(ctx context.Context, id string) (*domain.Event, error)
}

func (m *MockEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrEventNotFound
}

// MockReservationRepository is a mock implementation of ReservationRepository
type MockReservationRepository struct {
	GetByIDFunc                     func(ctx context.Context, id string) (*domain.Reservation, error)
	GetByIdempotencyKeyFunc         func(ctx context.Context, userID, key string) (*domain.Reservation, error)
	CreateWithCapacityDecrementFunc func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error)
	CreateWithSeatsFunc             func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, []string, error)
	CancelWithCapacityReleaseFunc   func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error)
}

func (m *MockReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrReservationNotFound
}

func (m *MockReservationRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Reservation, error) {
	if m.GetByIdempotencyKeyFunc != nil {
		return m.GetByIdempotencyKeyFunc(ctx, userID, key)
	}
	return nil, nil
}

func (m *MockReservationRepository) CreateWithCapacityDecrement(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
	if m.CreateWithCapacityDecrementFunc != nil {
		return m.CreateWithCapacityDecrementFunc(ctx, res, expectedVersion)
	}
	return true, nil
}

func (m *MockReservationRepository) CreateWithSeats(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, []string, error) {
	if m.CreateWithSeatsFunc != nil {
		return m.CreateWithSeatsFunc(ctx, res, expectedVersion)
	}
	return true, nil, nil
}

func (m *MockReservationRepository) CancelWithCapacityRelease(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
	if m.CancelWithCapacityReleaseFunc != nil {
		return m.CancelWithCapacityReleaseFunc(ctx, res, expectedVersion)
	}
	return true, nil
}

// MockWaitlistRepository is a mock implementation of WaitlistRepository
type MockWaitlistRepository struct {
	JoinFunc      func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error)
	LeaveFunc     func(ctx context.Context, userID, eventID string) error
	TopActiveFunc func(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error)
	PromoteFunc   func(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error)
}

func (m *MockWaitlistRepository) Join(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
	if m.JoinFunc != nil {
		return m.JoinFunc(ctx, userID, eventID)
	}
	return &domain.WaitlistEntry{UserID: userID, EventID: eventID, Position: 1, Status: domain.WaitlistStatusActive}, nil
}

func (m *MockWaitlistRepository) Leave(ctx context.Context, userID, eventID string) error {
	if m.LeaveFunc != nil {
		return m.LeaveFunc(ctx, userID, eventID)
	}
	return nil
}

func (m *MockWaitlistRepository) TopActive(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
	if m.TopActiveFunc != nil {
		return m.TopActiveFunc(ctx, eventID, limit)
	}
	return nil, nil
}

func (m *MockWaitlistRepository) Promote(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error) {
	if m.PromoteFunc != nil {
		return m.PromoteFunc(ctx, entry, res, expectedVersion)
	}
	return true, nil
}

// MockJobRepository is a mock implementation of JobRepository
type MockJobRepository struct {
	CreateFunc          func(ctx context.Context, job *domain.ReservationJob) (bool, error)
	GetByIDFunc         func(ctx context.Context, id string) (*domain.ReservationJob, error)
	MarkRunningFunc     func(ctx context.Context, id string, attempt int) error
	CompleteSuccessFunc func(ctx context.Context, id, reservationID string, totalPrice float64) error
	CompleteFailureFunc func(ctx context.Context, id, code, reason string, unavailableSeats []string) error
	RequeueFunc         func(ctx context.Context, id string) error
}

func (m *MockJobRepository) Create(ctx context.Context, job *domain.ReservationJob) (bool, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, job)
	}
	return true, nil
}

func (m *MockJobRepository) GetByID(ctx context.Context, id string) (*domain.ReservationJob, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, domain.ErrJobNotFound
}

func (m *MockJobRepository) MarkRunning(ctx context.Context, id string, attempt int) error {
	if m.MarkRunningFunc != nil {
		return m.MarkRunningFunc(ctx, id, attempt)
	}
	return nil
}

func (m *MockJobRepository) CompleteSuccess(ctx context.Context, id, reservationID string, totalPrice float64) error {
	if m.CompleteSuccessFunc != nil {
		return m.CompleteSuccessFunc(ctx, id, reservationID, totalPrice)
	}
	return nil
}

func (m *MockJobRepository) CompleteFailure(ctx context.Context, id, code, reason string, unavailableSeats []string) error {
	if m.CompleteFailureFunc != nil {
		return m.CompleteFailureFunc(ctx, id, code, reason, unavailableSeats)
	}
	return nil
}

func (m *MockJobRepository) Requeue(ctx context.Context, id string) error {
	if m.RequeueFunc != nil {
		return m.RequeueFunc(ctx, id)
	}
	return nil
}

// MockJobQueue is a mock implementation of JobQueue
type MockJobQueue struct {
	EnqueueFunc        func(ctx context.Context, jobID string) error
	DequeueFunc        func(ctx context.Context, timeout time.Duration) (string, bool, error)
	EnqueueDelayedFunc func(ctx context.Context, jobID string, delay time.Duration) error
	MoveDueFunc        func(ctx context.Context, now time.Time) (int, error)
	DepthFunc          func(ctx context.Context) (int64, error)
}

func (m *MockJobQueue) Enqueue(ctx context.Context, jobID string) error {
	if m.EnqueueFunc != nil {
		return m.EnqueueFunc(ctx, jobID)
	}
	return nil
}

func (m *MockJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	if m.DequeueFunc != nil {
		return m.DequeueFunc(ctx, timeout)
	}
	return "", false, nil
}

func (m *MockJobQueue) EnqueueDelayed(ctx context.Context, jobID string, delay time.Duration) error {
	if m.EnqueueDelayedFunc != nil {
		return m.EnqueueDelayedFunc(ctx, jobID, delay)
	}
	return nil
}

func (m *MockJobQueue) MoveDue(ctx context.Context, now time.Time) (int, error) {
	if m.MoveDueFunc != nil {
		return m.MoveDueFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockJobQueue) Depth(ctx context.Context) (int64, error) {
	if m.DepthFunc != nil {
		return m.DepthFunc(ctx)
	}
	return 0, nil
}

// Ensure mocks implement their interfaces
var (
	_ repository.EventRepository       = (*MockEventRepository)(nil)
	_ repository.ReservationRepository = (*MockReservationRepository)(nil)
	_ repository.WaitlistRepository    = (*MockWaitlistRepository)(nil)
	_ repository.JobRepository         = (*MockJobRepository)(nil)
	_ repository.JobQueue              = (*MockJobQueue)(nil)
)

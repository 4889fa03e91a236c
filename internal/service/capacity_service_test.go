package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

func openEvent(available int, version int64) *domain.Event {
	return &domain.Event{
		ID:            "event-001",
		Name:          "Test Event",
		BasePrice:     50.00,
		TotalCapacity: 100,
		Available:     available,
		Version:       version,
		SalesDeadline: time.Now().Add(24 * time.Hour),
	}
}

func TestCapacityService_Reserve(t *testing.T) {
	tests := []struct {
		name           string
		userID         string
		eventID        string
		quantity       int
		idempotencyKey string
		setupMocks     func(*MockEventRepository, *MockReservationRepository)
		wantErr        error
		wantQuantity   int
	}{
		{
			name:     "successful reservation",
			userID:   "user-001",
			eventID:  "event-001",
			quantity: 2,
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(10, 5), nil
				}
				rr.CreateWithCapacityDecrementFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					if expectedVersion != 5 {
						t.Errorf("expectedVersion = %d, want 5", expectedVersion)
					}
					return true, nil
				}
			},
			wantQuantity: 2,
		},
		{
			name:           "idempotent replay returns existing reservation",
			userID:         "user-001",
			eventID:        "event-001",
			quantity:       2,
			idempotencyKey: "key-123",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				rr.GetByIdempotencyKeyFunc = func(ctx context.Context, userID, key string) (*domain.Reservation, error) {
					return &domain.Reservation{
						ID:       "existing-res",
						UserID:   userID,
						Quantity: 3,
						Status:   domain.ReservationStatusConfirmed,
					}, nil
				}
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					t.Error("event should not be read on idempotent replay")
					return nil, domain.ErrEventNotFound
				}
			},
			wantQuantity: 3,
		},
		{
			name:     "insufficient capacity",
			userID:   "user-001",
			eventID:  "event-001",
			quantity: 5,
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(3, 1), nil
				}
			},
			wantErr: domain.ErrInsufficientCapacity,
		},
		{
			name:     "past sales deadline",
			userID:   "user-001",
			eventID:  "event-001",
			quantity: 1,
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					e := openEvent(10, 1)
					e.SalesDeadline = time.Now().Add(-time.Hour)
					return e, nil
				}
			},
			wantErr: domain.ErrPastDeadline,
		},
		{
			name:     "version conflict resolved on retry",
			userID:   "user-001",
			eventID:  "event-001",
			quantity: 1,
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				version := int64(1)
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					version++
					return openEvent(10, version), nil
				}
				calls := 0
				rr.CreateWithCapacityDecrementFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					calls++
					return calls > 1, nil
				}
			},
			wantQuantity: 1,
		},
		{
			name:     "retries exhausted",
			userID:   "user-001",
			eventID:  "event-001",
			quantity: 1,
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(10, 1), nil
				}
				rr.CreateWithCapacityDecrementFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					return false, nil
				}
			},
			wantErr: domain.ErrVersionConflict,
		},
		{
			name:           "duplicate key race replays winner",
			userID:         "user-001",
			eventID:        "event-001",
			quantity:       2,
			idempotencyKey: "key-456",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(10, 1), nil
				}
				checked := false
				rr.GetByIdempotencyKeyFunc = func(ctx context.Context, userID, key string) (*domain.Reservation, error) {
					if !checked {
						checked = true
						return nil, nil
					}
					return &domain.Reservation{ID: "winner", UserID: userID, Quantity: 2}, nil
				}
				rr.CreateWithCapacityDecrementFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					return false, domain.ErrReservationExists
				}
			},
			wantQuantity: 2,
		},
		{
			name:     "event not found",
			userID:   "user-001",
			eventID:  "missing",
			quantity: 1,
			wantErr:  domain.ErrEventNotFound,
		},
		{
			name:     "missing user id",
			userID:   "",
			eventID:  "event-001",
			quantity: 1,
			wantErr:  domain.ErrInvalidUserID,
		},
		{
			name:     "missing event id",
			userID:   "user-001",
			eventID:  "",
			quantity: 1,
			wantErr:  domain.ErrInvalidEventID,
		},
		{
			name:     "zero quantity",
			userID:   "user-001",
			eventID:  "event-001",
			quantity: 0,
			wantErr:  domain.ErrInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventRepo := &MockEventRepository{}
			reservationRepo := &MockReservationRepository{}
			if tt.setupMocks != nil {
				tt.setupMocks(eventRepo, reservationRepo)
			}

			svc := NewCapacityService(eventRepo, reservationRepo, nil, nil, 3)

			res, err := svc.Reserve(context.Background(), tt.userID, tt.eventID, tt.quantity, tt.idempotencyKey)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Reserve() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Reserve() unexpected error = %v", err)
			}
			if res.Quantity != tt.wantQuantity {
				t.Errorf("Reserve() quantity = %d, want %d", res.Quantity, tt.wantQuantity)
			}
		})
	}
}

func TestCapacityService_Reserve_PricesFromBasePrice(t *testing.T) {
	eventRepo := &MockEventRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
			return openEvent(10, 1), nil
		},
	}
	reservationRepo := &MockReservationRepository{}

	svc := NewCapacityService(eventRepo, reservationRepo, nil, nil, 3)

	res, err := svc.Reserve(context.Background(), "user-001", "event-001", 4, "")
	if err != nil {
		t.Fatalf("Reserve() unexpected error = %v", err)
	}
	if res.UnitPrice != 50.00 {
		t.Errorf("unit price = %v, want 50.00", res.UnitPrice)
	}
	if res.TotalPrice != 200.00 {
		t.Errorf("total price = %v, want 200.00", res.TotalPrice)
	}
	if res.Status != domain.ReservationStatusConfirmed {
		t.Errorf("status = %v, want confirmed", res.Status)
	}
}

func TestCapacityService_Cancel(t *testing.T) {
	confirmed := func() *domain.Reservation {
		return &domain.Reservation{
			ID:       "res-001",
			UserID:   "user-001",
			EventID:  "event-001",
			Quantity: 2,
			Status:   domain.ReservationStatusConfirmed,
		}
	}

	tests := []struct {
		name          string
		userID        string
		reservationID string
		setupMocks    func(*MockEventRepository, *MockReservationRepository)
		wantErr       error
	}{
		{
			name:          "successful cancellation",
			userID:        "user-001",
			reservationID: "res-001",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				rr.GetByIDFunc = func(ctx context.Context, id string) (*domain.Reservation, error) {
					return confirmed(), nil
				}
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(5, 7), nil
				}
				rr.CancelWithCapacityReleaseFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					if expectedVersion != 7 {
						t.Errorf("expectedVersion = %d, want 7", expectedVersion)
					}
					return true, nil
				}
			},
		},
		{
			name:          "already cancelled",
			userID:        "user-001",
			reservationID: "res-001",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				rr.GetByIDFunc = func(ctx context.Context, id string) (*domain.Reservation, error) {
					r := confirmed()
					r.Status = domain.ReservationStatusCancelled
					return r, nil
				}
			},
			wantErr: domain.ErrAlreadyCancelled,
		},
		{
			name:          "other user's reservation is invisible",
			userID:        "user-999",
			reservationID: "res-001",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				rr.GetByIDFunc = func(ctx context.Context, id string) (*domain.Reservation, error) {
					return confirmed(), nil
				}
			},
			wantErr: domain.ErrReservationNotFound,
		},
		{
			name:          "version conflict resolved on retry",
			userID:        "user-001",
			reservationID: "res-001",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				rr.GetByIDFunc = func(ctx context.Context, id string) (*domain.Reservation, error) {
					return confirmed(), nil
				}
				version := int64(1)
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					version++
					return openEvent(5, version), nil
				}
				calls := 0
				rr.CancelWithCapacityReleaseFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					calls++
					return calls > 1, nil
				}
			},
		},
		{
			name:          "retries exhausted",
			userID:        "user-001",
			reservationID: "res-001",
			setupMocks: func(er *MockEventRepository, rr *MockReservationRepository) {
				rr.GetByIDFunc = func(ctx context.Context, id string) (*domain.Reservation, error) {
					return confirmed(), nil
				}
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(5, 1), nil
				}
				rr.CancelWithCapacityReleaseFunc = func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
					return false, nil
				}
			},
			wantErr: domain.ErrVersionConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventRepo := &MockEventRepository{}
			reservationRepo := &MockReservationRepository{}
			if tt.setupMocks != nil {
				tt.setupMocks(eventRepo, reservationRepo)
			}

			svc := NewCapacityService(eventRepo, reservationRepo, nil, nil, 3)

			res, err := svc.Cancel(context.Background(), tt.userID, tt.reservationID)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Cancel() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Cancel() unexpected error = %v", err)
			}
			if !res.IsCancelled() {
				t.Errorf("Cancel() status = %v, want cancelled", res.Status)
			}
			if res.CancelledAt == nil {
				t.Error("Cancel() cancelled_at not set")
			}
		})
	}
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

const testSecret = "test-secret"

func newWaitlistService(er *MockEventRepository, wr *MockWaitlistRepository, rr *MockReservationRepository) *WaitlistService {
	return NewWaitlistService(er, wr, rr, nil, nil, testSecret, "test-issuer", 15*time.Minute, 3)
}

func activeEntries(users ...string) []*domain.WaitlistEntry {
	entries := make([]*domain.WaitlistEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, &domain.WaitlistEntry{
			ID:       "entry-" + u,
			UserID:   u,
			EventID:  "event-001",
			Position: i + 1,
			Status:   domain.WaitlistStatusActive,
		})
	}
	return entries
}

func TestWaitlistService_Join(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		eventID    string
		setupMocks func(*MockEventRepository, *MockWaitlistRepository)
		wantErr    error
		wantPos    int
	}{
		{
			name:    "joined at back of line",
			userID:  "user-001",
			eventID: "event-001",
			setupMocks: func(er *MockEventRepository, wr *MockWaitlistRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(0, 1), nil
				}
				wr.JoinFunc = func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
					return &domain.WaitlistEntry{UserID: userID, EventID: eventID, Position: 4, Status: domain.WaitlistStatusActive}, nil
				}
			},
			wantPos: 4,
		},
		{
			name:    "already waitlisted",
			userID:  "user-001",
			eventID: "event-001",
			setupMocks: func(er *MockEventRepository, wr *MockWaitlistRepository) {
				er.GetByIDFunc = func(ctx context.Context, id string) (*domain.Event, error) {
					return openEvent(0, 1), nil
				}
				wr.JoinFunc = func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
					return nil, domain.ErrAlreadyWaitlisted
				}
			},
			wantErr: domain.ErrAlreadyWaitlisted,
		},
		{
			name:    "unknown event",
			userID:  "user-001",
			eventID: "missing",
			wantErr: domain.ErrEventNotFound,
		},
		{
			name:    "missing user id",
			userID:  "",
			eventID: "event-001",
			wantErr: domain.ErrInvalidUserID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eventRepo := &MockEventRepository{}
			waitlistRepo := &MockWaitlistRepository{}
			if tt.setupMocks != nil {
				tt.setupMocks(eventRepo, waitlistRepo)
			}

			svc := newWaitlistService(eventRepo, waitlistRepo, &MockReservationRepository{})

			entry, err := svc.Join(context.Background(), tt.userID, tt.eventID)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Join() error = %v, wantErr %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Join() unexpected error = %v", err)
			}
			if entry.Position != tt.wantPos {
				t.Errorf("Join() position = %d, want %d", entry.Position, tt.wantPos)
			}
		})
	}
}

func TestWaitlistService_Promote(t *testing.T) {
	t.Run("promotes head of line with claim tokens", func(t *testing.T) {
		eventRepo := &MockEventRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
				return openEvent(5, 1), nil
			},
		}
		waitlistRepo := &MockWaitlistRepository{
			TopActiveFunc: func(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
				return activeEntries("alice", "bob"), nil
			},
		}

		svc := newWaitlistService(eventRepo, waitlistRepo, &MockReservationRepository{})

		results, err := svc.Promote(context.Background(), "event-001", 2)
		if err != nil {
			t.Fatalf("Promote() unexpected error = %v", err)
		}
		if len(results) != 2 {
			t.Fatalf("Promote() results = %d, want 2", len(results))
		}
		for _, r := range results {
			if !r.Promoted() {
				t.Errorf("user %s not promoted: %v", r.UserID, r.Err)
			}
			claims := &ClaimClaims{}
			_, err := jwt.ParseWithClaims(r.ClaimToken, claims, func(t *jwt.Token) (interface{}, error) {
				return []byte(testSecret), nil
			})
			if err != nil {
				t.Errorf("claim token for %s does not parse: %v", r.UserID, err)
				continue
			}
			if claims.UserID != r.UserID || claims.ReservationID != r.ReservationID {
				t.Errorf("claim token payload mismatch for %s", r.UserID)
			}
		}
	})

	t.Run("one failure does not block the rest", func(t *testing.T) {
		eventRepo := &MockEventRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
				return openEvent(5, 1), nil
			},
		}
		waitlistRepo := &MockWaitlistRepository{
			TopActiveFunc: func(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
				return activeEntries("alice", "bob", "carol"), nil
			},
			PromoteFunc: func(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error) {
				if entry.UserID == "bob" {
					return false, errors.New("connection reset")
				}
				return true, nil
			},
		}

		svc := newWaitlistService(eventRepo, waitlistRepo, &MockReservationRepository{})

		results, err := svc.Promote(context.Background(), "event-001", 3)
		if err != nil {
			t.Fatalf("Promote() unexpected error = %v", err)
		}
		if len(results) != 3 {
			t.Fatalf("Promote() results = %d, want 3", len(results))
		}
		if !results[0].Promoted() || results[1].Promoted() || !results[2].Promoted() {
			t.Errorf("isolation broken: %+v", results)
		}
		if results[1].ErrorMessage == "" {
			t.Error("failed entry should carry an error message")
		}
	})

	t.Run("stops when capacity runs out", func(t *testing.T) {
		available := 1
		eventRepo := &MockEventRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
				return openEvent(available, 1), nil
			},
		}
		waitlistRepo := &MockWaitlistRepository{
			TopActiveFunc: func(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
				return activeEntries("alice", "bob", "carol"), nil
			},
			PromoteFunc: func(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error) {
				available--
				return true, nil
			},
		}

		svc := newWaitlistService(eventRepo, waitlistRepo, &MockReservationRepository{})

		results, err := svc.Promote(context.Background(), "event-001", 3)
		if err != nil {
			t.Fatalf("Promote() unexpected error = %v", err)
		}
		// alice takes the last unit; bob hits empty capacity; carol keeps her place
		if len(results) != 2 {
			t.Fatalf("Promote() results = %d, want 2", len(results))
		}
		if !results[0].Promoted() {
			t.Errorf("first entry should be promoted: %v", results[0].Err)
		}
		if !errors.Is(results[1].Err, domain.ErrInsufficientCapacity) {
			t.Errorf("second entry error = %v, want insufficient capacity", results[1].Err)
		}
	})

	t.Run("version conflict retried per entry", func(t *testing.T) {
		eventRepo := &MockEventRepository{
			GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
				return openEvent(5, 1), nil
			},
		}
		calls := 0
		waitlistRepo := &MockWaitlistRepository{
			TopActiveFunc: func(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
				return activeEntries("alice"), nil
			},
			PromoteFunc: func(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error) {
				calls++
				return calls > 1, nil
			},
		}

		svc := newWaitlistService(eventRepo, waitlistRepo, &MockReservationRepository{})

		results, err := svc.Promote(context.Background(), "event-001", 1)
		if err != nil {
			t.Fatalf("Promote() unexpected error = %v", err)
		}
		if !results[0].Promoted() {
			t.Errorf("entry not promoted after retry: %v", results[0].Err)
		}
		if calls != 2 {
			t.Errorf("promote calls = %d, want 2", calls)
		}
	})

	t.Run("invalid slots", func(t *testing.T) {
		svc := newWaitlistService(&MockEventRepository{}, &MockWaitlistRepository{}, &MockReservationRepository{})
		if _, err := svc.Promote(context.Background(), "event-001", 0); !errors.Is(err, domain.ErrInvalidSlots) {
			t.Errorf("Promote() error = %v, want invalid slots", err)
		}
	})
}

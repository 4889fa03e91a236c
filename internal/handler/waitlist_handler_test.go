package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/middleware"
)

// MockWaitlistService is a mock implementation of WaitlistService
type MockWaitlistService struct {
	JoinFunc    func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error)
	LeaveFunc   func(ctx context.Context, userID, eventID string) error
	PromoteFunc func(ctx context.Context, eventID string, slots int) ([]domain.PromotionResult, error)
}

func (m *MockWaitlistService) Join(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
	if m.JoinFunc != nil {
		return m.JoinFunc(ctx, userID, eventID)
	}
	return nil, nil
}

func (m *MockWaitlistService) Leave(ctx context.Context, userID, eventID string) error {
	if m.LeaveFunc != nil {
		return m.LeaveFunc(ctx, userID, eventID)
	}
	return nil
}

func (m *MockWaitlistService) Promote(ctx context.Context, eventID string, slots int) ([]domain.PromotionResult, error) {
	if m.PromoteFunc != nil {
		return m.PromoteFunc(ctx, eventID, slots)
	}
	return nil, nil
}

var _ WaitlistService = (*MockWaitlistService)(nil)

func setupWaitlistRouter(svc WaitlistService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(middleware.ContextKeyUserID, "user-001")
	})
	h := NewWaitlistHandler(svc, 10)
	r.POST("/api/v1/events/:id/waitlist", h.Join)
	r.DELETE("/api/v1/events/:id/waitlist", h.Leave)
	r.POST("/api/v1/events/:id/waitlist/promote", h.Promote)
	return r
}

func TestWaitlistHandler_Join(t *testing.T) {
	tests := []struct {
		name       string
		svc        *MockWaitlistService
		wantStatus int
		wantCode   string
	}{
		{
			name: "joined",
			svc: &MockWaitlistService{
				JoinFunc: func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
					return &domain.WaitlistEntry{
						ID:       "wl-001",
						UserID:   userID,
						EventID:  eventID,
						Position: 3,
						Status:   domain.WaitlistStatusActive,
						JoinedAt: time.Now(),
					}, nil
				},
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "already waitlisted maps to conflict",
			svc: &MockWaitlistService{
				JoinFunc: func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
					return nil, domain.ErrAlreadyWaitlisted
				},
			},
			wantStatus: http.StatusConflict,
			wantCode:   "ALREADY_WAITLISTED",
		},
		{
			name: "unknown event",
			svc: &MockWaitlistService{
				JoinFunc: func(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
					return nil, domain.ErrEventNotFound
				},
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupWaitlistRouter(tt.svc)
			w, resp := doJSON(t, r, http.MethodPost, "/api/v1/events/event-001/waitlist", nil)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantCode != "" {
				if resp.Error == nil {
					t.Fatal("expected error payload")
				}
				if resp.Error.Code != tt.wantCode {
					t.Errorf("error code = %s, want %s", resp.Error.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestWaitlistHandler_Leave(t *testing.T) {
	svc := &MockWaitlistService{
		LeaveFunc: func(ctx context.Context, userID, eventID string) error {
			if eventID != "event-001" {
				return domain.ErrWaitlistNotFound
			}
			return nil
		},
	}
	r := setupWaitlistRouter(svc)

	w, resp := doJSON(t, r, http.MethodDelete, "/api/v1/events/event-001/waitlist", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/events/other/waitlist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestWaitlistHandler_Promote(t *testing.T) {
	var gotSlots int
	svc := &MockWaitlistService{
		PromoteFunc: func(ctx context.Context, eventID string, slots int) ([]domain.PromotionResult, error) {
			gotSlots = slots
			return []domain.PromotionResult{
				{UserID: "user-002", ReservationID: "res-007", ClaimToken: "token"},
				{UserID: "user-003", ErrorMessage: "insufficient capacity available"},
			}, nil
		},
	}
	r := setupWaitlistRouter(svc)

	w, resp := doJSON(t, r, http.MethodPost, "/api/v1/events/event-001/waitlist/promote", gin.H{"slots": 2})
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}
	if gotSlots != 2 {
		t.Errorf("slots = %d, want 2", gotSlots)
	}

	// Empty body falls back to the configured slot limit
	w, _ = doJSON(t, r, http.MethodPost, "/api/v1/events/event-001/waitlist/promote", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if gotSlots != 10 {
		t.Errorf("slots = %d, want default 10", gotSlots)
	}
}

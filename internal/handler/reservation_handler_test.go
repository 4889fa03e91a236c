package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/middleware"
	"github.com/prachya-t/ticket-reserve/pkg/response"
)

// MockCapacityService is a mock implementation of CapacityService
type MockCapacityService struct {
	ReserveFunc        func(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error)
	CancelFunc         func(ctx context.Context, userID, reservationID string) (*domain.Reservation, error)
	GetReservationFunc func(ctx context.Context, userID, reservationID string) (*domain.Reservation, error)
}

func (m *MockCapacityService) Reserve(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
	if m.ReserveFunc != nil {
		return m.ReserveFunc(ctx, userID, eventID, quantity, idempotencyKey)
	}
	return nil, nil
}

func (m *MockCapacityService) Cancel(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID, reservationID)
	}
	return nil, nil
}

func (m *MockCapacityService) GetReservation(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	if m.GetReservationFunc != nil {
		return m.GetReservationFunc(ctx, userID, reservationID)
	}
	return nil, domain.ErrReservationNotFound
}

var _ CapacityService = (*MockCapacityService)(nil)

func setupRouter(svc CapacityService, authenticated bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if authenticated {
		r.Use(func(c *gin.Context) {
			c.Set(middleware.ContextKeyUserID, "user-001")
		})
	}
	h := NewReservationHandler(svc)
	r.POST("/api/v1/reservations", h.Create)
	r.GET("/api/v1/reservations/:id", h.Get)
	r.DELETE("/api/v1/reservations/:id", h.Cancel)
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, *response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	resp := &response.Response{}
	if err := json.Unmarshal(w.Body.Bytes(), resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w, resp
}

func TestReservationHandler_Create(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		svc        *MockCapacityService
		wantStatus int
		wantCode   string
	}{
		{
			name: "created",
			body: gin.H{"event_id": "event-001", "quantity": 2},
			svc: &MockCapacityService{
				ReserveFunc: func(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
					return &domain.Reservation{
						ID:          "res-001",
						UserID:      userID,
						EventID:     eventID,
						Quantity:    quantity,
						Status:      domain.ReservationStatusConfirmed,
						TotalPrice:  100.00,
						ConfirmedAt: time.Now(),
					}, nil
				},
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "insufficient capacity maps to conflict",
			body: gin.H{"event_id": "event-001", "quantity": 5},
			svc: &MockCapacityService{
				ReserveFunc: func(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
					return nil, &domain.InsufficientCapacityError{EventID: eventID, Requested: 5, Available: 2}
				},
			},
			wantStatus: http.StatusConflict,
			wantCode:   "INSUFFICIENT_CAPACITY",
		},
		{
			name: "past deadline maps to conflict",
			body: gin.H{"event_id": "event-001", "quantity": 1},
			svc: &MockCapacityService{
				ReserveFunc: func(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
					return nil, domain.ErrPastDeadline
				},
			},
			wantStatus: http.StatusConflict,
			wantCode:   "PAST_DEADLINE",
		},
		{
			name: "exhausted retries map to service unavailable",
			body: gin.H{"event_id": "event-001", "quantity": 1},
			svc: &MockCapacityService{
				ReserveFunc: func(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
					return nil, domain.ErrVersionConflict
				},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   "CONFLICT_RETRY",
		},
		{
			name:       "invalid body",
			body:       gin.H{"quantity": 2},
			svc:        &MockCapacityService{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(tt.svc, true)
			w, resp := doJSON(t, r, http.MethodPost, "/api/v1/reservations", tt.body)

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

func TestReservationHandler_RequiresAuth(t *testing.T) {
	r := setupRouter(&MockCapacityService{}, false)
	w, _ := doJSON(t, r, http.MethodPost, "/api/v1/reservations", gin.H{"event_id": "e", "quantity": 1})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestReservationHandler_Cancel(t *testing.T) {
	now := time.Now()
	svc := &MockCapacityService{
		CancelFunc: func(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
			if reservationID != "res-001" {
				return nil, domain.ErrReservationNotFound
			}
			return &domain.Reservation{
				ID:          reservationID,
				UserID:      userID,
				Status:      domain.ReservationStatusCancelled,
				CancelledAt: &now,
			}, nil
		},
	}
	r := setupRouter(svc, true)

	w, resp := doJSON(t, r, http.MethodDelete, "/api/v1/reservations/res-001", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	if !resp.Success {
		t.Error("expected success envelope")
	}

	w, _ = doJSON(t, r, http.MethodDelete, "/api/v1/reservations/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/metrics"
	"github.com/prachya-t/ticket-reserve/internal/repository"
	"github.com/prachya-t/ticket-reserve/pkg/logger"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
)

// DefaultCASMaxRetries bounds the optimistic commit loop. Exhaustion surfaces
// as a retryable conflict rather than blocking the request further.
const DefaultCASMaxRetries = 3

// CapacityService handles quantity-based reservations against the event's
// capacity pool, committed through bounded optimistic concurrency.
type CapacityService struct {
	eventRepo       repository.EventRepository
	reservationRepo repository.ReservationRepository
	publisher       EventPublisher
	metrics         *metrics.Metrics
	maxRetries      int
}

// NewCapacityService creates a new CapacityService
func NewCapacityService(
	eventRepo repository.EventRepository,
	reservationRepo repository.ReservationRepository,
	publisher EventPublisher,
	m *metrics.Metrics,
	maxRetries int,
) *CapacityService {
	if maxRetries < 1 {
		maxRetries = DefaultCASMaxRetries
	}
	if publisher == nil {
		publisher = NoOpEventPublisher{}
	}
	return &CapacityService{
		eventRepo:       eventRepo,
		reservationRepo: reservationRepo,
		publisher:       publisher,
		metrics:         m,
		maxRetries:      maxRetries,
	}
}

// Reserve commits a quantity reservation. Each attempt re-reads the event,
// re-validates capacity and the sales deadline against fresh state, then tries
// the version-guarded decrement; a guard miss re-reads immediately, up to the
// retry bound.
func (s *CapacityService) Reserve(ctx context.Context, userID, eventID string, quantity int, idempotencyKey string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.capacity.reserve")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
		attribute.Int("quantity", quantity),
	)

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}

	// A key that already committed replays the original result
	if idempotencyKey != "" {
		existing, err := s.reservationRepo.GetByIdempotencyKey(ctx, userID, idempotencyKey)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if existing != nil {
			span.SetAttributes(attribute.Bool("idempotent_replay", true))
			span.SetStatus(codes.Ok, "")
			return existing, nil
		}
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		span.SetAttributes(attribute.Int("attempt", attempt))
		start := time.Now()

		event, err := s.eventRepo.GetByID(ctx, eventID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		if event.SalesClosed(time.Now()) {
			s.recordOutcome(ctx, "capacity", false)
			span.SetStatus(codes.Error, "past deadline")
			return nil, domain.ErrPastDeadline
		}
		if event.Available < quantity {
			s.recordOutcome(ctx, "capacity", false)
			span.SetStatus(codes.Error, "insufficient capacity")
			return nil, &domain.InsufficientCapacityError{
				EventID:   eventID,
				Requested: quantity,
				Available: event.Available,
			}
		}

		now := time.Now()
		res := &domain.Reservation{
			ID:             uuid.New().String(),
			UserID:         userID,
			EventID:        eventID,
			Quantity:       quantity,
			Status:         domain.ReservationStatusConfirmed,
			IdempotencyKey: idempotencyKey,
			UnitPrice:      event.BasePrice,
			TotalPrice:     event.BasePrice * float64(quantity),
			ConfirmedAt:    now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		committed, err := s.reservationRepo.CreateWithCapacityDecrement(ctx, res, event.Version)
		if s.metrics != nil {
			s.metrics.CASAttemptDuration.Record(ctx, time.Since(start).Seconds(),
				attribute.String("path", "capacity"))
		}
		if err != nil {
			// Another request with the same key won the insert race
			if errors.Is(err, domain.ErrReservationExists) && idempotencyKey != "" {
				existing, getErr := s.reservationRepo.GetByIdempotencyKey(ctx, userID, idempotencyKey)
				if getErr == nil && existing != nil {
					span.SetAttributes(attribute.Bool("idempotent_replay", true))
					span.SetStatus(codes.Ok, "")
					return existing, nil
				}
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if committed {
			s.recordOutcome(ctx, "capacity", true)
			s.publisher.Publish(ctx, &domain.ReservationEvent{
				EventType:     domain.ReservationEventConfirmed,
				OccurredAt:    now,
				UserID:        userID,
				EventID:       eventID,
				ReservationID: res.ID,
				Quantity:      quantity,
				TotalPrice:    res.TotalPrice,
			})
			span.SetStatus(codes.Ok, "")
			return res, nil
		}

		if s.metrics != nil {
			s.metrics.CASRetries.Add(ctx, 1, attribute.String("path", "capacity"))
		}
		logger.Get().Debug("capacity commit lost version race, retrying",
			zap.String("event_id", eventID),
			zap.Int("attempt", attempt),
		)
	}

	s.recordOutcome(ctx, "capacity", false)
	span.SetStatus(codes.Error, "retries exhausted")
	return nil, fmt.Errorf("reserve event %s: %w", eventID, domain.ErrVersionConflict)
}

// Cancel releases a confirmed reservation's quantity back to the pool. The
// release goes through the same guarded-write loop as the decrement so a
// concurrent booking cannot be overwritten.
func (s *CapacityService) Cancel(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.capacity.cancel")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("reservation_id", reservationID),
	)

	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !res.BelongsToUser(userID) {
		// Do not reveal other users' reservations
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrReservationNotFound
	}
	if res.IsCancelled() {
		span.SetStatus(codes.Error, "already cancelled")
		return nil, domain.ErrAlreadyCancelled
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		span.SetAttributes(attribute.Int("attempt", attempt))

		event, err := s.eventRepo.GetByID(ctx, res.EventID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		committed, err := s.reservationRepo.CancelWithCapacityRelease(ctx, res, event.Version)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		if committed {
			now := time.Now()
			res.Status = domain.ReservationStatusCancelled
			res.CancelledAt = &now
			res.UpdatedAt = now

			s.publisher.Publish(ctx, &domain.ReservationEvent{
				EventType:     domain.ReservationEventCancelled,
				OccurredAt:    now,
				UserID:        userID,
				EventID:       res.EventID,
				ReservationID: res.ID,
				Quantity:      res.Quantity,
				SeatIDs:       res.SeatIDs,
			})
			span.SetStatus(codes.Ok, "")
			return res, nil
		}

		if s.metrics != nil {
			s.metrics.CASRetries.Add(ctx, 1, attribute.String("path", "cancel"))
		}
	}

	span.SetStatus(codes.Error, "retries exhausted")
	return nil, fmt.Errorf("cancel reservation %s: %w", reservationID, domain.ErrVersionConflict)
}

// GetReservation returns the caller's reservation
func (s *CapacityService) GetReservation(ctx context.Context, userID, reservationID string) (*domain.Reservation, error) {
	res, err := s.reservationRepo.GetByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if !res.BelongsToUser(userID) {
		return nil, domain.ErrReservationNotFound
	}
	return res, nil
}

func (s *CapacityService) recordOutcome(ctx context.Context, path string, committed bool) {
	if s.metrics != nil {
		s.metrics.RecordOutcome(ctx, path, committed)
	}
}

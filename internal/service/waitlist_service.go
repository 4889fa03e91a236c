package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
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

// DefaultClaimTokenTTL bounds how long a promoted user has to act on the
// claim before it expires.
const DefaultClaimTokenTTL = 15 * time.Minute

// ClaimClaims is the JWT payload issued to a promoted waitlist user
type ClaimClaims struct {
	UserID        string `json:"user_id"`
	EventID       string `json:"event_id"`
	ReservationID string `json:"reservation_id"`
	jwt.RegisteredClaims
}

// WaitlistService manages per-event waitlists and converts freed capacity
// into reservations for the head of the line.
type WaitlistService struct {
	eventRepo       repository.EventRepository
	waitlistRepo    repository.WaitlistRepository
	reservationRepo repository.ReservationRepository
	publisher       EventPublisher
	metrics         *metrics.Metrics

	jwtSecret     []byte
	jwtIssuer     string
	claimTokenTTL time.Duration
	maxRetries    int
}

// NewWaitlistService creates a new WaitlistService
func NewWaitlistService(
	eventRepo repository.EventRepository,
	waitlistRepo repository.WaitlistRepository,
	reservationRepo repository.ReservationRepository,
	publisher EventPublisher,
	m *metrics.Metrics,
	jwtSecret, jwtIssuer string,
	claimTokenTTL time.Duration,
	maxRetries int,
) *WaitlistService {
	if claimTokenTTL <= 0 {
		claimTokenTTL = DefaultClaimTokenTTL
	}
	if maxRetries < 1 {
		maxRetries = DefaultCASMaxRetries
	}
	if publisher == nil {
		publisher = NoOpEventPublisher{}
	}
	return &WaitlistService{
		eventRepo:       eventRepo,
		waitlistRepo:    waitlistRepo,
		reservationRepo: reservationRepo,
		publisher:       publisher,
		metrics:         m,
		jwtSecret:       []byte(jwtSecret),
		jwtIssuer:       jwtIssuer,
		claimTokenTTL:   claimTokenTTL,
		maxRetries:      maxRetries,
	}
}

// Join puts the user at the back of the event's waitlist
func (s *WaitlistService) Join(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.join")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}

	// Joining only makes sense for an existing event
	if _, err := s.eventRepo.GetByID(ctx, eventID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	entry, err := s.waitlistRepo.Join(ctx, userID, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.WaitlistJoins.Add(ctx, 1)
	}
	span.SetAttributes(attribute.Int("position", entry.Position))
	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// Leave removes the user from the waitlist, renumbering the rest
func (s *WaitlistService) Leave(ctx context.Context, userID, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.leave")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	if err := s.waitlistRepo.Leave(ctx, userID, eventID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Promote converts up to slots head-of-line entries into confirmed
// single-quantity reservations. Each entry commits in its own transaction, so
// one failure never blocks the entries behind it; promotion stops early when
// capacity runs out.
func (s *WaitlistService) Promote(ctx context.Context, eventID string, slots int) ([]domain.PromotionResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.waitlist.promote")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("slots", slots),
	)

	if slots <= 0 {
		return nil, domain.ErrInvalidSlots
	}

	entries, err := s.waitlistRepo.TopActive(ctx, eventID, slots)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]domain.PromotionResult, 0, len(entries))
	for _, entry := range entries {
		result := s.promoteOne(ctx, entry)
		results = append(results, result)
		if errors.Is(result.Err, domain.ErrInsufficientCapacity) {
			// No capacity left; everyone behind keeps their place
			break
		}
	}

	span.SetAttributes(attribute.Int("promoted", countPromoted(results)))
	span.SetStatus(codes.Ok, "")
	return results, nil
}

func (s *WaitlistService) promoteOne(ctx context.Context, entry *domain.WaitlistEntry) domain.PromotionResult {
	result := domain.PromotionResult{UserID: entry.UserID}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		event, err := s.eventRepo.GetByID(ctx, entry.EventID)
		if err != nil {
			return failedPromotion(entry, err)
		}
		if event.SalesClosed(time.Now()) {
			return failedPromotion(entry, domain.ErrPastDeadline)
		}
		if event.Available < 1 {
			return failedPromotion(entry, domain.ErrInsufficientCapacity)
		}

		now := time.Now()
		res := &domain.Reservation{
			ID:          uuid.New().String(),
			UserID:      entry.UserID,
			EventID:     entry.EventID,
			Quantity:    1,
			Status:      domain.ReservationStatusConfirmed,
			UnitPrice:   event.BasePrice,
			TotalPrice:  event.BasePrice,
			ConfirmedAt: now,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		committed, err := s.waitlistRepo.Promote(ctx, entry, res, event.Version)
		if err != nil {
			return failedPromotion(entry, err)
		}
		if !committed {
			continue
		}

		token, err := s.issueClaimToken(entry.UserID, entry.EventID, res.ID, now)
		if err != nil {
			// The promotion is committed; a missing token is recoverable by
			// the user through their reservation, so log and carry on.
			logger.Get().Error("failed to issue claim token",
				zap.String("user_id", entry.UserID),
				zap.String("reservation_id", res.ID),
				zap.Error(err),
			)
		}

		if s.metrics != nil {
			s.metrics.WaitlistPromotions.Add(ctx, 1)
		}
		s.publisher.Publish(ctx, &domain.ReservationEvent{
			EventType:     domain.WaitlistEventPromoted,
			OccurredAt:    now,
			UserID:        entry.UserID,
			EventID:       entry.EventID,
			ReservationID: res.ID,
			Quantity:      1,
			TotalPrice:    res.TotalPrice,
			ClaimToken:    token,
		})

		result.ReservationID = res.ID
		result.ClaimToken = token
		return result
	}

	return failedPromotion(entry, fmt.Errorf("promote user %s: %w", entry.UserID, domain.ErrVersionConflict))
}

func (s *WaitlistService) issueClaimToken(userID, eventID, reservationID string, now time.Time) (string, error) {
	claims := ClaimClaims{
		UserID:        userID,
		EventID:       eventID,
		ReservationID: reservationID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.jwtIssuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.claimTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign claim token: %w", err)
	}
	return signed, nil
}

func failedPromotion(entry *domain.WaitlistEntry, err error) domain.PromotionResult {
	return domain.PromotionResult{
		UserID:       entry.UserID,
		Err:          err,
		ErrorMessage: err.Error(),
	}
}

func countPromoted(results []domain.PromotionResult) int {
	n := 0
	for i := range results {
		if results[i].Promoted() {
			n++
		}
	}
	return n
}

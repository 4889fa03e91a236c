package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/metrics"
	"github.com/prachya-t/ticket-reserve/internal/repository"
	"github.com/prachya-t/ticket-reserve/pkg/logger"
	"github.com/prachya-t/ticket-reserve/pkg/retry"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
)

// enqueueFallbackDelay is how soon the mover re-delivers a job whose ready
// enqueue failed.
const enqueueFallbackDelay = time.Second

// SeatJobService accepts seat-mode booking requests as asynchronous jobs and
// serves their status to polling clients.
type SeatJobService struct {
	jobRepo repository.JobRepository
	queue   repository.JobQueue
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewSeatJobService creates a new SeatJobService
func NewSeatJobService(jobRepo repository.JobRepository, queue repository.JobQueue, m *metrics.Metrics) *SeatJobService {
	return &SeatJobService{
		jobRepo: jobRepo,
		queue:   queue,
		metrics: m,
		now:     time.Now,
	}
}

// Submit accepts a seat reservation request. The job id is derived from the
// request content, so a duplicate submission within the same second returns
// the already accepted job instead of creating a second one.
func (s *SeatJobService) Submit(ctx context.Context, userID, eventID string, seatIDs []string, idempotencyKey string) (*domain.ReservationJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.seatjob.submit")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	job := domain.NewReservationJob(userID, eventID, seatIDs, idempotencyKey, s.now())
	if err := job.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("job_id", job.ID))

	created, err := s.jobRepo.Create(ctx, job)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if !created {
		// Duplicate submission; hand back the original job's current state
		existing, err := s.jobRepo.GetByID(ctx, job.ID)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		span.SetAttributes(attribute.Bool("duplicate", true))
		span.SetStatus(codes.Ok, "")
		return existing, nil
	}

	result := retry.Do(ctx, &retry.Config{
		MaxRetries:      2,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     time.Second,
	}, func(ctx context.Context) error {
		return s.queue.Enqueue(ctx, job.ID)
	})
	if result.Err != nil {
		// Only the delayed ZSET is recoverable without a new delivery: the
		// mover rescans it, so park the job there rather than stranding the
		// queued row with no delivery at all.
		if delayErr := s.queue.EnqueueDelayed(ctx, job.ID, enqueueFallbackDelay); delayErr != nil {
			span.RecordError(delayErr)
			span.SetStatus(codes.Error, delayErr.Error())
			logger.Get().Error("failed to enqueue accepted job",
				zap.String("job_id", job.ID),
				zap.Int("attempts", result.Attempts),
				zap.Error(result.LastError),
			)
			return nil, fmt.Errorf("enqueue job %s: %w", job.ID, delayErr)
		}
		logger.Get().Warn("ready enqueue failed, job parked on delayed queue",
			zap.String("job_id", job.ID),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.LastError),
		)
	}

	if s.metrics != nil {
		s.metrics.JobsSubmitted.Add(ctx, 1)
		s.metrics.QueueDepth.Add(ctx, 1)
	}

	span.SetStatus(codes.Ok, "")
	return job, nil
}

// Poll returns the caller's job, including the terminal result once recorded
func (s *SeatJobService) Poll(ctx context.Context, userID, jobID string) (*domain.ReservationJob, error) {
	job, err := s.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, domain.ErrJobNotFound
	}
	return job, nil
}

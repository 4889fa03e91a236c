package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/internal/lock"
	"github.com/prachya-t/ticket-reserve/internal/metrics"
	"github.com/prachya-t/ticket-reserve/internal/repository"
	"github.com/prachya-t/ticket-reserve/internal/service"
	"github.com/prachya-t/ticket-reserve/pkg/logger"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
)

// Config holds seat worker tuning knobs
type Config struct {
	WorkerCount     int
	DequeueTimeout  time.Duration
	MaxAttempts     int
	RetryBackoff    time.Duration
	CASMaxRetries   int
	MoveDueInterval time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		WorkerCount:     5,
		DequeueTimeout:  5 * time.Second,
		MaxAttempts:     3,
		RetryBackoff:    time.Second,
		CASMaxRetries:   3,
		MoveDueInterval: time.Second,
	}
}

func (c *Config) normalize() {
	if c.WorkerCount < 1 {
		c.WorkerCount = 5
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = 5 * time.Second
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	if c.CASMaxRetries < 1 {
		c.CASMaxRetries = 3
	}
	if c.MoveDueInterval <= 0 {
		c.MoveDueInterval = time.Second
	}
}

// SeatLocker is the distributed lock surface the worker needs
type SeatLocker interface {
	Acquire(ctx context.Context, key, token string) (bool, error)
	Release(ctx context.Context, key, token string) error
}

// SeatWorker consumes seat reservation jobs from the ready queue and commits
// them under the distributed seat lock. Terminal results are recorded exactly
// once; transient failures go back through the delayed queue with backoff.
type SeatWorker struct {
	cfg             *Config
	jobRepo         repository.JobRepository
	queue           repository.JobQueue
	eventRepo       repository.EventRepository
	seatRepo        repository.SeatRepository
	reservationRepo repository.ReservationRepository
	seatLock        SeatLocker
	publisher       service.EventPublisher
	metrics         *metrics.Metrics

	wg sync.WaitGroup
}

// NewSeatWorker creates a new SeatWorker
func NewSeatWorker(
	cfg *Config,
	jobRepo repository.JobRepository,
	queue repository.JobQueue,
	eventRepo repository.EventRepository,
	seatRepo repository.SeatRepository,
	reservationRepo repository.ReservationRepository,
	seatLock SeatLocker,
	publisher service.EventPublisher,
	m *metrics.Metrics,
) *SeatWorker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.normalize()
	if publisher == nil {
		publisher = service.NoOpEventPublisher{}
	}
	return &SeatWorker{
		cfg:             cfg,
		jobRepo:         jobRepo,
		queue:           queue,
		eventRepo:       eventRepo,
		seatRepo:        seatRepo,
		reservationRepo: reservationRepo,
		seatLock:        seatLock,
		publisher:       publisher,
		metrics:         m,
	}
}

// Start launches the worker pool and the delayed-job mover. It returns
// immediately; Stop blocks until all goroutines drain after ctx cancellation.
func (w *SeatWorker) Start(ctx context.Context) {
	for i := 0; i < w.cfg.WorkerCount; i++ {
		w.wg.Add(1)
		go w.consumeLoop(ctx, i)
	}

	w.wg.Add(1)
	go w.moveDueLoop(ctx)

	logger.Get().Info("seat worker started",
		zap.Int("worker_count", w.cfg.WorkerCount),
		zap.Duration("retry_backoff", w.cfg.RetryBackoff),
	)
}

// Stop waits for all worker goroutines to finish
func (w *SeatWorker) Stop() {
	w.wg.Wait()
	logger.Get().Info("seat worker stopped")
}

func (w *SeatWorker) consumeLoop(ctx context.Context, id int) {
	defer w.wg.Done()

	log := logger.Get().With(zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, ok, err := w.queue.Dequeue(ctx, w.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to dequeue job", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		if w.metrics != nil {
			w.metrics.QueueDepth.Add(ctx, -1)
		}
		if err := w.process(ctx, jobID); err != nil {
			log.Error("job processing failed",
				zap.String("job_id", jobID),
				zap.Error(err),
			)
		}
	}
}

func (w *SeatWorker) moveDueLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.MoveDueInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			moved, err := w.queue.MoveDue(ctx, now)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Get().Error("failed to move due jobs", zap.Error(err))
				continue
			}
			if moved > 0 && w.metrics != nil {
				w.metrics.QueueDepth.Add(ctx, int64(moved))
			}
		}
	}
}

// process handles one delivery of a job. Redelivery of an already terminal
// job is a no-op, which is what makes at-least-once delivery safe.
func (w *SeatWorker) process(ctx context.Context, jobID string) error {
	ctx, span := telemetry.StartSpan(ctx, "worker.seat.process")
	defer span.End()

	span.SetAttributes(attribute.String("job_id", jobID))

	job, err := w.jobRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			span.SetStatus(codes.Ok, "job gone")
			return nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if job.IsTerminal() {
		span.SetStatus(codes.Ok, "already terminal")
		return nil
	}

	// A reservation already committed for this key means a previous attempt
	// crashed after commit but before recording the result
	if job.IdempotencyKey != "" {
		existing, err := w.reservationRepo.GetByIdempotencyKey(ctx, job.UserID, job.IdempotencyKey)
		if err != nil {
			return w.retryOrFail(ctx, job, err)
		}
		if existing != nil {
			span.SetAttributes(attribute.Bool("recovered", true))
			return w.succeed(ctx, job, existing)
		}
	}

	attempt := job.Attempts + 1
	span.SetAttributes(attribute.Int("attempt", attempt))
	if err := w.jobRepo.MarkRunning(ctx, job.ID, attempt); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	job.Attempts = attempt

	lockKey := lock.Key(job.EventID, job.SeatIDs)
	token := lock.NewToken()
	acquired, err := w.seatLock.Acquire(ctx, lockKey, token)
	if err != nil {
		return w.retryOrFail(ctx, job, err)
	}
	if !acquired {
		// Someone else is booking an overlapping seat set right now. The
		// client re-picks seats rather than waiting behind a contended set.
		if w.metrics != nil {
			w.metrics.LockContentions.Add(ctx, 1)
		}
		span.SetStatus(codes.Error, "lock contended")
		return w.fail(ctx, job, domain.JobFailureLockContended,
			"seats are being booked by another request", nil)
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.seatLock.Release(releaseCtx, lockKey, token); err != nil {
			logger.Get().Warn("failed to release seat lock",
				zap.String("job_id", job.ID),
				zap.Error(err),
			)
		}
	}()

	return w.commitLocked(ctx, job)
}

// commitLocked runs the authoritative re-check and commit while holding the
// seat lock.
func (w *SeatWorker) commitLocked(ctx context.Context, job *domain.ReservationJob) error {
	states, err := w.seatRepo.GetStates(ctx, job.EventID, job.SeatIDs)
	if err != nil {
		if errors.Is(err, domain.ErrSeatNotFound) {
			return w.fail(ctx, job, domain.JobFailureSeatUnavailable, err.Error(), nil)
		}
		return w.retryOrFail(ctx, job, err)
	}

	var unavailable []string
	for i := range states {
		if !states[i].Bookable() {
			unavailable = append(unavailable, states[i].ID)
		}
	}
	if len(unavailable) > 0 {
		return w.fail(ctx, job, domain.JobFailureSeatUnavailable,
			"one or more seats are no longer available", unavailable)
	}

	for attempt := 1; attempt <= w.cfg.CASMaxRetries; attempt++ {
		event, err := w.eventRepo.GetByID(ctx, job.EventID)
		if err != nil {
			return w.retryOrFail(ctx, job, err)
		}
		if event.SalesClosed(time.Now()) {
			return w.fail(ctx, job, domain.JobFailurePastDeadline,
				"sales deadline has passed", nil)
		}
		if event.Available < len(job.SeatIDs) {
			return w.fail(ctx, job, domain.JobFailureInsufficientCapacity,
				fmt.Sprintf("requested %d seats, %d capacity available", len(job.SeatIDs), event.Available), nil)
		}

		var total float64
		for i := range states {
			total += event.BasePrice * states[i].PriceMultiplier
		}

		now := time.Now()
		res := &domain.Reservation{
			ID:             uuid.New().String(),
			UserID:         job.UserID,
			EventID:        job.EventID,
			Quantity:       len(job.SeatIDs),
			SeatIDs:        job.SeatIDs,
			Status:         domain.ReservationStatusConfirmed,
			IdempotencyKey: job.IdempotencyKey,
			UnitPrice:      event.BasePrice,
			TotalPrice:     total,
			ConfirmedAt:    now,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		committed, conflicting, err := w.reservationRepo.CreateWithSeats(ctx, res, event.Version)
		if err != nil {
			if errors.Is(err, domain.ErrReservationExists) && job.IdempotencyKey != "" {
				existing, getErr := w.reservationRepo.GetByIdempotencyKey(ctx, job.UserID, job.IdempotencyKey)
				if getErr == nil && existing != nil {
					return w.succeed(ctx, job, existing)
				}
			}
			return w.retryOrFail(ctx, job, err)
		}
		if len(conflicting) > 0 {
			return w.fail(ctx, job, domain.JobFailureSeatUnavailable,
				"one or more seats are no longer available", conflicting)
		}
		if committed {
			return w.succeed(ctx, job, res)
		}

		if w.metrics != nil {
			w.metrics.CASRetries.Add(ctx, 1, attribute.String("path", "seat"))
		}
	}

	return w.retryOrFail(ctx, job,
		fmt.Errorf("commit seats for job %s: %w", job.ID, domain.ErrVersionConflict))
}

func (w *SeatWorker) succeed(ctx context.Context, job *domain.ReservationJob, res *domain.Reservation) error {
	if err := w.jobRepo.CompleteSuccess(ctx, job.ID, res.ID, res.TotalPrice); err != nil {
		return err
	}

	w.recordCompletion(ctx, job, "succeeded")
	w.publisher.Publish(ctx, &domain.ReservationEvent{
		EventType:     domain.ReservationEventSeatsBooked,
		OccurredAt:    time.Now(),
		UserID:        job.UserID,
		EventID:       job.EventID,
		ReservationID: res.ID,
		Quantity:      res.Quantity,
		SeatIDs:       res.SeatIDs,
		TotalPrice:    res.TotalPrice,
	})

	logger.Get().Info("seat job succeeded",
		zap.String("job_id", job.ID),
		zap.String("reservation_id", res.ID),
		zap.Int("attempt", job.Attempts),
	)
	return nil
}

func (w *SeatWorker) fail(ctx context.Context, job *domain.ReservationJob, code, reason string, unavailable []string) error {
	if err := w.jobRepo.CompleteFailure(ctx, job.ID, code, reason, unavailable); err != nil {
		return err
	}

	w.recordCompletion(ctx, job, "failed")
	logger.Get().Info("seat job failed",
		zap.String("job_id", job.ID),
		zap.String("failure_code", code),
		zap.Int("attempt", job.Attempts),
	)
	return nil
}

// retryOrFail schedules another delivery with exponential backoff, or records
// a terminal internal failure once attempts are exhausted.
func (w *SeatWorker) retryOrFail(ctx context.Context, job *domain.ReservationJob, cause error) error {
	if job.Attempts >= w.cfg.MaxAttempts {
		return w.fail(ctx, job, domain.JobFailureInternal, cause.Error(), nil)
	}

	if err := w.jobRepo.Requeue(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to requeue job %s: %w", job.ID, err)
	}

	backoff := w.cfg.RetryBackoff
	if job.Attempts > 1 {
		backoff = w.cfg.RetryBackoff * (1 << (job.Attempts - 1))
	}
	if err := w.queue.EnqueueDelayed(ctx, job.ID, backoff); err != nil {
		return fmt.Errorf("failed to schedule retry for job %s: %w", job.ID, err)
	}

	logger.Get().Warn("seat job scheduled for retry",
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("backoff", backoff),
		zap.Error(cause),
	)
	return nil
}

func (w *SeatWorker) recordCompletion(ctx context.Context, job *domain.ReservationJob, outcome string) {
	if w.metrics == nil {
		return
	}
	w.metrics.JobsCompleted.Add(ctx, 1, attribute.String("outcome", outcome))
	w.metrics.JobDuration.Record(ctx, time.Since(job.SubmittedAt).Seconds(),
		attribute.String("outcome", outcome))
}

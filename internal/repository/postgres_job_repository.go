package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresJobRepository implements JobRepository using PostgreSQL with pgxpool
type PostgresJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresJobRepository creates a new PostgresJobRepository
func NewPostgresJobRepository(pool *pgxpool.Pool) *PostgresJobRepository {
	return &PostgresJobRepository{pool: pool}
}

// Create inserts the job row. ON CONFLICT DO NOTHING makes duplicate
// submissions with the same deterministic id collapse onto the first job.
func (r *PostgresJobRepository) Create(ctx context.Context, job *domain.ReservationJob) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.job.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", job.ID),
		attribute.String("event_id", job.EventID),
		attribute.Int("seat_count", len(job.SeatIDs)),
	)

	query := `
		INSERT INTO reservation_jobs (
			id, user_id, event_id, seat_ids, idempotency_key, status,
			attempts, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.UserID,
		job.EventID,
		job.SeatIDs,
		nullString(job.IdempotencyKey),
		string(job.Status),
		job.Attempts,
		job.SubmittedAt,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to create job: %w", err)
	}

	created := tag.RowsAffected() > 0
	span.SetAttributes(attribute.Bool("created", created))
	span.SetStatus(codes.Ok, "")
	return created, nil
}

// GetByID retrieves a job by its ID
func (r *PostgresJobRepository) GetByID(ctx context.Context, id string) (*domain.ReservationJob, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.job.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("job_id", id))

	query := `
		SELECT id, user_id, event_id, seat_ids, idempotency_key, status,
			attempts, submitted_at, reservation_id, total_price,
			failure_code, failure_reason, unavailable_seats, completed_at
		FROM reservation_jobs
		WHERE id = $1
	`

	job := &domain.ReservationJob{}
	var (
		idempotencyKey *string
		status         string
		reservationID  *string
		totalPrice     *float64
		failureCode    *string
		failureReason  *string
	)

	err := r.pool.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.UserID,
		&job.EventID,
		&job.SeatIDs,
		&idempotencyKey,
		&status,
		&job.Attempts,
		&job.SubmittedAt,
		&reservationID,
		&totalPrice,
		&failureCode,
		&failureReason,
		&job.UnavailableSeats,
		&job.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrJobNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	job.Status = domain.JobStatus(status)
	if idempotencyKey != nil {
		job.IdempotencyKey = *idempotencyKey
	}
	if reservationID != nil {
		job.ReservationID = *reservationID
	}
	if totalPrice != nil {
		job.TotalPrice = *totalPrice
	}
	if failureCode != nil {
		job.FailureCode = *failureCode
	}
	if failureReason != nil {
		job.FailureReason = *failureReason
	}

	span.SetStatus(codes.Ok, "")
	return job, nil
}

// MarkRunning records the start of a processing attempt
func (r *PostgresJobRepository) MarkRunning(ctx context.Context, id string, attempt int) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.job.mark_running")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", id),
		attribute.Int("attempt", attempt),
	)

	query := `
		UPDATE reservation_jobs SET
			status = 'running',
			attempts = $2
		WHERE id = $1 AND status IN ('queued', 'running')
	`

	tag, err := r.pool.Exec(ctx, query, id, attempt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "not found or terminal")
		return domain.ErrJobNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CompleteSuccess records the terminal success result. The status guard keeps
// terminal jobs immutable even under duplicate delivery.
func (r *PostgresJobRepository) CompleteSuccess(ctx context.Context, id, reservationID string, totalPrice float64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.job.complete_success")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", id),
		attribute.String("reservation_id", reservationID),
	)

	query := `
		UPDATE reservation_jobs SET
			status = 'succeeded',
			reservation_id = $2,
			total_price = $3,
			completed_at = NOW()
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed')
	`

	if _, err := r.pool.Exec(ctx, query, id, reservationID, totalPrice); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to complete job: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// CompleteFailure records the terminal failure result
func (r *PostgresJobRepository) CompleteFailure(ctx context.Context, id, code, reason string, unavailableSeats []string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.job.complete_failure")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", id),
		attribute.String("failure_code", code),
	)

	query := `
		UPDATE reservation_jobs SET
			status = 'failed',
			failure_code = $2,
			failure_reason = $3,
			unavailable_seats = $4,
			completed_at = NOW()
		WHERE id = $1 AND status NOT IN ('succeeded', 'failed')
	`

	if _, err := r.pool.Exec(ctx, query, id, code, reason, unavailableSeats); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to record job failure: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Requeue resets a transiently failed job back to queued so a later delivery
// can pick it up.
func (r *PostgresJobRepository) Requeue(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.job.requeue")
	defer span.End()

	span.SetAttributes(attribute.String("job_id", id))

	query := `
		UPDATE reservation_jobs SET
			status = 'queued'
		WHERE id = $1 AND status = 'running'
	`

	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Ensure PostgresJobRepository implements JobRepository
var _ JobRepository = (*PostgresJobRepository)(nil)

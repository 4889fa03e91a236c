package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	idempotencyKeyConstraint = "reservations_user_idempotency_key"
	seatLinkConstraint       = "reservation_seats_seat_id_key"
)

// decrementCapacityQuery is the single conditional write every reservation
// path funnels through: it succeeds only when the version read at the start
// of the attempt is still current and capacity suffices.
const decrementCapacityQuery = `
	UPDATE events SET
		available = available - $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $3 AND available >= $2
`

const releaseCapacityQuery = `
	UPDATE events SET
		available = available + $2,
		version = version + 1,
		updated_at = NOW()
	WHERE id = $1 AND version = $3 AND available + $2 <= total_capacity
`

// PostgresReservationRepository implements ReservationRepository using
// PostgreSQL with pgxpool.
type PostgresReservationRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresReservationRepository creates a new PostgresReservationRepository
func NewPostgresReservationRepository(pool *pgxpool.Pool) *PostgresReservationRepository {
	return &PostgresReservationRepository{pool: pool}
}

// GetByID retrieves a reservation by its ID
func (r *PostgresReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.get_by_id")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", id))

	query := `
		SELECT r.id, r.user_id, r.event_id, r.quantity, r.status,
			r.idempotency_key, r.unit_price, r.total_price, r.reserved_version,
			r.confirmed_at, r.cancelled_at, r.created_at, r.updated_at,
			COALESCE(array_agg(rs.seat_id) FILTER (WHERE rs.seat_id IS NOT NULL), '{}')
		FROM reservations r
		LEFT JOIN reservation_seats rs ON rs.reservation_id = r.id
		WHERE r.id = $1
		GROUP BY r.id
	`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return nil, domain.ErrReservationNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return res, nil
}

// GetByIdempotencyKey returns the reservation committed for (userID, key),
// or nil when none exists.
func (r *PostgresReservationRepository) GetByIdempotencyKey(ctx context.Context, userID, key string) (*domain.Reservation, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.get_by_idempotency_key")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("idempotency_key", key),
	)

	query := `
		SELECT r.id, r.user_id, r.event_id, r.quantity, r.status,
			r.idempotency_key, r.unit_price, r.total_price, r.reserved_version,
			r.confirmed_at, r.cancelled_at, r.created_at, r.updated_at,
			COALESCE(array_agg(rs.seat_id) FILTER (WHERE rs.seat_id IS NOT NULL), '{}')
		FROM reservations r
		LEFT JOIN reservation_seats rs ON rs.reservation_id = r.id
		WHERE r.user_id = $1 AND r.idempotency_key = $2
		GROUP BY r.id
	`

	res, err := scanReservation(r.pool.QueryRow(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get reservation by idempotency key: %w", err)
	}

	span.SetAttributes(attribute.String("reservation_id", res.ID))
	span.SetStatus(codes.Ok, "")
	return res, nil
}

// CreateWithCapacityDecrement commits the guarded capacity decrement and the
// reservation row in one transaction.
func (r *PostgresReservationRepository) CreateWithCapacityDecrement(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.create_with_decrement")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", res.ID),
		attribute.String("event_id", res.EventID),
		attribute.Int("quantity", res.Quantity),
		attribute.Int64("expected_version", expectedVersion),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, decrementCapacityQuery, res.EventID, res.Quantity, expectedVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to decrement capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Ok, "version guard miss")
		return false, nil
	}

	res.ReservedVersion = expectedVersion + 1
	if err := insertReservation(ctx, tx, res); err != nil {
		if isUniqueViolation(err, idempotencyKeyConstraint) {
			span.SetStatus(codes.Error, "duplicate idempotency key")
			return false, domain.ErrReservationExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to commit reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return true, nil
}

// CreateWithSeats commits the reservation, its seat links and the guarded
// capacity decrement in one transaction. Partial booking is impossible: any
// conflicting seat rolls back the whole transaction.
func (r *PostgresReservationRepository) CreateWithSeats(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, []string, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.create_with_seats")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", res.ID),
		attribute.String("event_id", res.EventID),
		attribute.Int("seat_count", len(res.SeatIDs)),
		attribute.Int64("expected_version", expectedVersion),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, decrementCapacityQuery, res.EventID, res.Quantity, expectedVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, fmt.Errorf("failed to decrement capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Ok, "version guard miss")
		return false, nil, nil
	}

	res.ReservedVersion = expectedVersion + 1
	if err := insertReservation(ctx, tx, res); err != nil {
		if isUniqueViolation(err, idempotencyKeyConstraint) {
			span.SetStatus(codes.Error, "duplicate idempotency key")
			return false, nil, domain.ErrReservationExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, err
	}

	linkQuery := `INSERT INTO reservation_seats (reservation_id, seat_id) VALUES ($1, $2)`
	for _, seatID := range res.SeatIDs {
		if _, err := tx.Exec(ctx, linkQuery, res.ID, seatID); err != nil {
			if isUniqueViolation(err, seatLinkConstraint) {
				// Lost the seat between the locked re-check and commit
				span.SetStatus(codes.Error, "seat already linked")
				return false, []string{seatID}, nil
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, nil, fmt.Errorf("failed to link seat %s: %w", seatID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, nil, fmt.Errorf("failed to commit seat reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return true, nil, nil
}

// CancelWithCapacityRelease flips CONFIRMED->CANCELLED and releases capacity
// under the same version guard as the decrement path.
func (r *PostgresReservationRepository) CancelWithCapacityRelease(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.reservation.cancel_with_release")
	defer span.End()

	span.SetAttributes(
		attribute.String("reservation_id", res.ID),
		attribute.Int64("expected_version", expectedVersion),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	statusQuery := `
		UPDATE reservations SET
			status = $2,
			cancelled_at = $3,
			updated_at = $3
		WHERE id = $1 AND status = $4
	`
	tag, err := tx.Exec(ctx, statusQuery, res.ID,
		domain.ReservationStatusCancelled.String(), now,
		domain.ReservationStatusConfirmed.String())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "already cancelled")
		return false, domain.ErrAlreadyCancelled
	}

	tag, err = tx.Exec(ctx, releaseCapacityQuery, res.EventID, res.Quantity, expectedVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to release capacity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Ok, "version guard miss")
		return false, nil
	}

	// Drop seat links so the seats become bookable again
	if len(res.SeatIDs) > 0 {
		if _, err := tx.Exec(ctx, `DELETE FROM reservation_seats WHERE reservation_id = $1`, res.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return false, fmt.Errorf("failed to unlink seats: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to commit cancellation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return true, nil
}

func insertReservation(ctx context.Context, tx pgx.Tx, res *domain.Reservation) error {
	query := `
		INSERT INTO reservations (
			id, user_id, event_id, quantity, status, idempotency_key,
			unit_price, total_price, reserved_version, confirmed_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := tx.Exec(ctx, query,
		res.ID,
		res.UserID,
		res.EventID,
		res.Quantity,
		res.Status.String(),
		nullString(res.IdempotencyKey),
		res.UnitPrice,
		res.TotalPrice,
		res.ReservedVersion,
		res.ConfirmedAt,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	var (
		status         string
		idempotencyKey *string
		confirmedAt    *time.Time
		cancelledAt    *time.Time
	)

	err := row.Scan(
		&res.ID,
		&res.UserID,
		&res.EventID,
		&res.Quantity,
		&status,
		&idempotencyKey,
		&res.UnitPrice,
		&res.TotalPrice,
		&res.ReservedVersion,
		&confirmedAt,
		&cancelledAt,
		&res.CreatedAt,
		&res.UpdatedAt,
		&res.SeatIDs,
	)
	if err != nil {
		return nil, err
	}

	res.Status = domain.ReservationStatus(status)
	if idempotencyKey != nil {
		res.IdempotencyKey = *idempotencyKey
	}
	if confirmedAt != nil {
		res.ConfirmedAt = *confirmedAt
	}
	res.CancelledAt = cancelledAt
	return res, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// nullString converts an empty string to a nil pointer
func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Ensure PostgresReservationRepository implements ReservationRepository
var _ ReservationRepository = (*PostgresReservationRepository)(nil)

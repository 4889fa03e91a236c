package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// renumberQuery closes the gap left by a departing position so active
// positions stay a dense 1..N sequence.
const renumberQuery = `
	UPDATE waitlist_entries SET
		position = position - 1,
		updated_at = NOW()
	WHERE event_id = $1 AND status = 'active' AND position > $2
`

// PostgresWaitlistRepository implements WaitlistRepository using PostgreSQL
// with pgxpool.
type PostgresWaitlistRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresWaitlistRepository creates a new PostgresWaitlistRepository
func NewPostgresWaitlistRepository(pool *pgxpool.Pool) *PostgresWaitlistRepository {
	return &PostgresWaitlistRepository{pool: pool}
}

// Join appends the user at position N+1. The event row lock serializes
// concurrent joins so two users never take the same position.
func (r *PostgresWaitlistRepository) Join(ctx context.Context, userID, eventID string) (*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.join")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to lock event row: %w", err)
	}

	var existing int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM waitlist_entries WHERE event_id = $1 AND user_id = $2 AND status = 'active'`,
		eventID, userID).Scan(&existing)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to check existing entry: %w", err)
	}
	if existing > 0 {
		span.SetStatus(codes.Error, "already waitlisted")
		return nil, domain.ErrAlreadyWaitlisted
	}

	now := time.Now()
	entry := &domain.WaitlistEntry{
		UserID:    userID,
		EventID:   eventID,
		Status:    domain.WaitlistStatusActive,
		JoinedAt:  now,
		UpdatedAt: now,
	}

	insertQuery := `
		INSERT INTO waitlist_entries (id, user_id, event_id, position, status, joined_at, updated_at)
		VALUES (
			gen_random_uuid(), $1, $2,
			(SELECT COALESCE(MAX(position), 0) + 1 FROM waitlist_entries WHERE event_id = $2 AND status = 'active'),
			'active', $3, $3
		)
		RETURNING id, position
	`
	if err := tx.QueryRow(ctx, insertQuery, userID, eventID, now).Scan(&entry.ID, &entry.Position); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to insert waitlist entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to commit waitlist join: %w", err)
	}

	span.SetAttributes(attribute.Int("position", entry.Position))
	span.SetStatus(codes.Ok, "")
	return entry, nil
}

// Leave removes the user's active entry and renumbers the rest in the same
// transaction.
func (r *PostgresWaitlistRepository) Leave(ctx context.Context, userID, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.leave")
	defer span.End()

	span.SetAttributes(
		attribute.String("user_id", userID),
		attribute.String("event_id", eventID),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT 1 FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to lock event row: %w", err)
	}

	var position int
	err = tx.QueryRow(ctx,
		`DELETE FROM waitlist_entries WHERE event_id = $1 AND user_id = $2 AND status = 'active' RETURNING position`,
		eventID, userID).Scan(&position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "not found")
			return domain.ErrWaitlistNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete waitlist entry: %w", err)
	}

	if _, err := tx.Exec(ctx, renumberQuery, eventID, position); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to renumber waitlist: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to commit waitlist leave: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// TopActive returns up to limit active entries ordered by position
func (r *PostgresWaitlistRepository) TopActive(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.top_active")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("limit", limit),
	)

	query := `
		SELECT id, user_id, event_id, position, status, joined_at, updated_at
		FROM waitlist_entries
		WHERE event_id = $1 AND status = 'active'
		ORDER BY position ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, eventID, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query waitlist: %w", err)
	}
	defer rows.Close()

	var entries []*domain.WaitlistEntry
	for rows.Next() {
		entry := &domain.WaitlistEntry{}
		var status string
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.EventID,
			&entry.Position,
			&status,
			&entry.JoinedAt,
			&entry.UpdatedAt,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan waitlist entry: %w", err)
		}
		entry.Status = domain.WaitlistStatus(status)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read waitlist entries: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(entries)))
	span.SetStatus(codes.Ok, "")
	return entries, nil
}

// Promote converts one entry into a confirmed reservation in its own
// transaction: guarded decrement, reservation insert, status flip, renumber.
func (r *PostgresWaitlistRepository) Promote(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.waitlist.promote")
	defer span.End()

	span.SetAttributes(
		attribute.String("entry_id", entry.ID),
		attribute.String("user_id", entry.UserID),
		attribute.String("event_id", entry.EventID),
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
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, err
	}

	// The renumber must use the entry's position as of this transaction, not
	// the one read before it: a Leave committing in between shifts positions
	// and a stale value would renumber the wrong range.
	statusQuery := `
		UPDATE waitlist_entries SET
			status = 'promoted',
			updated_at = NOW()
		WHERE id = $1 AND status = 'active'
		RETURNING position
	`
	var currentPosition int
	if err := tx.QueryRow(ctx, statusQuery, entry.ID).Scan(&currentPosition); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "entry no longer active")
			return false, domain.ErrWaitlistNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to mark entry promoted: %w", err)
	}

	if _, err := tx.Exec(ctx, renumberQuery, entry.EventID, currentPosition); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to renumber waitlist: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to commit promotion: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return true, nil
}

// Ensure PostgresWaitlistRepository implements WaitlistRepository
var _ WaitlistRepository = (*PostgresWaitlistRepository)(nil)

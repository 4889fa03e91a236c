package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prachya-t/ticket-reserve/internal/domain"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PostgresSeatRepository implements SeatRepository using PostgreSQL with pgxpool
type PostgresSeatRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresSeatRepository creates a new PostgresSeatRepository
func NewPostgresSeatRepository(pool *pgxpool.Pool) *PostgresSeatRepository {
	return &PostgresSeatRepository{pool: pool}
}

// GetStates returns the current state of every requested seat. The confirmed
// link join is what makes the inside-the-lock re-check authoritative: a seat
// sold since the pre-check shows up here with a non-empty reservation id.
func (r *PostgresSeatRepository) GetStates(ctx context.Context, eventID string, seatIDs []string) ([]domain.SeatState, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.seat.get_states")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int("seat_count", len(seatIDs)),
	)

	query := `
		SELECT s.id, s.section_id, s.label, s.blocked, sec.price_multiplier,
			COALESCE(rs.reservation_id, '')
		FROM seats s
		JOIN sections sec ON sec.id = s.section_id
		LEFT JOIN reservation_seats rs ON rs.seat_id = s.id
		WHERE sec.event_id = $1 AND s.id = ANY($2)
	`

	rows, err := r.pool.Query(ctx, query, eventID, seatIDs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to query seat states: %w", err)
	}
	defer rows.Close()

	found := make(map[string]domain.SeatState, len(seatIDs))
	for rows.Next() {
		var state domain.SeatState
		if err := rows.Scan(
			&state.ID,
			&state.SectionID,
			&state.Label,
			&state.Blocked,
			&state.PriceMultiplier,
			&state.ConfirmedReservation,
		); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan seat state: %w", err)
		}
		found[state.ID] = state
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read seat states: %w", err)
	}

	// Preserve request order and surface missing ids explicitly
	states := make([]domain.SeatState, 0, len(seatIDs))
	for _, id := range seatIDs {
		state, ok := found[id]
		if !ok {
			span.SetStatus(codes.Error, "seat not found")
			return nil, fmt.Errorf("seat %s: %w", id, domain.ErrSeatNotFound)
		}
		states = append(states, state)
	}

	span.SetStatus(codes.Ok, "")
	return states, nil
}

// Ensure PostgresSeatRepository implements SeatRepository
var _ SeatRepository = (*PostgresSeatRepository)(nil)

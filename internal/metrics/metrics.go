package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
)

// Metrics holds the instruments for the reservation core
type Metrics struct {
	ReservationsCommitted *telemetry.Counter
	ReservationsRejected  *telemetry.Counter
	CASRetries            *telemetry.Counter
	CASAttemptDuration    *telemetry.Histogram

	JobsSubmitted   *telemetry.Counter
	JobsCompleted   *telemetry.Counter
	JobDuration     *telemetry.Histogram
	LockContentions *telemetry.Counter

	WaitlistJoins      *telemetry.Counter
	WaitlistPromotions *telemetry.Counter

	QueueDepth *telemetry.UpDownCounter
}

// New creates all reservation metrics instruments
func New() (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ReservationsCommitted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "reservations_committed_total",
		Description: "Reservations successfully committed",
	}); err != nil {
		return nil, err
	}
	if m.ReservationsRejected, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "reservations_rejected_total",
		Description: "Reservation requests rejected with a business conflict",
	}); err != nil {
		return nil, err
	}
	if m.CASRetries, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "reservation_cas_retries_total",
		Description: "Version-guard misses that triggered a re-read and retry",
	}); err != nil {
		return nil, err
	}
	if m.CASAttemptDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "reservation_cas_attempt_duration_seconds",
		Description: "Duration of a single capacity commit attempt",
		Unit:        "s",
	}); err != nil {
		return nil, err
	}
	if m.JobsSubmitted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_jobs_submitted_total",
		Description: "Seat reservation jobs accepted for processing",
	}); err != nil {
		return nil, err
	}
	if m.JobsCompleted, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_jobs_completed_total",
		Description: "Seat reservation jobs reaching a terminal state",
	}); err != nil {
		return nil, err
	}
	if m.JobDuration, err = telemetry.NewHistogram(telemetry.MetricOpts{
		Name:        "seat_job_duration_seconds",
		Description: "Time from job submission to terminal result",
		Unit:        "s",
	}); err != nil {
		return nil, err
	}
	if m.LockContentions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "seat_lock_contentions_total",
		Description: "Seat lock acquisitions lost to a concurrent holder",
	}); err != nil {
		return nil, err
	}
	if m.WaitlistJoins, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "waitlist_joins_total",
		Description: "Users joining a waitlist",
	}); err != nil {
		return nil, err
	}
	if m.WaitlistPromotions, err = telemetry.NewCounter(telemetry.MetricOpts{
		Name:        "waitlist_promotions_total",
		Description: "Waitlist entries promoted to reservations",
	}); err != nil {
		return nil, err
	}
	if m.QueueDepth, err = telemetry.NewUpDownCounter(telemetry.MetricOpts{
		Name:        "seat_job_queue_depth",
		Description: "Jobs currently waiting on the ready queue",
	}); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOutcome increments the committed/rejected counter for a booking path
func (m *Metrics) RecordOutcome(ctx context.Context, path string, committed bool) {
	attrs := []attribute.KeyValue{attribute.String("path", path)}
	if committed {
		m.ReservationsCommitted.Add(ctx, 1, attrs...)
		return
	}
	m.ReservationsRejected.Add(ctx, 1, attrs...)
}

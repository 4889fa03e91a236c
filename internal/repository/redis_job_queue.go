package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	pkgredis "github.com/prachya-t/ticket-reserve/pkg/redis"
	"github.com/prachya-t/ticket-reserve/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	readyQueueKey   = "jobs:seat:ready"
	delayedQueueKey = "jobs:seat:delayed"
)

// moveDueScript atomically moves due members from the delayed sorted set onto
// the ready list so a crash between read and push cannot drop a job.
const moveDueScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for i = 1, #due do
	redis.call("LPUSH", KEYS[2], due[i])
	redis.call("ZREM", KEYS[1], due[i])
end
return #due
`

const scriptMoveDue = "jobqueue_move_due"

// RedisJobQueue implements JobQueue on a Redis list for ready jobs plus a
// sorted set for delayed retries. Delivery is at-least-once; the durable job
// row in Postgres is the source of truth for job state.
type RedisJobQueue struct {
	client *pkgredis.Client
}

// NewRedisJobQueue creates a new RedisJobQueue
func NewRedisJobQueue(client *pkgredis.Client) *RedisJobQueue {
	return &RedisJobQueue{client: client}
}

// Enqueue pushes a job id onto the ready queue
func (q *RedisJobQueue) Enqueue(ctx context.Context, jobID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.jobqueue.enqueue")
	defer span.End()

	span.SetAttributes(attribute.String("job_id", jobID))

	if err := q.client.LPush(ctx, readyQueueKey, jobID).Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Dequeue blocks up to timeout for the next ready job id. ok=false means the
// timeout elapsed with nothing to do.
func (q *RedisJobQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, bool, error) {
	result, err := q.client.BRPop(ctx, timeout, readyQueueKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to dequeue job: %w", err)
	}
	if len(result) < 2 {
		return "", false, nil
	}
	return result[1], true, nil
}

// EnqueueDelayed schedules a job id for re-delivery after delay
func (q *RedisJobQueue) EnqueueDelayed(ctx context.Context, jobID string, delay time.Duration) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.jobqueue.enqueue_delayed")
	defer span.End()

	span.SetAttributes(
		attribute.String("job_id", jobID),
		attribute.String("delay", delay.String()),
	)

	deliverAt := float64(time.Now().Add(delay).UnixMilli())
	err := q.client.ZAdd(ctx, delayedQueueKey, redis.Z{Score: deliverAt, Member: jobID}).Err()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to schedule delayed job %s: %w", jobID, err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MoveDue moves delayed jobs whose delivery time has come onto the ready queue
func (q *RedisJobQueue) MoveDue(ctx context.Context, now time.Time) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.redis.jobqueue.move_due")
	defer span.End()

	result := q.client.EvalWithFallback(ctx, scriptMoveDue, moveDueScript,
		[]string{delayedQueueKey, readyQueueKey},
		strconv.FormatInt(now.UnixMilli(), 10))
	moved, err := result.Int()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to move due jobs: %w", err)
	}

	span.SetAttributes(attribute.Int("moved", moved))
	span.SetStatus(codes.Ok, "")
	return moved, nil
}

// Depth returns the current ready-queue length
func (q *RedisJobQueue) Depth(ctx context.Context) (int64, error) {
	depth, err := q.client.LLen(ctx, readyQueueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

// Ensure RedisJobQueue implements JobQueue
var _ JobQueue = (*RedisJobQueue)(nil)

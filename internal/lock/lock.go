package lock

import (
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
	pkgredis "github.com/prachya-t/ticket-reserve/pkg/redis"
)

// DefaultTTL must exceed the worst-case seat commit time so a crashed holder
// cannot leave a booked seat set locked for long, while still bounding how
// long contenders see the set as unavailable.
const DefaultTTL = 30 * time.Second

const keyPrefix = "seatlock:"

// releaseScript deletes the lock only when the stored token matches the
// caller's, so a holder whose TTL expired cannot release a reacquired lock.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

const scriptRelease = "lock_release"

// SeatLock is a TTL-based mutual-exclusion primitive shared across worker
// processes, backed by Redis SET NX.
type SeatLock struct {
	client *pkgredis.Client
	ttl    time.Duration
}

// New creates a SeatLock with the given TTL (DefaultTTL when zero)
func New(client *pkgredis.Client, ttl time.Duration) *SeatLock {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SeatLock{client: client, ttl: ttl}
}

// Key derives the lock key from the event and the sorted seat set, so two
// requests for the same seats contend on the same key regardless of the
// order the seats were submitted in.
func Key(eventID string, seatIDs []string) string {
	sorted := domain.SortedSeatIDs(seatIDs)
	h := sha1.Sum([]byte(strings.Join(sorted, ",")))
	return fmt.Sprintf("%s%s:%s", keyPrefix, eventID, hex.EncodeToString(h[:]))
}

// NewToken returns a random holder token
func NewToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Acquire attempts a single atomic set-if-absent with expiry. It does not
// block or poll: contention is reported to the caller immediately.
func (l *SeatLock) Acquire(ctx context.Context, key, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return ok, nil
}

// Release removes the lock if and only if the token still matches
func (l *SeatLock) Release(ctx context.Context, key, token string) error {
	result := l.client.EvalWithFallback(ctx, scriptRelease, releaseScript, []string{key}, token)
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

// TTL returns the configured lock TTL
func (l *SeatLock) TTL() time.Duration {
	return l.ttl
}

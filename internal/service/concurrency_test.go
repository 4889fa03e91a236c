package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/prachya-t/ticket-reserve/internal/domain"
)

// inventoryStore is a shared in-memory event row with the same version-guard
// semantics as the conditional UPDATE: the decrement commits only when the
// expected version matches and enough capacity remains.
type inventoryStore struct {
	mu    sync.Mutex
	event domain.Event
}

func (s *inventoryStore) get() *domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.event
	return &e
}

func (s *inventoryStore) tryDecrement(quantity int, expectedVersion int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.event.Version != expectedVersion || s.event.Available < quantity {
		return false
	}
	s.event.Available -= quantity
	s.event.Version++
	return true
}

func TestCapacityService_ConcurrentReservesNeverOversell(t *testing.T) {
	const capacity = 5
	const requests = 20

	store := &inventoryStore{event: domain.Event{
		ID:            "event-001",
		BasePrice:     50.00,
		TotalCapacity: capacity,
		Available:     capacity,
		Version:       1,
		SalesDeadline: time.Now().Add(time.Hour),
	}}

	eventRepo := &MockEventRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
			return store.get(), nil
		},
	}
	resRepo := &MockReservationRepository{
		CreateWithCapacityDecrementFunc: func(ctx context.Context, res *domain.Reservation, expectedVersion int64) (bool, error) {
			return store.tryDecrement(res.Quantity, expectedVersion), nil
		},
	}

	// A high retry bound lets every loser re-read until the outcome is
	// decided by capacity, not by contention.
	svc := NewCapacityService(eventRepo, resRepo, nil, nil, 100)

	var (
		mu           sync.Mutex
		committed    int
		insufficient int
		wg           sync.WaitGroup
	)
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), "user-001", "event-001", 1, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				committed++
			case errors.Is(err, domain.ErrInsufficientCapacity):
				insufficient++
			default:
				t.Errorf("Reserve() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if committed != capacity {
		t.Errorf("committed = %d, want exactly %d", committed, capacity)
	}
	if insufficient != requests-capacity {
		t.Errorf("insufficient = %d, want %d", insufficient, requests-capacity)
	}
	final := store.get()
	if final.Available != 0 {
		t.Errorf("final available = %d, want 0", final.Available)
	}
	if final.Version != 1+capacity {
		t.Errorf("final version = %d, want %d", final.Version, 1+capacity)
	}
}

// waitlistStore keeps active entries with the dense-position invariant. Its
// promote resolves the entry's position at commit time, the way the row flip
// returns it, rather than trusting the position the caller read earlier.
type waitlistStore struct {
	mu      sync.Mutex
	entries []*domain.WaitlistEntry
}

func newWaitlistStore(eventID string, users ...string) *waitlistStore {
	s := &waitlistStore{}
	for i, u := range users {
		s.entries = append(s.entries, &domain.WaitlistEntry{
			ID:       "wl-" + u,
			UserID:   u,
			EventID:  eventID,
			Position: i + 1,
			Status:   domain.WaitlistStatusActive,
		})
	}
	return s
}

func (s *waitlistStore) topActive(limit int) []*domain.WaitlistEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	sorted := make([]*domain.WaitlistEntry, len(s.entries))
	copy(sorted, s.entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })
	out := make([]*domain.WaitlistEntry, 0, limit)
	for _, e := range sorted {
		if len(out) == limit {
			break
		}
		snapshot := *e
		out = append(out, &snapshot)
	}
	return out
}

func (s *waitlistStore) leave(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.UserID == userID {
			s.removeLocked(i)
			return
		}
	}
}

func (s *waitlistStore) promote(entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == entryID {
			s.removeLocked(i)
			return nil
		}
	}
	return domain.ErrWaitlistNotFound
}

// removeLocked deletes one entry and renumbers every higher current position
// down by one, keeping active positions a dense 1..N sequence.
func (s *waitlistStore) removeLocked(i int) {
	departed := s.entries[i].Position
	s.entries = append(s.entries[:i], s.entries[i+1:]...)
	for _, e := range s.entries {
		if e.Position > departed {
			e.Position--
		}
	}
}

func (s *waitlistStore) positions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Position)
	}
	sort.Ints(out)
	return out
}

func TestWaitlistService_PromoteInterleavedWithLeaveKeepsPositionsDense(t *testing.T) {
	store := newWaitlistStore("event-001",
		"user-a", "user-b", "user-c", "user-d", "user-e")

	// user-a leaves after the promotion pass has taken its snapshot but
	// before any entry commits, shifting every position behind it.
	var leaveOnce sync.Once
	eventRepo := &MockEventRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*domain.Event, error) {
			leaveOnce.Do(func() { store.leave("user-a") })
			return &domain.Event{
				ID:            id,
				BasePrice:     80.00,
				TotalCapacity: 100,
				Available:     10,
				Version:       1,
				SalesDeadline: time.Now().Add(time.Hour),
			}, nil
		},
	}
	waitlistRepo := &MockWaitlistRepository{
		TopActiveFunc: func(ctx context.Context, eventID string, limit int) ([]*domain.WaitlistEntry, error) {
			return store.topActive(limit), nil
		},
		PromoteFunc: func(ctx context.Context, entry *domain.WaitlistEntry, res *domain.Reservation, expectedVersion int64) (bool, error) {
			if err := store.promote(entry.ID); err != nil {
				return false, err
			}
			return true, nil
		},
	}

	svc := newWaitlistService(eventRepo, waitlistRepo, &MockReservationRepository{})

	results, err := svc.Promote(context.Background(), "event-001", 3)
	if err != nil {
		t.Fatalf("Promote() unexpected error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	// The departed entry fails in isolation; the two behind it promote
	if results[0].Promoted() {
		t.Error("departed user must not be promoted")
	}
	if !results[1].Promoted() || !results[2].Promoted() {
		t.Errorf("remaining snapshot entries should promote: %+v", results)
	}

	// user-d and user-e remain; their positions must be dense from 1
	got := store.positions()
	want := []int{1, 2}
	if len(got) != len(want) {
		t.Fatalf("active positions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("active positions = %v, want %v", got, want)
		}
	}
}

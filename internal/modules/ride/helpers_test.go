// README: Shared ride test fixtures: roll number stub, fake clock, recording event sink and a service harness.
package ride

import (
	"context"
	"sync"
	"testing"
	"time"

	"quickauto/internal/modules/pricing"
	"quickauto/internal/types"
)

type stubRiders map[types.ID]string

func (s stubRiders) RollNo(_ context.Context, uid types.ID) (string, error) {
	roll, ok := s[uid]
	if !ok {
		return "", ErrProfileNotFound
	}
	return roll, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

type harness struct {
	svc   *Service
	repo  *MemoryStore
	clock *fakeClock
	sink  *recordingSink
}

const (
	riderA types.ID = "rider-a"
	riderB types.ID = "rider-b"
)

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{repo: NewMemoryStore(), clock: newFakeClock(), sink: &recordingSink{}}
	base := []Option{WithClock(h.clock.Now), WithEvents(h.sink)}
	h.svc = NewService(h.repo, pricing.NewService(), stubRiders{riderA: "CS21B001", riderB: "EE21B042"},
		append(base, opts...)...)
	return h
}

func (h *harness) create(t *testing.T, cmd CreateCommand) *Ride {
	t.Helper()
	if cmd.RiderUID == "" {
		cmd.RiderUID = riderA
	}
	if cmd.Category == "" {
		cmd.Category = CategoryNormal
	}
	if cmd.Source == "" {
		cmd.Source = "Main Gate"
	}
	if cmd.Destination == "" {
		cmd.Destination = "Hostel 5"
	}
	if cmd.Category != CategoryNormal {
		if cmd.Name == "" {
			cmd.Name = "Asha"
		}
		if cmd.Phone == "" {
			cmd.Phone = "9876543210"
		}
	}
	if cmd.Category == CategoryAdvance {
		if cmd.Date == "" {
			cmd.Date = "2026-03-03"
		}
		if cmd.Time == "" {
			cmd.Time = "08:30"
		}
		if cmd.NumPersons == 0 {
			cmd.NumPersons = 1
		}
	}
	r, err := h.svc.Create(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}
	return r
}

func (h *harness) status(t *testing.T, ref Ref) Status {
	t.Helper()
	r, err := h.svc.Get(context.Background(), ref)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	return r.Status
}

func recv(t *testing.T, ch <-chan Snapshot) (Snapshot, bool) {
	t.Helper()
	select {
	case s, ok := <-ch:
		return s, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}, false
	}
}

func idPtr(s string) *types.ID {
	id := types.ID(s)
	return &id
}

func testPricing() Pricing { return pricing.NewService() }

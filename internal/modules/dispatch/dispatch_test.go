// README: Dispatch unit tests covering the visibility rule, dashboard merge and grace window.
package dispatch

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

// mockRides keeps rides in memory and applies driver actions without the full lifecycle rules.
type mockRides struct {
	mu    sync.Mutex
	rides map[ride.Ref]*ride.Ride
}

func newMockRides(rides ...*ride.Ride) *mockRides {
	m := &mockRides{rides: map[ride.Ref]*ride.Ride{}}
	for _, r := range rides {
		m.rides[r.Ref()] = r
	}
	return m
}

func (m *mockRides) Get(_ context.Context, ref ride.Ref) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[ref]
	if !ok {
		return nil, ride.ErrNotFound
	}
	return r.Clone(), nil
}

func (m *mockRides) ListOpen(_ context.Context, c ride.Category) ([]*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*ride.Ride
	for _, r := range m.rides {
		if r.Category == c && !r.Status.Terminal() {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (m *mockRides) TryAccept(_ context.Context, cmd ride.AcceptCommand) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rides[cmd.Ref]
	if r.AcceptedBy != nil {
		return nil, ride.ErrAlreadyTaken
	}
	r.Status, r.AcceptedBy = ride.StatusAccepted, cmd.DriverID.Ptr()
	return r.Clone(), nil
}

func (m *mockRides) Reject(_ context.Context, cmd ride.RejectCommand) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rides[cmd.Ref]
	if r.Status == ride.StatusPaid {
		r.Status = ride.StatusCancelledAfterPaid
		return r.Clone(), nil
	}
	r.Status = ride.StatusRejected
	if !r.RejectedByDriver(cmd.DriverID) {
		r.RejectedBy = append(r.RejectedBy, cmd.DriverID)
	}
	return r.Clone(), nil
}

func (m *mockRides) MarkPaid(_ context.Context, cmd ride.PayCommand) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rides[cmd.Ref]
	r.Status, r.TransactionID = ride.StatusPaid, cmd.TransactionID
	return r.Clone(), nil
}

func (m *mockRides) Finish(_ context.Context, cmd ride.FinishCommand) (*ride.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.rides[cmd.Ref]
	r.Status = ride.StatusFinished
	return r.Clone(), nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
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

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRide(c ride.Category, id string, age time.Duration) *ride.Ride {
	return &ride.Ride{
		ID: types.ID(id), Category: c, Status: ride.StatusPending,
		CreatedAt: t0.Add(-age), SubmittedAt: t0.Add(-age),
	}
}

func TestVisible(t *testing.T) {
	d1 := types.ID("d1")
	tests := []struct {
		name string
		ride ride.Ride
		want bool
	}{
		{"fresh ride", ride.Ride{}, true},
		{"rejected by this driver", ride.Ride{RejectedBy: []types.ID{"d1"}}, false},
		{"rejected by another driver", ride.Ride{RejectedBy: []types.ID{"d2"}}, true},
		{"accepted by this driver", ride.Ride{AcceptedBy: d1.Ptr()}, true},
		{"accepted by another driver", ride.Ride{AcceptedBy: types.ID("d2").Ptr()}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Visible(&tt.ride, d1); got != tt.want {
				t.Errorf("Visible() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDashboard_MergesAndSorts(t *testing.T) {
	rides := newMockRides(
		newRide(ride.CategoryAdvance, "a1", time.Minute),
		newRide(ride.CategoryNormal, "n2", time.Second),
		newRide(ride.CategoryVIP, "v1", time.Minute),
		newRide(ride.CategoryNormal, "n1", time.Minute),
	)
	taken := newRide(ride.CategoryVIP, "v2", time.Second)
	taken.AcceptedBy = types.ID("d2").Ptr()
	rides.rides[taken.Ref()] = taken

	svc := NewService(rides, NewMemoryGraceStore(nil), 0, nil)
	entries, err := svc.Dashboard(context.Background(), "d1")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	var ids []types.ID
	for _, e := range entries {
		ids = append(ids, e.Ride.ID)
	}
	want := []types.ID{"n1", "n2", "v1", "a1"}
	if len(ids) != len(want) {
		t.Fatalf("dashboard ids = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("dashboard ids = %v, want %v", ids, want)
		}
	}
}

func TestReject_GraceWindow(t *testing.T) {
	clock := &fakeClock{now: t0}
	r := newRide(ride.CategoryNormal, "n1", 0)
	rides := newMockRides(r)
	svc := NewService(rides, NewMemoryGraceStore(clock.Now), 5*time.Second, nil)
	ctx := context.Background()

	if _, err := svc.Reject(ctx, "d1", r.Ref()); err != nil {
		t.Fatalf("reject: %v", err)
	}

	entries, _ := svc.Dashboard(ctx, "d1")
	if len(entries) != 1 || !entries[0].RejectedRecently {
		t.Fatalf("inside window: %+v, want one RejectedRecently entry", entries)
	}
	other, _ := svc.Dashboard(ctx, "d2")
	if len(other) != 1 || other[0].RejectedRecently {
		t.Fatalf("other driver sees %+v, want plain entry", other)
	}

	clock.Advance(5 * time.Second)
	entries, _ = svc.Dashboard(ctx, "d1")
	if len(entries) != 0 {
		t.Fatalf("after window: %+v, want ride gone", entries)
	}
}

func TestDashboard_GraceExpiryIsEarliestWindow(t *testing.T) {
	clock := &fakeClock{now: t0}
	first := newRide(ride.CategoryNormal, "n1", 0)
	second := newRide(ride.CategoryVIP, "v1", 0)
	svc := NewService(newMockRides(first, second), NewMemoryGraceStore(clock.Now), 5*time.Second, nil)
	ctx := context.Background()

	if _, err := svc.Reject(ctx, "d1", first.Ref()); err != nil {
		t.Fatalf("reject first: %v", err)
	}
	clock.Advance(2 * time.Second)
	if _, err := svc.Reject(ctx, "d1", second.Ref()); err != nil {
		t.Fatalf("reject second: %v", err)
	}

	entries, _ := svc.Dashboard(ctx, "d1")
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want both rejected rides", entries)
	}
	want := map[types.ID]time.Time{"n1": t0.Add(5 * time.Second), "v1": t0.Add(7 * time.Second)}
	for _, e := range entries {
		if !e.GraceUntil.Equal(want[e.Ride.ID]) {
			t.Errorf("%s grace until %v, want %v", e.Ride.ID, e.GraceUntil, want[e.Ride.ID])
		}
	}
	next, ok := NextGraceExpiry(entries)
	if !ok || !next.Equal(t0.Add(5*time.Second)) {
		t.Errorf("NextGraceExpiry() = %v, %v; want %v", next, ok, t0.Add(5*time.Second))
	}

	clock.Advance(3 * time.Second)
	entries, _ = svc.Dashboard(ctx, "d1")
	if len(entries) != 1 || entries[0].Ride.ID != "v1" {
		t.Fatalf("after first window: %+v, want only v1", entries)
	}
	if _, ok := NextGraceExpiry(nil); ok {
		t.Error("NextGraceExpiry(nil) reported an expiry")
	}
}

func TestCancelAfterPay(t *testing.T) {
	r := newRide(ride.CategoryVIP, "v1", 0)
	rides := newMockRides(r)
	svc := NewService(rides, nil, 0, nil)
	ctx := context.Background()

	if _, err := svc.CancelAfterPay(ctx, "d1", r.Ref()); !errors.Is(err, ride.ErrInvalidState) {
		t.Fatalf("cancel unpaid ride error = %v, want ErrInvalidState", err)
	}
	if _, err := svc.Accept(ctx, "d1", r.Ref()); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := svc.ConfirmPayment(ctx, "d1", r.Ref(), "TXN000111"); err != nil {
		t.Fatalf("confirm payment: %v", err)
	}
	got, err := svc.CancelAfterPay(ctx, "d1", r.Ref())
	if err != nil || got.Status != ride.StatusCancelledAfterPaid {
		t.Fatalf("cancel after pay = %+v, %v", got, err)
	}
	within, _ := svc.grace.Within(ctx, "d1", []ride.Ref{r.Ref()})
	if _, ok := within[r.Ref()]; ok {
		t.Error("cancelling a paid ride must not open a grace window")
	}
}

func TestRedisGraceStore(t *testing.T) {
	addr := os.Getenv("QA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("QA_TEST_REDIS_ADDR not set; skipping Redis grace store test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	store := NewRedisGraceStore(rdb)
	ctx := context.Background()
	ref := ride.Ref{Category: ride.CategoryNormal, ID: "grace-r1"}

	if err := store.Mark(ctx, "d1", ref, 200*time.Millisecond); err != nil {
		t.Fatalf("mark: %v", err)
	}
	got, err := store.Within(ctx, "d1", []ride.Ref{ref})
	if err != nil {
		t.Fatalf("within: %v", err)
	}
	until, ok := got[ref]
	if !ok || time.Until(until) > 200*time.Millisecond {
		t.Fatalf("within = %v, want expiry inside 200ms", got)
	}
	time.Sleep(400 * time.Millisecond)
	got, _ = store.Within(ctx, "d1", []ride.Ref{ref})
	if _, ok := got[ref]; ok {
		t.Error("grace key should expire")
	}
}

// README: Change feed tests: coalescing, Observe semantics and the Redis feed.
package ride

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestMemoryFeed_CoalescesToLatest(t *testing.T) {
	feed := NewMemoryFeed()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := feed.Subscribe(ctx, "r1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	for v := 1; v <= 3; v++ {
		_ = feed.Publish(ctx, Snapshot{Ride: Ride{ID: "r1", StatusVersion: v}})
	}
	_ = feed.Publish(ctx, Snapshot{Ride: Ride{ID: "other", StatusVersion: 9}})

	got, _ := recv(t, ch)
	if got.Ride.StatusVersion != 3 {
		t.Fatalf("got version %d, want latest 3", got.Ride.StatusVersion)
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra snapshot %+v", extra)
	default:
	}

	cancel()
	if _, ok := recv(t, ch); ok {
		t.Fatal("channel should close when ctx ends")
	}
}

func TestObserve_StreamsUntilDeleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.create(t, CreateCommand{})

	stream, err := h.svc.Observe(ctx, r.Ref())
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	first, _ := recv(t, stream)
	if first.Ride.Status != StatusPending || first.Deleted {
		t.Fatalf("first snapshot = %+v, want current pending ride", first)
	}

	if _, err := h.svc.TryAccept(ctx, AcceptCommand{Ref: r.Ref(), DriverID: "d1"}); err != nil {
		t.Fatalf("accept: %v", err)
	}
	next, _ := recv(t, stream)
	if next.Ride.Status != StatusAccepted || !next.Ride.AcceptedByDriver("d1") {
		t.Fatalf("second snapshot = %+v, want accepted by d1", next.Ride)
	}

	if err := h.svc.Cancel(ctx, CancelCommand{Ref: r.Ref(), RiderUID: riderA}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	last, _ := recv(t, stream)
	if !last.Deleted {
		t.Fatalf("final snapshot = %+v, want deleted", last)
	}
	if _, ok := recv(t, stream); ok {
		t.Fatal("stream should close after deletion")
	}
}

func TestObserve_MissingRide(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Observe(context.Background(), Ref{Category: CategoryVIP, ID: "nope"}); err == nil {
		t.Fatal("observe of missing ride should fail")
	}
}

func TestObserve_ClosesOnContextEnd(t *testing.T) {
	h := newHarness(t)
	r := h.create(t, CreateCommand{})
	ctx, cancel := context.WithCancel(context.Background())

	stream, err := h.svc.Observe(ctx, r.Ref())
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	recv(t, stream)
	cancel()
	if _, ok := recv(t, stream); ok {
		t.Fatal("stream should close when ctx ends")
	}
}

func TestRedisFeed(t *testing.T) {
	addr := os.Getenv("QA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("QA_TEST_REDIS_ADDR not set; skipping Redis feed test")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	feed := NewRedisFeed(rdb, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	one, err := feed.Subscribe(ctx, "redis-r1")
	if err != nil {
		t.Fatalf("subscribe one: %v", err)
	}
	all, err := feed.Subscribe(ctx, "")
	if err != nil {
		t.Fatalf("subscribe all: %v", err)
	}
	if err := feed.Publish(ctx, Snapshot{Ride: Ride{ID: "redis-r1", Category: CategoryNormal, Status: StatusAccepted}}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for name, ch := range map[string]<-chan Snapshot{"one": one, "all": all} {
		got, _ := recv(t, ch)
		if got.Ride.ID != "redis-r1" || got.Ride.Status != StatusAccepted {
			t.Errorf("%s subscriber got %+v", name, got.Ride)
		}
	}
}

// README: Timeout rule, expiry and sweep loop tests.
package ride

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEvaluateTimeout(t *testing.T) {
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	timeouts := DefaultTimeouts()

	tests := []struct {
		name    string
		ride    Ride
		elapsed time.Duration
		want    TimeoutAction
	}{
		{"normal low bid early", Ride{Category: CategoryNormal, Status: StatusPending, Amount: 10}, 29 * time.Second, TimeoutNone},
		{"normal low bid expired", Ride{Category: CategoryNormal, Status: StatusPending, Amount: 10}, 30 * time.Second, TimeoutSuggestRaise},
		{"normal 30 expired", Ride{Category: CategoryNormal, Status: StatusPending, Amount: 30}, time.Minute, TimeoutSuggestRaise},
		{"normal capped expired", Ride{Category: CategoryNormal, Status: StatusPending, Amount: 40}, 30 * time.Second, TimeoutNoDriver},
		{"vip expired", Ride{Category: CategoryVIP, Status: StatusPending, Amount: 40}, 30 * time.Second, TimeoutNoDriver},
		{"advance at 45s", Ride{Category: CategoryAdvance, Status: StatusPending, Amount: 20}, 45 * time.Second, TimeoutNone},
		{"advance at 60s", Ride{Category: CategoryAdvance, Status: StatusPending, Amount: 20}, 60 * time.Second, TimeoutNoDriver},
		{"accepted never times out", Ride{Category: CategoryVIP, Status: StatusAccepted, Amount: 40}, time.Hour, TimeoutNone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.ride
			r.SubmittedAt = base
			if got := EvaluateTimeout(&r, timeouts, base.Add(tt.elapsed)); got != tt.want {
				t.Errorf("EvaluateTimeout() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestExpirePending_LowBidLeavesStorePending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.create(t, CreateCommand{Amount: 10})

	h.clock.Advance(31 * time.Second)
	action, err := h.svc.ExpirePending(ctx, r.Ref(), h.clock.Now())
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if action != TimeoutSuggestRaise {
		t.Fatalf("action = %s, want suggest_raise", action)
	}
	if st := h.status(t, r.Ref()); st != StatusPending {
		t.Errorf("store status = %s, want pending", st)
	}
}

func TestExpirePending_NoDriver(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	vip := h.create(t, CreateCommand{Category: CategoryVIP})

	h.clock.Advance(30 * time.Second)
	action, err := h.svc.ExpirePending(ctx, vip.Ref(), h.clock.Now())
	if err != nil || action != TimeoutNoDriver {
		t.Fatalf("expire vip = %s, %v", action, err)
	}
	if st := h.status(t, vip.Ref()); st != StatusNoDriver {
		t.Fatalf("vip status = %s, want no-driver", st)
	}
	if _, err := h.svc.Resubmit(ctx, ResubmitCommand{Ref: vip.Ref(), RiderUID: riderA}); !errors.Is(err, ErrInvalidState) {
		t.Errorf("vip resubmit after no-driver error = %v, want ErrInvalidState", err)
	}
}

func TestNormalNoDriverRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	r := h.create(t, CreateCommand{Amount: 40})

	h.clock.Advance(30 * time.Second)
	if _, err := h.svc.ExpirePending(ctx, r.Ref(), h.clock.Now()); err != nil {
		t.Fatalf("expire: %v", err)
	}
	again, err := h.svc.Resubmit(ctx, ResubmitCommand{Ref: r.Ref(), RiderUID: riderA})
	if err != nil || again.Status != StatusPending {
		t.Fatalf("retry after no-driver = %+v, %v", again, err)
	}

	// The timer restarts from the resubmission.
	h.clock.Advance(10 * time.Second)
	action, err := h.svc.ExpirePending(ctx, r.Ref(), h.clock.Now())
	if err != nil || action != TimeoutNone {
		t.Errorf("expire right after retry = %s, %v", action, err)
	}
}

func TestSweepOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	lowBid := h.create(t, CreateCommand{Amount: 10})
	capped := h.create(t, CreateCommand{Amount: 40})
	vip := h.create(t, CreateCommand{Category: CategoryVIP})
	adv := h.create(t, CreateCommand{Category: CategoryAdvance})

	h.clock.Advance(45 * time.Second)
	h.svc.sweepOnce(ctx)

	want := map[Ref]Status{
		lowBid.Ref(): StatusPending,
		capped.Ref(): StatusNoDriver,
		vip.Ref():    StatusNoDriver,
		adv.Ref():    StatusPending,
	}
	for ref, st := range want {
		if got := h.status(t, ref); got != st {
			t.Errorf("%s status = %s, want %s", ref, got, st)
		}
	}

	h.clock.Advance(20 * time.Second)
	h.svc.sweepOnce(ctx)
	if got := h.status(t, adv.Ref()); got != StatusNoDriver {
		t.Errorf("advance status after 65s = %s, want no-driver", got)
	}
}

func TestRunTimeoutMonitor_StopsOnCancel(t *testing.T) {
	h := newHarness(t, WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.svc.RunTimeoutMonitor(ctx)
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunTimeoutMonitor did not return after cancel")
	}
}

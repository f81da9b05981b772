// README: Pending-ride timeouts: the per-category rule and the background sweeper.
package ride

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"quickauto/internal/modules/pricing"
	"quickauto/internal/observability"
)

type TimeoutAction int

const (
	// TimeoutNone means the ride is not pending or its window has not elapsed.
	TimeoutNone TimeoutAction = iota
	// TimeoutSuggestRaise asks a Normal rider to raise the bid; nothing is written.
	TimeoutSuggestRaise
	// TimeoutNoDriver moves the ride to no-driver.
	TimeoutNoDriver
)

func (a TimeoutAction) String() string {
	switch a {
	case TimeoutSuggestRaise:
		return "suggest_raise"
	case TimeoutNoDriver:
		return "no_driver"
	default:
		return "none"
	}
}

// EvaluateTimeout applies the timeout rule to r at time now.
func EvaluateTimeout(r *Ride, t Timeouts, now time.Time) TimeoutAction {
	if r.Status != StatusPending {
		return TimeoutNone
	}
	if now.Sub(r.SubmittedAt) < t.For(r.Category) {
		return TimeoutNone
	}
	if r.Category == CategoryNormal && r.Amount < pricing.NormalBidCap {
		return TimeoutSuggestRaise
	}
	return TimeoutNoDriver
}

// ExpirePending evaluates the timeout rule for one ride and performs the durable part of it.
func (s *Service) ExpirePending(ctx context.Context, ref Ref, now time.Time) (TimeoutAction, error) {
	r, err := s.Get(ctx, ref)
	if err != nil {
		return TimeoutNone, err
	}
	action := EvaluateTimeout(r, s.timeouts, now)
	if action != TimeoutNoDriver {
		return action, nil
	}
	if _, err := s.move(ctx, r, Mutation{To: StatusNoDriver}, ActorSystem, ""); err != nil {
		return TimeoutNone, err
	}
	observability.TimeoutsFired.WithLabelValues(string(r.Category), action.String()).Inc()
	return action, nil
}

// RunTimeoutMonitor sweeps pending rides of every category until ctx ends.
func (s *Service) RunTimeoutMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	now := s.now()
	for _, c := range Categories {
		rides, err := s.repo.ListByStatus(ctx, c, StatusPending)
		if err != nil {
			s.log.WithFields(logrus.Fields{"category": c, "error": err}).Warn("timeout sweep list failed")
			continue
		}
		for _, r := range rides {
			if EvaluateTimeout(r, s.timeouts, now) != TimeoutNoDriver {
				continue
			}
			if _, err := s.ExpirePending(ctx, r.Ref(), now); err != nil {
				s.log.WithFields(logrus.Fields{"ride_id": r.ID, "category": c, "error": err}).Info("timeout sweep skipped ride")
			}
		}
	}
}

// README: Dispatch service builds driver dashboards and performs driver-side ride actions.
package dispatch

import (
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"quickauto/internal/logging"
	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

// Rides is the subset of the ride service drivers act through.
type Rides interface {
	Get(ctx context.Context, ref ride.Ref) (*ride.Ride, error)
	ListOpen(ctx context.Context, c ride.Category) ([]*ride.Ride, error)
	TryAccept(ctx context.Context, cmd ride.AcceptCommand) (*ride.Ride, error)
	Reject(ctx context.Context, cmd ride.RejectCommand) (*ride.Ride, error)
	MarkPaid(ctx context.Context, cmd ride.PayCommand) (*ride.Ride, error)
	Finish(ctx context.Context, cmd ride.FinishCommand) (*ride.Ride, error)
}

type Service struct {
	rides  Rides
	grace  GraceStore
	window time.Duration
	log    *logrus.Logger
}

func NewService(rides Rides, grace GraceStore, window time.Duration, log *logrus.Logger) *Service {
	if grace == nil {
		grace = NewMemoryGraceStore(nil)
	}
	if window <= 0 {
		window = 5 * time.Second
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{rides: rides, grace: grace, window: window, log: log}
}

// Dashboard merges the open rides of every category into the driver's view, in category order
// and then by creation time.
func (s *Service) Dashboard(ctx context.Context, driverID types.ID) ([]Entry, error) {
	var (
		entries  []Entry
		rejected []*ride.Ride
	)
	for _, c := range ride.Categories {
		rides, err := s.rides.ListOpen(ctx, c)
		if err != nil {
			return nil, err
		}
		for _, r := range rides {
			switch {
			case Visible(r, driverID):
				entries = append(entries, Entry{Ride: *r})
			case r.RejectedByDriver(driverID) && (r.AcceptedBy == nil || *r.AcceptedBy == driverID):
				rejected = append(rejected, r)
			}
		}
	}

	if len(rejected) > 0 {
		refs := make([]ride.Ref, len(rejected))
		for i, r := range rejected {
			refs[i] = r.Ref()
		}
		recent, err := s.grace.Within(ctx, driverID, refs)
		if err != nil {
			// The window is cosmetic; losing it only hides rejected rides early.
			s.log.WithFields(logrus.Fields{"driver_id": driverID, "error": err}).Warn("grace window lookup failed")
			recent = nil
		}
		for _, r := range rejected {
			if until, ok := recent[r.Ref()]; ok {
				entries = append(entries, Entry{Ride: *r, RejectedRecently: true, GraceUntil: until})
			}
		}
	}

	order := func(c ride.Category) int { return slices.Index(ride.Categories, c) }
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if d := order(a.Ride.Category) - order(b.Ride.Category); d != 0 {
			return d
		}
		return a.Ride.CreatedAt.Compare(b.Ride.CreatedAt)
	})
	return entries, nil
}

func (s *Service) Accept(ctx context.Context, driverID types.ID, ref ride.Ref) (*ride.Ride, error) {
	return s.rides.TryAccept(ctx, ride.AcceptCommand{Ref: ref, DriverID: driverID})
}

// Reject declines a ride. A plain rejection opens the driver's grace window for it.
func (s *Service) Reject(ctx context.Context, driverID types.ID, ref ride.Ref) (*ride.Ride, error) {
	r, err := s.rides.Reject(ctx, ride.RejectCommand{Ref: ref, DriverID: driverID})
	if err != nil {
		return nil, err
	}
	if r.Status == ride.StatusRejected {
		if err := s.grace.Mark(ctx, driverID, ref, s.window); err != nil {
			s.log.WithFields(logrus.Fields{"driver_id": driverID, "ride_id": ref.ID, "error": err}).Warn("grace window mark failed")
		}
	}
	return r, nil
}

// ConfirmPayment is the driver's acknowledgement that the rider paid.
func (s *Service) ConfirmPayment(ctx context.Context, driverID types.ID, ref ride.Ref, transactionID string) (*ride.Ride, error) {
	return s.rides.MarkPaid(ctx, ride.PayCommand{
		Ref: ref, ActorType: ride.ActorDriver, ActorID: driverID, TransactionID: transactionID,
	})
}

// CancelAfterPay cancels a paid ride from the driver's side.
func (s *Service) CancelAfterPay(ctx context.Context, driverID types.ID, ref ride.Ref) (*ride.Ride, error) {
	cur, err := s.rides.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if cur.Status != ride.StatusPaid {
		return nil, ride.ErrInvalidState
	}
	return s.rides.Reject(ctx, ride.RejectCommand{Ref: ref, DriverID: driverID})
}

func (s *Service) Finish(ctx context.Context, driverID types.ID, ref ride.Ref) (*ride.Ride, error) {
	return s.rides.Finish(ctx, ride.FinishCommand{Ref: ref, ActorType: ride.ActorDriver, ActorID: driverID})
}

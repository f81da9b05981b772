// README: Rider session controller: local status, message, bid and timers for one rider screen.
package rider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"quickauto/internal/logging"
	"quickauto/internal/modules/pricing"
	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

const (
	MsgBidIncreased   = "Bid amount increased. Please resubmit."
	MsgAccepted       = "Ride accepted by driver."
	MsgRejected       = "Ride rejected by driver."
	MsgNoDriver       = "No Driver Available, Retry"
	MsgRaiseSuggested = "Consider increasing the amount to pay."
)

var (
	ErrNoRide      = errors.New("no ride in this session")
	ErrNotAccepted = errors.New("ride has not been accepted")
	ErrClosed      = errors.New("session closed")
)

// Rides is the subset of the ride service a rider screen drives.
type Rides interface {
	Create(ctx context.Context, cmd ride.CreateCommand) (*ride.Ride, error)
	Resubmit(ctx context.Context, cmd ride.ResubmitCommand) (*ride.Ride, error)
	ResetRejected(ctx context.Context, ref ride.Ref, riderUID types.ID) (*ride.Ride, error)
	ExpirePending(ctx context.Context, ref ride.Ref, now time.Time) (ride.TimeoutAction, error)
	MarkPaid(ctx context.Context, cmd ride.PayCommand) (*ride.Ride, error)
	Cancel(ctx context.Context, cmd ride.CancelCommand) error
	Observe(ctx context.Context, ref ride.Ref) (<-chan ride.Snapshot, error)
}

// Trip holds what the rider typed into the booking form.
type Trip struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	NumPersons  int    `json:"numPersons"`
	Luggage     int    `json:"studentsWithLuggage"`
}

// State is what the rider screen renders.
type State struct {
	Status  ride.Status `json:"status"`
	Message string      `json:"message,omitempty"`
	Amount  int64       `json:"amount"`
	Ride    *ride.Ride  `json:"ride,omitempty"`
}

type Session struct {
	rides    Rides
	category ride.Category
	riderUID types.ID
	timeout  time.Duration
	log      *logrus.Logger
	now      func() time.Time

	mu      sync.Mutex
	status  ride.Status
	message string
	amount  int64
	trip    Trip
	current *ride.Ride
	timer   *time.Timer
	gen     int
	watch   context.CancelFunc
	closed  bool
	updates chan State
}

type Option func(*Session)

func WithLogger(l *logrus.Logger) Option    { return func(s *Session) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Session) { s.now = now } }

func NewSession(rides Rides, category ride.Category, riderUID types.ID, timeout time.Duration, opts ...Option) *Session {
	s := &Session{
		rides:    rides,
		category: category,
		riderUID: riderUID,
		timeout:  timeout,
		log:      logging.Discard(),
		now:      time.Now,
		status:   ride.StatusIdle,
		updates:  make(chan State, 1),
	}
	switch category {
	case ride.CategoryNormal:
		s.amount = pricing.NormalBidFloor
	case ride.CategoryVIP:
		s.amount = pricing.VIPFare
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Updates delivers the latest state after every change; intermediate states may be skipped.
func (s *Session) Updates() <-chan State { return s.updates }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	return State{Status: s.status, Message: s.message, Amount: s.amount, Ride: s.current.Clone()}
}

// publishLocked pushes the current state, replacing any undelivered one.
func (s *Session) publishLocked() {
	if s.closed {
		return
	}
	st := s.stateLocked()
	for {
		select {
		case s.updates <- st:
			return
		default:
		}
		select {
		case <-s.updates:
		default:
		}
	}
}

func (s *Session) SetTrip(t Trip) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trip = t
	if s.category == ride.CategoryAdvance && t.NumPersons > 0 {
		s.amount = pricing.AdvanceBase + pricing.AdvancePerHead*int64(t.NumPersons) + pricing.AdvanceLuggage*int64(t.Luggage)
	}
	s.publishLocked()
}

// IncreaseAmount raises a Normal bid by one step. It reports false when the bid is already at the cap.
func (s *Session) IncreaseAmount() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.category != ride.CategoryNormal || s.amount >= pricing.NormalBidCap {
		return false
	}
	s.amount = pricing.NextBid(s.amount)
	s.message = MsgBidIncreased
	s.status = ride.StatusIdle
	s.stopTimerLocked()
	s.publishLocked()
	return true
}

// Submit creates the ride, or resubmits the existing one, then starts the category timer.
func (s *Session) Submit(ctx context.Context) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, ErrClosed
	}
	if s.current != nil && s.current.Status.Terminal() {
		s.resetLocked()
	}
	cur, trip, amount := s.current.Clone(), s.trip, s.amount
	s.mu.Unlock()

	var (
		r   *ride.Ride
		err error
	)
	if cur == nil {
		cmd := ride.CreateCommand{
			Category:    s.category,
			RiderUID:    s.riderUID,
			Name:        trip.Name,
			Phone:       trip.Phone,
			Source:      trip.Source,
			Destination: trip.Destination,
			Date:        trip.Date,
			Time:        trip.Time,
			NumPersons:  trip.NumPersons,
			Luggage:     trip.Luggage,
		}
		if s.category == ride.CategoryNormal {
			cmd.Amount = amount
		}
		r, err = s.rides.Create(ctx, cmd)
	} else {
		cmd := ride.ResubmitCommand{Ref: cur.Ref(), RiderUID: s.riderUID}
		if s.category == ride.CategoryNormal {
			cmd.Amount = amount
		}
		r, err = s.rides.Resubmit(ctx, cmd)
	}
	if err != nil {
		return s.State(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
	s.amount = r.Amount
	s.status = ride.StatusPending
	s.message = ""
	s.armTimerLocked()
	if s.watch == nil {
		s.startWatchLocked(r.Ref())
	}
	s.publishLocked()
	return s.stateLocked(), nil
}

// OnSnapshot applies a store change to the local screen state.
func (s *Session) OnSnapshot(ctx context.Context, snap ride.Snapshot) {
	s.mu.Lock()
	if s.closed || s.current == nil || s.current.ID != snap.Ride.ID {
		s.mu.Unlock()
		return
	}
	if snap.Deleted {
		s.resetLocked()
		s.publishLocked()
		s.mu.Unlock()
		return
	}
	r := snap.Ride
	s.current = &r
	reset := false
	switch r.Status {
	case ride.StatusAccepted:
		s.stopTimerLocked()
		s.status, s.message = ride.StatusAccepted, MsgAccepted
	case ride.StatusRejected:
		s.stopTimerLocked()
		s.status, s.message = ride.StatusIdle, MsgRejected
		reset = true
	case ride.StatusNoDriver:
		s.stopTimerLocked()
		s.status, s.message = ride.StatusNoDriver, MsgNoDriver
	case ride.StatusPaid, ride.StatusFinished, ride.StatusCancelledAfterPaid:
		s.stopTimerLocked()
		s.status = r.Status
	}
	s.publishLocked()
	ref := r.Ref()
	s.mu.Unlock()

	if reset {
		if _, err := s.rides.ResetRejected(ctx, ref, s.riderUID); err != nil && !errors.Is(err, ride.ErrConflict) {
			s.log.WithFields(logrus.Fields{"ride_id": ref.ID, "category": ref.Category, "error": err}).Warn("reset rejected ride failed")
		}
	}
}

// OnTimeout runs when the category timer fires while the ride is still pending.
func (s *Session) OnTimeout(ctx context.Context) {
	s.mu.Lock()
	if s.closed || s.current == nil || s.status != ride.StatusPending {
		s.mu.Unlock()
		return
	}
	if s.category == ride.CategoryNormal && s.amount < pricing.NormalBidCap {
		// Advisory only; the stored ride stays pending.
		s.status, s.message = ride.StatusIdle, MsgRaiseSuggested
		s.publishLocked()
		s.mu.Unlock()
		return
	}
	ref := s.current.Ref()
	s.mu.Unlock()

	action, err := s.rides.ExpirePending(ctx, ref, s.now())
	if err != nil {
		s.log.WithFields(logrus.Fields{"ride_id": ref.ID, "category": ref.Category, "error": err}).Warn("expire pending ride failed")
		return
	}
	if action != ride.TimeoutNoDriver {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == ride.StatusPending {
		s.status, s.message = ride.StatusNoDriver, MsgNoDriver
		s.publishLocked()
	}
}

func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	cur := s.current.Clone()
	s.mu.Unlock()
	if cur == nil {
		return ErrNoRide
	}
	if err := s.rides.Cancel(ctx, ride.CancelCommand{Ref: cur.Ref(), RiderUID: s.riderUID}); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.publishLocked()
	return nil
}

// Pay records payment for an accepted ride; an empty transaction id is generated by the service.
func (s *Session) Pay(ctx context.Context, transactionID string) (State, error) {
	s.mu.Lock()
	cur, status := s.current.Clone(), s.status
	s.mu.Unlock()
	if cur == nil {
		return State{}, ErrNoRide
	}
	if status != ride.StatusAccepted {
		return s.State(), ErrNotAccepted
	}
	r, err := s.rides.MarkPaid(ctx, ride.PayCommand{
		Ref: cur.Ref(), ActorType: ride.ActorRider, ActorID: s.riderUID, TransactionID: transactionID,
	})
	if err != nil {
		return s.State(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = r
	s.status = ride.StatusPaid
	s.publishLocked()
	return s.stateLocked(), nil
}

// Close stops timers and the store subscription, like leaving the page.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopTimerLocked()
	if s.watch != nil {
		s.watch()
		s.watch = nil
	}
	s.closed = true
	close(s.updates)
}

func (s *Session) resetLocked() {
	s.stopTimerLocked()
	if s.watch != nil {
		s.watch()
		s.watch = nil
	}
	s.current = nil
	s.status = ride.StatusIdle
	s.message = ""
}

func (s *Session) armTimerLocked() {
	s.stopTimerLocked()
	if s.timeout <= 0 {
		return
	}
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.timeout, func() {
		s.mu.Lock()
		stale := gen != s.gen
		s.mu.Unlock()
		if !stale {
			s.OnTimeout(context.Background())
		}
	})
}

func (s *Session) stopTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) startWatchLocked(ref ride.Ref) {
	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.rides.Observe(ctx, ref)
	if err != nil {
		cancel()
		s.log.WithFields(logrus.Fields{"ride_id": ref.ID, "category": ref.Category, "error": err}).Warn("observe ride failed")
		return
	}
	s.watch = cancel
	go func() {
		for snap := range stream {
			s.OnSnapshot(ctx, snap)
		}
	}()
}

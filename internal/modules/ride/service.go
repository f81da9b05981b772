// README: Ride service implements the lifecycle operations on top of a compare-and-swap repository.
package ride

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"quickauto/internal/logging"
	"quickauto/internal/modules/pricing"
	"quickauto/internal/modules/profile"
	"quickauto/internal/observability"
	"quickauto/internal/types"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrProfileNotFound  = profile.ErrProfileNotFound
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("ride not found")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrConflict         = errors.New("ride state conflict")
	ErrAlreadyTaken     = errors.New("ride already taken")
	ErrForbidden        = errors.New("ride belongs to another user")
	ErrStoreWrite       = errors.New("ride store write failed")
	ErrStoreRead        = errors.New("ride store read failed")
)

type Pricing interface {
	Quote(ctx context.Context, req pricing.Request) (types.Money, error)
}

// RollNoResolver looks up the roll number of a signed-in student.
type RollNoResolver interface {
	RollNo(ctx context.Context, uid types.ID) (string, error)
}

// Notifier is told about new rides and status changes. Implementations must not block for long.
type Notifier interface {
	RideCreated(ctx context.Context, r Ride)
	StatusChanged(ctx context.Context, r Ride)
}

type Timeouts struct {
	Normal  time.Duration
	VIP     time.Duration
	Advance time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Normal: 30 * time.Second, VIP: 30 * time.Second, Advance: 60 * time.Second}
}

func (t Timeouts) For(c Category) time.Duration {
	switch c {
	case CategoryVIP:
		return t.VIP
	case CategoryAdvance:
		return t.Advance
	default:
		return t.Normal
	}
}

type Service struct {
	repo     Repository
	pricing  Pricing
	riders   RollNoResolver
	feed     Feed
	events   EventSink
	notifier Notifier
	idem     IdempotencyStore
	log      *logrus.Logger
	validate *validator.Validate
	timeouts Timeouts
	sweep    time.Duration
	now      func() time.Time
}

type Option func(*Service)

func WithFeed(f Feed) Option { return func(s *Service) { s.feed = f } }
func WithEvents(e EventSink) Option { return func(s *Service) { s.events = e } }
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }
func WithIdempotency(i IdempotencyStore) Option { return func(s *Service) { s.idem = i } }
func WithLogger(l *logrus.Logger) Option { return func(s *Service) { s.log = l } }
func WithTimeouts(t Timeouts) Option { return func(s *Service) { s.timeouts = t } }
func WithSweepInterval(d time.Duration) Option { return func(s *Service) { s.sweep = d } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, pricing Pricing, riders RollNoResolver, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		pricing:  pricing,
		riders:   riders,
		feed:     NewMemoryFeed(),
		log:      logging.Discard(),
		validate: validator.New(),
		timeouts: DefaultTimeouts(),
		sweep:    5 * time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Timeouts() Timeouts { return s.timeouts }

type CreateCommand struct {
	Category       Category
	RiderUID       types.ID
	Name           string
	Phone          string
	Source         string
	Destination    string
	Amount         int64
	Date           string
	Time           string
	NumPersons     int
	Luggage        int
	IdempotencyKey string
}

type AcceptCommand struct {
	Ref      Ref
	DriverID types.ID
}

type RejectCommand struct {
	Ref      Ref
	DriverID types.ID
}

type ResubmitCommand struct {
	Ref      Ref
	RiderUID types.ID
	// Amount is the new Normal bid; zero keeps the current amount.
	Amount int64
}

type PayCommand struct {
	Ref           Ref
	ActorType     string
	ActorID       types.ID
	TransactionID string
}

type CancelCommand struct {
	Ref      Ref
	RiderUID types.ID
}

type FinishCommand struct {
	Ref       Ref
	ActorType string
	ActorID   types.ID
}

type normalParams struct {
	Source      string `validate:"required"`
	Destination string `validate:"required"`
}

type vipParams struct {
	Name        string `validate:"required"`
	Phone       string `validate:"required"`
	Source      string `validate:"required"`
	Destination string `validate:"required"`
}

type advanceParams struct {
	Name        string `validate:"required"`
	Phone       string `validate:"required"`
	Date        string `validate:"required,datetime=2006-01-02"`
	Time        string `validate:"required,datetime=15:04"`
	Source      string `validate:"required"`
	Destination string `validate:"required"`
	NumPersons  int    `validate:"min=1"`
	Luggage     int    `validate:"min=0,ltefield=NumPersons"`
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Ride, error) {
	if cmd.RiderUID == "" {
		return nil, ErrNotAuthenticated
	}
	if !cmd.Category.Valid() {
		return nil, fmt.Errorf("%w: unknown ride category %q", ErrValidation, cmd.Category)
	}
	if cmd.IdempotencyKey != "" && s.idem != nil {
		ref, ok, err := s.idem.Lookup(ctx, cmd.RiderUID, cmd.IdempotencyKey)
		if err != nil {
			s.log.WithError(err).Warn("idempotency lookup failed")
		} else if ok {
			return s.repo.Get(ctx, ref)
		}
	}

	cmd = trimCommand(cmd)
	if err := s.validateCreate(cmd); err != nil {
		return nil, err
	}
	rollNo, err := s.riders.RollNo(ctx, cmd.RiderUID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreRead, err)
	}
	fare, err := s.pricing.Quote(ctx, pricing.Request{
		Category: string(cmd.Category),
		Bid:      cmd.Amount,
		Persons:  cmd.NumPersons,
		Luggage:  cmd.Luggage,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	now := s.now()
	r := &Ride{
		Category:      cmd.Category,
		RiderUID:      cmd.RiderUID,
		RollNo:        rollNo,
		Source:        cmd.Source,
		Destination:   cmd.Destination,
		RideNumber:    NewRideNumber(cmd.Category),
		Amount:        fare.Amount,
		Status:        StatusPending,
		TransactionID: PendingTransaction,
		CreatedAt:     now,
		SubmittedAt:   now,
	}
	if cmd.Category != CategoryNormal {
		r.Name, r.Phone = cmd.Name, cmd.Phone
	}
	if cmd.Category == CategoryAdvance {
		r.Date, r.Time = cmd.Date, cmd.Time
		r.NumPersons, r.StudentsWithLuggage = cmd.NumPersons, cmd.Luggage
	}
	if err := s.repo.Create(ctx, r); err != nil {
		s.log.WithFields(logrus.Fields{"category": r.Category, "error": err}).Error("create ride failed")
		return nil, wrapStore(ErrStoreWrite, err)
	}
	if cmd.IdempotencyKey != "" && s.idem != nil {
		if err := s.idem.Remember(ctx, cmd.RiderUID, cmd.IdempotencyKey, r.Ref()); err != nil {
			s.log.WithError(err).Warn("idempotency remember failed")
		}
	}
	riderID := r.RiderUID
	s.afterWrite(ctx, r, StatusNone, false, ActorRider, &riderID)
	if s.notifier != nil {
		s.notifier.RideCreated(ctx, *r.Clone())
	}
	return r, nil
}

func trimCommand(cmd CreateCommand) CreateCommand {
	cmd.Name = strings.TrimSpace(cmd.Name)
	cmd.Phone = strings.TrimSpace(cmd.Phone)
	cmd.Source = strings.TrimSpace(cmd.Source)
	cmd.Destination = strings.TrimSpace(cmd.Destination)
	cmd.Date = strings.TrimSpace(cmd.Date)
	cmd.Time = strings.TrimSpace(cmd.Time)
	return cmd
}

func (s *Service) validateCreate(cmd CreateCommand) error {
	var params any
	switch cmd.Category {
	case CategoryVIP:
		params = vipParams{Name: cmd.Name, Phone: cmd.Phone, Source: cmd.Source, Destination: cmd.Destination}
	case CategoryAdvance:
		params = advanceParams{
			Name: cmd.Name, Phone: cmd.Phone, Date: cmd.Date, Time: cmd.Time,
			Source: cmd.Source, Destination: cmd.Destination,
			NumPersons: cmd.NumPersons, Luggage: cmd.Luggage,
		}
	default:
		params = normalParams{Source: cmd.Source, Destination: cmd.Destination}
	}
	if err := s.validate.Struct(params); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, ref Ref) (*Ride, error) {
	r, err := s.repo.Get(ctx, ref)
	if err != nil {
		return nil, wrapStore(ErrStoreRead, err)
	}
	return r, nil
}

// ListOpen returns the rides of a category a dashboard may still show.
func (s *Service) ListOpen(ctx context.Context, c Category) ([]*Ride, error) {
	rides, err := s.repo.ListByStatus(ctx, c,
		StatusIdle, StatusPending, StatusAccepted, StatusRejected, StatusNoDriver, StatusPaid)
	if err != nil {
		return nil, wrapStore(ErrStoreRead, err)
	}
	return rides, nil
}

func (s *Service) TryAccept(ctx context.Context, cmd AcceptCommand) (*Ride, error) {
	if cmd.DriverID == "" {
		return nil, ErrNotAuthenticated
	}
	r, err := s.Get(ctx, cmd.Ref)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusAccepted || r.AcceptedBy != nil {
		s.conflict(r, "already_taken")
		return nil, ErrAlreadyTaken
	}
	if !CanTransition(r.Category, r.Status, StatusAccepted) {
		return nil, ErrInvalidState
	}
	driverID := cmd.DriverID
	updated, err := s.repo.Apply(ctx, cmd.Ref, Mutation{
		From: r.Status, Version: r.StatusVersion, To: StatusAccepted, AcceptedBy: &driverID,
	})
	if errors.Is(err, ErrConflict) {
		// Lost the race; report who won when we can tell.
		if cur, gerr := s.repo.Get(ctx, cmd.Ref); gerr == nil && cur.AcceptedBy != nil {
			s.conflict(r, "already_taken")
			return nil, ErrAlreadyTaken
		}
		s.conflict(r, "version")
		return nil, ErrConflict
	}
	if err != nil {
		return nil, s.writeFailed(r, err)
	}
	s.afterWrite(ctx, updated, r.Status, false, ActorDriver, &driverID)
	return updated, nil
}

func (s *Service) Reject(ctx context.Context, cmd RejectCommand) (*Ride, error) {
	if cmd.DriverID == "" {
		return nil, ErrNotAuthenticated
	}
	r, err := s.Get(ctx, cmd.Ref)
	if err != nil {
		return nil, err
	}
	driverID := cmd.DriverID
	m := Mutation{From: r.Status, Version: r.StatusVersion}
	switch r.Status {
	case StatusPaid:
		if !r.AcceptedByDriver(driverID) {
			return nil, ErrForbidden
		}
		m.To = StatusCancelledAfterPaid
	case StatusPending, StatusRejected:
		if r.Status == StatusRejected && r.RejectedByDriver(driverID) {
			return r, nil
		}
		m.To = StatusRejected
		m.AddRejectedBy = &driverID
	default:
		return nil, ErrInvalidState
	}
	if !CanTransition(r.Category, r.Status, m.To) {
		return nil, ErrInvalidState
	}
	updated, err := s.repo.Apply(ctx, cmd.Ref, m)
	if errors.Is(err, ErrConflict) {
		s.conflict(r, "version")
		return nil, ErrConflict
	}
	if err != nil {
		return nil, s.writeFailed(r, err)
	}
	s.afterWrite(ctx, updated, r.Status, false, ActorDriver, &driverID)
	return updated, nil
}

// ResetRejected is the rider's acknowledgement of a rejection; it makes the ride resubmittable.
func (s *Service) ResetRejected(ctx context.Context, ref Ref, riderUID types.ID) (*Ride, error) {
	r, err := s.ownedBy(ctx, ref, riderUID)
	if err != nil {
		return nil, err
	}
	if r.Status == StatusIdle {
		return r, nil
	}
	return s.move(ctx, r, Mutation{To: StatusIdle}, ActorRider, riderUID)
}

func (s *Service) Resubmit(ctx context.Context, cmd ResubmitCommand) (*Ride, error) {
	r, err := s.ownedBy(ctx, cmd.Ref, cmd.RiderUID)
	if err != nil {
		return nil, err
	}
	if r.Category != CategoryNormal && r.Status != StatusIdle {
		return nil, ErrInvalidState
	}
	m := Mutation{To: StatusPending}
	if cmd.Amount != 0 && cmd.Amount != r.Amount {
		if r.Category != CategoryNormal {
			return nil, fmt.Errorf("%w: amount is fixed for %s rides", ErrValidation, r.Category)
		}
		fare, err := s.pricing.Quote(ctx, pricing.Request{Category: string(r.Category), Bid: cmd.Amount})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		m.Amount = &fare.Amount
	}
	now := s.now()
	m.SubmittedAt = &now
	return s.move(ctx, r, m, ActorRider, cmd.RiderUID)
}

func (s *Service) MarkPaid(ctx context.Context, cmd PayCommand) (*Ride, error) {
	r, err := s.Get(ctx, cmd.Ref)
	if err != nil {
		return nil, err
	}
	if err := authorizeParty(r, cmd.ActorType, cmd.ActorID); err != nil {
		return nil, err
	}
	txn := strings.TrimSpace(cmd.TransactionID)
	if txn == "" {
		txn = NewTransactionID()
	}
	return s.move(ctx, r, Mutation{To: StatusPaid, TransactionID: &txn}, cmd.ActorType, cmd.ActorID)
}

func (s *Service) Finish(ctx context.Context, cmd FinishCommand) (*Ride, error) {
	r, err := s.Get(ctx, cmd.Ref)
	if err != nil {
		return nil, err
	}
	if err := authorizeParty(r, cmd.ActorType, cmd.ActorID); err != nil {
		return nil, err
	}
	return s.move(ctx, r, Mutation{To: StatusFinished}, cmd.ActorType, cmd.ActorID)
}

// Cancel deletes the ride unless it has been paid for.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.ownedBy(ctx, cmd.Ref, cmd.RiderUID)
	if err != nil {
		return err
	}
	if !r.Status.Deletable() {
		return ErrInvalidState
	}
	err = s.repo.Delete(ctx, cmd.Ref, r.Status, r.StatusVersion)
	if errors.Is(err, ErrConflict) {
		s.conflict(r, "version")
		return ErrConflict
	}
	if err != nil {
		return s.writeFailed(r, err)
	}
	riderID := cmd.RiderUID
	s.afterWrite(ctx, r, r.Status, true, ActorRider, &riderID)
	return nil
}

func (s *Service) move(ctx context.Context, r *Ride, m Mutation, actorType string, actorID types.ID) (*Ride, error) {
	if !CanTransition(r.Category, r.Status, m.To) {
		return nil, ErrInvalidState
	}
	m.From, m.Version = r.Status, r.StatusVersion
	updated, err := s.repo.Apply(ctx, r.Ref(), m)
	if errors.Is(err, ErrConflict) {
		s.conflict(r, "version")
		return nil, ErrConflict
	}
	if err != nil {
		return nil, s.writeFailed(r, err)
	}
	s.afterWrite(ctx, updated, r.Status, false, actorType, actorID.Ptr())
	return updated, nil
}

func (s *Service) ownedBy(ctx context.Context, ref Ref, riderUID types.ID) (*Ride, error) {
	if riderUID == "" {
		return nil, ErrNotAuthenticated
	}
	r, err := s.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	if r.RiderUID != riderUID {
		return nil, ErrForbidden
	}
	return r, nil
}

// authorizeParty allows the ride's rider or the driver who accepted it.
func authorizeParty(r *Ride, actorType string, actorID types.ID) error {
	switch {
	case actorID == "":
		return ErrNotAuthenticated
	case actorType == ActorRider && r.RiderUID == actorID:
		return nil
	case actorType == ActorDriver && r.AcceptedByDriver(actorID):
		return nil
	default:
		return ErrForbidden
	}
}

func (s *Service) afterWrite(ctx context.Context, r *Ride, from Status, deleted bool, actorType string, actorID *types.ID) {
	to := r.Status
	if deleted {
		to = from
	}
	observability.RideTransitions.WithLabelValues(string(r.Category), string(from), transitionLabel(to, deleted)).Inc()
	s.log.WithFields(logrus.Fields{
		"ride_id":  r.ID,
		"category": r.Category,
		"from":     from,
		"to":       transitionLabel(to, deleted),
		"actor":    actorType,
	}).Info("ride transition")

	if s.events != nil {
		e := Event{
			RideID:     r.ID,
			Category:   r.Category,
			FromStatus: from,
			ToStatus:   to,
			Deleted:    deleted,
			ActorType:  actorType,
			ActorID:    actorID,
			CreatedAt:  s.now(),
		}
		if err := s.events.Append(ctx, e); err != nil {
			s.log.WithFields(logrus.Fields{"ride_id": r.ID, "category": r.Category, "error": err}).Warn("append ride event failed")
		}
	}
	if err := s.feed.Publish(ctx, Snapshot{Ride: *r.Clone(), Deleted: deleted}); err != nil {
		s.log.WithFields(logrus.Fields{"ride_id": r.ID, "category": r.Category, "error": err}).Warn("publish ride snapshot failed")
	}
	if s.notifier != nil && !deleted && from != StatusNone && from != to {
		s.notifier.StatusChanged(ctx, *r.Clone())
	}
}

func transitionLabel(to Status, deleted bool) string {
	if deleted {
		return "deleted"
	}
	return string(to)
}

func (s *Service) conflict(r *Ride, reason string) {
	observability.RideConflicts.WithLabelValues(string(r.Category), reason).Inc()
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "category": r.Category, "reason": reason}).Info("ride write lost")
}

func (s *Service) writeFailed(r *Ride, err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	s.log.WithFields(logrus.Fields{"ride_id": r.ID, "category": r.Category, "error": err}).Error("ride write failed")
	return wrapStore(ErrStoreWrite, err)
}

// wrapStore tags backend failures while keeping domain errors comparable.
func wrapStore(kind, err error) error {
	for _, known := range []error{ErrNotFound, ErrConflict, ErrInvalidState} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", kind, err)
}

// README: Ride aggregate, categories, statuses and the lifecycle transition table.
package ride

import (
	"fmt"
	"slices"
	"time"

	"quickauto/internal/types"
)

type Category string

const (
	CategoryNormal  Category = "normal"
	CategoryVIP     Category = "vip"
	CategoryAdvance Category = "advance"
)

// Categories lists every ride category in dashboard order.
var Categories = []Category{CategoryNormal, CategoryVIP, CategoryAdvance}

func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown ride category %q", ErrValidation, s)
	}
	return c, nil
}

func (c Category) Valid() bool {
	return c == CategoryNormal || c == CategoryVIP || c == CategoryAdvance
}

// Collection is the document collection holding rides of this category.
func (c Category) Collection() string {
	switch c {
	case CategoryVIP:
		return "vipRides"
	case CategoryAdvance:
		return "advanceBookings"
	default:
		return "normalRides"
	}
}

// RideNumberPrefix is the prefix of the cosmetic ride number.
func (c Category) RideNumberPrefix() string {
	switch c {
	case CategoryVIP:
		return "VIP"
	case CategoryAdvance:
		return "RN"
	default:
		return "NR"
	}
}

type Status string

const (
	// StatusNone only appears as the source of a creation event; no ride is ever stored with it.
	StatusNone               Status = "none"
	StatusIdle               Status = "idle"
	StatusPending            Status = "pending"
	StatusAccepted           Status = "accepted"
	StatusRejected           Status = "rejected"
	StatusNoDriver           Status = "no-driver"
	StatusPaid               Status = "paid"
	StatusFinished           Status = "finished"
	StatusCancelledAfterPaid Status = "cancelled after paid"
)

// PendingTransaction is the transaction id a ride carries until it is paid.
const PendingTransaction = "Pending"

// Statuses is every status a stored ride may have.
var Statuses = []Status{
	StatusIdle, StatusPending, StatusAccepted, StatusRejected,
	StatusNoDriver, StatusPaid, StatusFinished, StatusCancelledAfterPaid,
}

func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// Terminal statuses keep the ride as a historical record.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusCancelledAfterPaid
}

// Deletable reports whether a rider cancellation may remove the ride.
func (s Status) Deletable() bool {
	return s.Valid() && s != StatusPaid && !s.Terminal()
}

// Ref addresses one ride document.
type Ref struct {
	Category Category `json:"category"`
	ID       types.ID `json:"id"`
}

func (r Ref) String() string { return string(r.Category) + "/" + string(r.ID) }

type Ride struct {
	ID            types.ID   `json:"id"`
	Category      Category   `json:"category"`
	RiderUID      types.ID   `json:"riderUid"`
	RollNo        string     `json:"rollNo"`
	Name          string     `json:"name,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Source        string     `json:"source"`
	Destination   string     `json:"destination"`
	RideNumber    string     `json:"rideNumber"`
	Amount        int64      `json:"amount"`
	Status        Status     `json:"status"`
	StatusVersion int        `json:"statusVersion"`
	AcceptedBy    *types.ID  `json:"acceptedBy,omitempty"`
	RejectedBy    []types.ID `json:"rejectedBy,omitempty"`
	TransactionID string     `json:"transactionId"`
	CreatedAt     time.Time  `json:"createdAt"`
	SubmittedAt   time.Time  `json:"submittedAt"`

	// Advance bookings only.
	Date                string `json:"date,omitempty"`
	Time                string `json:"time,omitempty"`
	NumPersons          int    `json:"numPersons,omitempty"`
	StudentsWithLuggage int    `json:"studentsWithLuggage,omitempty"`
}

func (r *Ride) Ref() Ref { return Ref{Category: r.Category, ID: r.ID} }

func (r *Ride) RejectedByDriver(driverID types.ID) bool {
	return slices.Contains(r.RejectedBy, driverID)
}

func (r *Ride) AcceptedByDriver(driverID types.ID) bool {
	return r.AcceptedBy != nil && *r.AcceptedBy == driverID
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	cp := *r
	if r.AcceptedBy != nil {
		v := *r.AcceptedBy
		cp.AcceptedBy = &v
	}
	cp.RejectedBy = slices.Clone(r.RejectedBy)
	return &cp
}

// Snapshot is one value of a ride's change stream.
type Snapshot struct {
	Ride    Ride `json:"ride"`
	Deleted bool `json:"deleted,omitempty"`
}

const (
	ActorRider  = "rider"
	ActorDriver = "driver"
	ActorSystem = "system"
)

type Event struct {
	ID         int64
	RideID     types.ID
	Category   Category
	FromStatus Status
	ToStatus   Status
	Deleted    bool
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the ride state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusNone:     {StatusPending},
	StatusIdle:     {StatusPending},
	StatusPending:  {StatusPending, StatusAccepted, StatusRejected, StatusNoDriver},
	StatusRejected: {StatusIdle, StatusRejected},
	StatusNoDriver: {StatusPending},
	StatusAccepted: {StatusPaid},
	StatusPaid:     {StatusFinished, StatusCancelledAfterPaid},
}

// CanTransition reports whether a ride of category c may move from one status to another.
// Only Normal rides may leave no-driver: the rider raises the bid and resubmits.
func CanTransition(c Category, from, to Status) bool {
	if from == StatusNoDriver && c != CategoryNormal {
		return false
	}
	return slices.Contains(AllowedTransitions[from], to)
}

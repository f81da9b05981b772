// README: Repository contract shared by the Firestore and PostgreSQL ride backends.
package ride

import (
	"context"
	"slices"
	"time"

	"quickauto/internal/types"
)

// Repository persists rides. Apply and Delete are compare-and-swap operations: they succeed only
// when the stored status and status version still match, and return ErrConflict otherwise.
type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, ref Ref) (*Ride, error)
	Apply(ctx context.Context, ref Ref, m Mutation) (*Ride, error)
	Delete(ctx context.Context, ref Ref, from Status, version int) error
	ListByStatus(ctx context.Context, c Category, statuses ...Status) ([]*Ride, error)
}

// Mutation describes one guarded status write. Nil fields are left unchanged.
type Mutation struct {
	From    Status
	Version int
	To      Status

	AcceptedBy    *types.ID
	AddRejectedBy *types.ID
	Amount        *int64
	TransactionID *string
	SubmittedAt   *time.Time
}

// applyTo returns a copy of r with m applied; backends use it to build their result.
func (m Mutation) applyTo(r *Ride) *Ride {
	out := r.Clone()
	out.Status = m.To
	out.StatusVersion++
	if m.AcceptedBy != nil {
		v := *m.AcceptedBy
		out.AcceptedBy = &v
	}
	if m.AddRejectedBy != nil && !slices.Contains(out.RejectedBy, *m.AddRejectedBy) {
		out.RejectedBy = append(out.RejectedBy, *m.AddRejectedBy)
	}
	if m.Amount != nil {
		out.Amount = *m.Amount
	}
	if m.TransactionID != nil {
		out.TransactionID = *m.TransactionID
	}
	if m.SubmittedAt != nil {
		out.SubmittedAt = *m.SubmittedAt
	}
	return out
}

func (m Mutation) matches(r *Ride) bool {
	return r.Status == m.From && r.StatusVersion == m.Version
}

func sortByCreated(rides []*Ride) {
	slices.SortStableFunc(rides, func(a, b *Ride) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

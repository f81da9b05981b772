// README: Ride store backed by Firestore (one collection per category, transactional CAS).
package ride

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"quickauto/internal/types"
)

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

// rideDoc is the stored document shape; field names match the documents riders and drivers
// already read.
type rideDoc struct {
	Category            string    `firestore:"category"`
	RiderUID            string    `firestore:"riderUid"`
	RollNo              string    `firestore:"rollNo"`
	Name                string    `firestore:"name,omitempty"`
	Phone               string    `firestore:"phone,omitempty"`
	Source              string    `firestore:"source"`
	Destination         string    `firestore:"destination"`
	RideNumber          string    `firestore:"rideNumber"`
	Amount              int64     `firestore:"amount"`
	Status              string    `firestore:"status"`
	StatusVersion       int64     `firestore:"statusVersion"`
	AcceptedBy          *string   `firestore:"acceptedBy"`
	RejectedBy          []string  `firestore:"rejectedBy,omitempty"`
	TransactionID       string    `firestore:"transactionId"`
	CreatedAt           time.Time `firestore:"createdAt"`
	SubmittedAt         time.Time `firestore:"submittedAt"`
	Date                string    `firestore:"date,omitempty"`
	Time                string    `firestore:"time,omitempty"`
	NumPersons          int64     `firestore:"numPersons,omitempty"`
	StudentsWithLuggage int64     `firestore:"studentsWithLuggage,omitempty"`
}

func toDoc(r *Ride) rideDoc {
	return rideDoc{
		Category:            string(r.Category),
		RiderUID:            string(r.RiderUID),
		RollNo:              r.RollNo,
		Name:                r.Name,
		Phone:               r.Phone,
		Source:              r.Source,
		Destination:         r.Destination,
		RideNumber:          r.RideNumber,
		Amount:              r.Amount,
		Status:              string(r.Status),
		StatusVersion:       int64(r.StatusVersion),
		AcceptedBy:          idPtrToString(r.AcceptedBy),
		RejectedBy:          idsToStrings(r.RejectedBy),
		TransactionID:       r.TransactionID,
		CreatedAt:           r.CreatedAt,
		SubmittedAt:         r.SubmittedAt,
		Date:                r.Date,
		Time:                r.Time,
		NumPersons:          int64(r.NumPersons),
		StudentsWithLuggage: int64(r.StudentsWithLuggage),
	}
}

func fromDoc(id string, c Category, d rideDoc) *Ride {
	r := &Ride{
		ID:                  types.ID(id),
		Category:            c,
		RiderUID:            types.ID(d.RiderUID),
		RollNo:              d.RollNo,
		Name:                d.Name,
		Phone:               d.Phone,
		Source:              d.Source,
		Destination:         d.Destination,
		RideNumber:          d.RideNumber,
		Amount:              d.Amount,
		Status:              Status(d.Status),
		StatusVersion:       int(d.StatusVersion),
		TransactionID:       d.TransactionID,
		CreatedAt:           d.CreatedAt,
		SubmittedAt:         d.SubmittedAt,
		Date:                d.Date,
		Time:                d.Time,
		NumPersons:          int(d.NumPersons),
		StudentsWithLuggage: int(d.StudentsWithLuggage),
	}
	if d.AcceptedBy != nil {
		r.AcceptedBy = types.ID(*d.AcceptedBy).Ptr()
	}
	for _, id := range d.RejectedBy {
		r.RejectedBy = append(r.RejectedBy, types.ID(id))
	}
	return r
}

func (s *FirestoreStore) doc(ref Ref) *firestore.DocumentRef {
	return s.client.Collection(ref.Category.Collection()).Doc(string(ref.ID))
}

func (s *FirestoreStore) Create(ctx context.Context, r *Ride) error {
	docRef := s.client.Collection(r.Category.Collection()).NewDoc()
	if r.ID != "" {
		docRef = s.client.Collection(r.Category.Collection()).Doc(string(r.ID))
	}
	if _, err := docRef.Create(ctx, toDoc(r)); err != nil {
		return err
	}
	r.ID = types.ID(docRef.ID)
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, ref Ref) (*Ride, error) {
	snap, err := s.doc(ref).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d rideDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return fromDoc(snap.Ref.ID, ref.Category, d), nil
}

func (s *FirestoreStore) Apply(ctx context.Context, ref Ref, m Mutation) (*Ride, error) {
	var out *Ride
	docRef := s.doc(ref)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var d rideDoc
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		cur := fromDoc(docRef.ID, ref.Category, d)
		if !m.matches(cur) {
			return ErrConflict
		}

		updates := []firestore.Update{
			{Path: "status", Value: string(m.To)},
			{Path: "statusVersion", Value: firestore.Increment(1)},
		}
		if m.AcceptedBy != nil {
			updates = append(updates, firestore.Update{Path: "acceptedBy", Value: string(*m.AcceptedBy)})
		}
		if m.AddRejectedBy != nil {
			updates = append(updates, firestore.Update{Path: "rejectedBy", Value: firestore.ArrayUnion(string(*m.AddRejectedBy))})
		}
		if m.Amount != nil {
			updates = append(updates, firestore.Update{Path: "amount", Value: *m.Amount})
		}
		if m.TransactionID != nil {
			updates = append(updates, firestore.Update{Path: "transactionId", Value: *m.TransactionID})
		}
		if m.SubmittedAt != nil {
			updates = append(updates, firestore.Update{Path: "submittedAt", Value: *m.SubmittedAt})
		}
		if err := tx.Update(docRef, updates); err != nil {
			return err
		}
		out = m.applyTo(cur)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *FirestoreStore) Delete(ctx context.Context, ref Ref, from Status, version int) error {
	docRef := s.doc(ref)
	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var d rideDoc
		if err := snap.DataTo(&d); err != nil {
			return err
		}
		if Status(d.Status) != from || int(d.StatusVersion) != version {
			return ErrConflict
		}
		return tx.Delete(docRef)
	})
}

func (s *FirestoreStore) ListByStatus(ctx context.Context, c Category, statuses ...Status) ([]*Ride, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	iter := s.client.Collection(c.Collection()).
		Where("status", "in", names).
		Documents(ctx)
	defer iter.Stop()

	var out []*Ride
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		var d rideDoc
		if err := snap.DataTo(&d); err != nil {
			return nil, err
		}
		out = append(out, fromDoc(snap.Ref.ID, c, d))
	}
	sortByCreated(out)
	return out, nil
}

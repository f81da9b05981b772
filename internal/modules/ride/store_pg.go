// README: Ride store backed by PostgreSQL (single rides table, CAS on status_version).
package ride

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"quickauto/internal/types"
)

type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

const rideColumns = `
	id, category, rider_uid, roll_no, name, phone, source, destination,
	ride_number, amount, status, status_version, accepted_by, rejected_by,
	transaction_id, created_at, submitted_at,
	ride_date, ride_time, num_persons, students_with_luggage`

func (s *PGStore) Create(ctx context.Context, r *Ride) error {
	if r.ID == "" {
		r.ID = types.ID(uuid.NewString())
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO rides (`+rideColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12, $13, $14,
			$15, $16, $17,
			$18, $19, $20, $21
		)`,
		string(r.ID), string(r.Category), string(r.RiderUID), r.RollNo, r.Name, r.Phone, r.Source, r.Destination,
		r.RideNumber, r.Amount, string(r.Status), r.StatusVersion, idPtrToString(r.AcceptedBy), idsToStrings(r.RejectedBy),
		r.TransactionID, r.CreatedAt, r.SubmittedAt,
		r.Date, r.Time, r.NumPersons, r.StudentsWithLuggage,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, ref Ref) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1 AND category = $2`,
		string(ref.ID), string(ref.Category))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PGStore) Apply(ctx context.Context, ref Ref, m Mutation) (*Ride, error) {
	row := s.db.QueryRow(ctx, `
		UPDATE rides
		SET status = $1,
			status_version = status_version + 1,
			accepted_by = COALESCE($2, accepted_by),
			rejected_by = CASE
				WHEN $3::text IS NULL OR $3::text = ANY(rejected_by) THEN rejected_by
				ELSE array_append(rejected_by, $3::text)
			END,
			amount = COALESCE($4, amount),
			transaction_id = COALESCE($5, transaction_id),
			submitted_at = COALESCE($6, submitted_at)
		WHERE id = $7 AND category = $8 AND status = $9 AND status_version = $10
		RETURNING `+rideColumns,
		string(m.To),
		idPtrToString(m.AcceptedBy),
		idPtrToString(m.AddRejectedBy),
		m.Amount,
		m.TransactionID,
		m.SubmittedAt,
		string(ref.ID),
		string(ref.Category),
		string(m.From),
		m.Version,
	)
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.missOrConflict(ctx, ref)
	}
	return r, err
}

func (s *PGStore) Delete(ctx context.Context, ref Ref, from Status, version int) error {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM rides
		WHERE id = $1 AND category = $2 AND status = $3 AND status_version = $4`,
		string(ref.ID), string(ref.Category), string(from), version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	return s.missOrConflict(ctx, ref)
}

func (s *PGStore) ListByStatus(ctx context.Context, c Category, statuses ...Status) ([]*Ride, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE category = $1 AND status = ANY($2)
		ORDER BY created_at`, string(c), names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Ride
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) missOrConflict(ctx context.Context, ref Ref) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1 AND category = $2)`,
		string(ref.ID), string(ref.Category)).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// AppendEvent writes one row to the append-only ride_events log.
func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO ride_events (
			ride_id, category, from_status, to_status, deleted, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.RideID),
		string(e.Category),
		string(e.FromStatus),
		string(e.ToStatus),
		e.Deleted,
		e.ActorType,
		idPtrToString(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *PGStore) ListEvents(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, ride_id, category, from_status, to_status, deleted, actor_type, actor_id, created_at
		FROM ride_events
		WHERE ride_id = $1
		ORDER BY id`, string(rideID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.RideID, &e.Category, &e.FromStatus, &e.ToStatus,
			&e.Deleted, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID != nil {
			e.ActorID = types.ID(*actorID).Ptr()
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var acceptedBy *string
	var rejectedBy []string
	var createdAt, submittedAt time.Time
	err := row.Scan(
		&r.ID, &r.Category, &r.RiderUID, &r.RollNo, &r.Name, &r.Phone, &r.Source, &r.Destination,
		&r.RideNumber, &r.Amount, &r.Status, &r.StatusVersion, &acceptedBy, &rejectedBy,
		&r.TransactionID, &createdAt, &submittedAt,
		&r.Date, &r.Time, &r.NumPersons, &r.StudentsWithLuggage,
	)
	if err != nil {
		return nil, err
	}
	if acceptedBy != nil {
		r.AcceptedBy = types.ID(*acceptedBy).Ptr()
	}
	for _, id := range rejectedBy {
		r.RejectedBy = append(r.RejectedBy, types.ID(id))
	}
	r.CreatedAt, r.SubmittedAt = createdAt.UTC(), submittedAt.UTC()
	return &r, nil
}

func idPtrToString(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func idsToStrings(ids []types.ID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

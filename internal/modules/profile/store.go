// README: Profile store backed by Firestore (students/<uid>, drivers/<uid>).
package profile

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

const (
	studentsCollection = "students"
	driversCollection  = "drivers"
)

type Store interface {
	PutStudent(ctx context.Context, s Student) error
	GetStudent(ctx context.Context, uid types.ID) (*Student, error)
	FindStudentByEmail(ctx context.Context, email string) (*Student, error)
	PutDriver(ctx context.Context, d Driver) error
	GetDriver(ctx context.Context, uid types.ID) (*Driver, error)
	SetDeviceToken(ctx context.Context, role string, uid types.ID, token string) error
}

type studentDoc struct {
	UID       string    `firestore:"uid"`
	Name      string    `firestore:"name"`
	Phone     string    `firestore:"phone"`
	Email     string    `firestore:"email"`
	RollNo    string    `firestore:"rollNo"`
	CreatedAt time.Time `firestore:"createdAt"`
	FCMToken  string    `firestore:"fcmToken,omitempty"`
}

type driverDoc struct {
	UID            string    `firestore:"uid"`
	Name           string    `firestore:"name"`
	Phone          string    `firestore:"phone"`
	AutoRickshawNo string    `firestore:"autoRickshawNo"`
	AutoNo         string    `firestore:"autoNo"`
	CreatedAt      time.Time `firestore:"createdAt"`
	FCMToken       string    `firestore:"fcmToken,omitempty"`
}

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) PutStudent(ctx context.Context, st Student) error {
	_, err := s.client.Collection(studentsCollection).Doc(string(st.UID)).Set(ctx, studentDoc{
		UID:       string(st.UID),
		Name:      st.Name,
		Phone:     st.Phone,
		Email:     st.Email,
		RollNo:    st.RollNo,
		CreatedAt: st.CreatedAt,
		FCMToken:  st.FCMToken,
	})
	return err
}

func (s *FirestoreStore) GetStudent(ctx context.Context, uid types.ID) (*Student, error) {
	snap, err := s.client.Collection(studentsCollection).Doc(string(uid)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return studentFrom(snap)
}

func (s *FirestoreStore) FindStudentByEmail(ctx context.Context, email string) (*Student, error) {
	iter := s.client.Collection(studentsCollection).Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return studentFrom(snap)
}

func studentFrom(snap *firestore.DocumentSnapshot) (*Student, error) {
	var d studentDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return &Student{
		UID:       types.ID(snap.Ref.ID),
		Name:      d.Name,
		Phone:     d.Phone,
		Email:     d.Email,
		RollNo:    d.RollNo,
		CreatedAt: d.CreatedAt,
		FCMToken:  d.FCMToken,
	}, nil
}

func (s *FirestoreStore) PutDriver(ctx context.Context, d Driver) error {
	_, err := s.client.Collection(driversCollection).Doc(string(d.UID)).Set(ctx, driverDoc{
		UID:            string(d.UID),
		Name:           d.Name,
		Phone:          d.Phone,
		AutoRickshawNo: d.AutoRickshawNo,
		AutoNo:         d.AutoNo,
		CreatedAt:      d.CreatedAt,
		FCMToken:       d.FCMToken,
	})
	return err
}

func (s *FirestoreStore) GetDriver(ctx context.Context, uid types.ID) (*Driver, error) {
	snap, err := s.client.Collection(driversCollection).Doc(string(uid)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	var d driverDoc
	if err := snap.DataTo(&d); err != nil {
		return nil, err
	}
	return &Driver{
		UID:            types.ID(snap.Ref.ID),
		Name:           d.Name,
		Phone:          d.Phone,
		AutoRickshawNo: d.AutoRickshawNo,
		AutoNo:         d.AutoNo,
		CreatedAt:      d.CreatedAt,
		FCMToken:       d.FCMToken,
	}, nil
}

func (s *FirestoreStore) SetDeviceToken(ctx context.Context, role string, uid types.ID, token string) error {
	coll := studentsCollection
	if role == RoleDriver {
		coll = driversCollection
	}
	_, err := s.client.Collection(coll).Doc(string(uid)).Update(ctx, []firestore.Update{
		{Path: "fcmToken", Value: token},
	})
	if status.Code(err) == codes.NotFound {
		return ErrProfileNotFound
	}
	return err
}

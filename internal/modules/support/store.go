// README: Support store backed by Firestore (feedback and refunds collections).
package support

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	feedbackCollection = "feedback"
	refundsCollection  = "refunds"
)

type Store interface {
	AddFeedback(ctx context.Context, f *Feedback) error
	AddRefund(ctx context.Context, r *Refund) error
}

type feedbackDoc struct {
	Feedback      string    `firestore:"feedback"`
	StudentRollNo string    `firestore:"studentRollNo"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

type refundDoc struct {
	Name            string    `firestore:"name"`
	Email           string    `firestore:"email"`
	RiderName       string    `firestore:"riderName"`
	RideNo          string    `firestore:"rideNo"`
	RefundAmount    string    `firestore:"refundAmount"`
	ReceivingNumber string    `firestore:"receivingNumber"`
	Reason          string    `firestore:"reason"`
	TransactionID   string    `firestore:"transactionId"`
	SubmittedBy     string    `firestore:"submittedBy,omitempty"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) AddFeedback(ctx context.Context, f *Feedback) error {
	ref, _, err := s.client.Collection(feedbackCollection).Add(ctx, feedbackDoc{
		Feedback:      f.Text,
		StudentRollNo: f.StudentRollNo,
		CreatedAt:     f.CreatedAt,
	})
	if err != nil {
		return err
	}
	f.ID = ref.ID
	return nil
}

func (s *FirestoreStore) AddRefund(ctx context.Context, r *Refund) error {
	ref, _, err := s.client.Collection(refundsCollection).Add(ctx, refundDoc{
		Name:            r.Name,
		Email:           r.Email,
		RiderName:       r.RiderName,
		RideNo:          r.RideNo,
		RefundAmount:    r.RefundAmount,
		ReceivingNumber: r.ReceivingNumber,
		Reason:          r.Reason,
		TransactionID:   r.TransactionID,
		SubmittedBy:     r.SubmittedBy,
		CreatedAt:       r.CreatedAt,
	})
	if err != nil {
		return err
	}
	r.ID = ref.ID
	return nil
}

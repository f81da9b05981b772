// README: Support service tests (feedback and refund validation).
package support

import (
	"context"
	"errors"
	"testing"

	"quickauto/internal/types"
)

type mockStore struct {
	feedback []Feedback
	refunds  []Refund
}

func (m *mockStore) AddFeedback(_ context.Context, f *Feedback) error {
	f.ID = "fb-1"
	m.feedback = append(m.feedback, *f)
	return nil
}

func (m *mockStore) AddRefund(_ context.Context, r *Refund) error {
	r.ID = "rf-1"
	m.refunds = append(m.refunds, *r)
	return nil
}

type stubRolls map[types.ID]string

func (s stubRolls) RollNo(_ context.Context, uid types.ID) (string, error) {
	if r, ok := s[uid]; ok {
		return r, nil
	}
	return "", errors.New("profile not found")
}

func TestSubmitFeedback(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, stubRolls{"s1": "CS21B001"})
	ctx := context.Background()

	tests := []struct {
		name     string
		uid      types.ID
		text     string
		wantRoll string
		wantErr  error
	}{
		{"known student", "s1", "Great drivers", "CS21B001", nil},
		{"no profile", "s2", "Late pickup", UnknownRollNo, nil},
		{"anonymous", "", "Hello", UnknownRollNo, nil},
		{"blank", "s1", "   ", "", ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := svc.SubmitFeedback(ctx, tt.uid, tt.text)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if f.StudentRollNo != tt.wantRoll || f.ID == "" {
				t.Errorf("feedback = %+v, want roll %q", f, tt.wantRoll)
			}
		})
	}
	if len(store.feedback) != 3 {
		t.Errorf("stored %d feedback entries, want 3", len(store.feedback))
	}
}

func TestSubmitRefund(t *testing.T) {
	store := &mockStore{}
	svc := NewService(store, nil)
	ctx := context.Background()

	valid := Refund{
		Name: "Asha", Email: "asha@campus.edu", RiderName: "Ravi", RideNo: "NR123456",
		RefundAmount: "20", ReceivingNumber: "9876543210", Reason: "Driver never arrived",
		TransactionID: "TXN654321",
	}
	got, err := svc.SubmitRefund(ctx, "s1", valid)
	if err != nil {
		t.Fatalf("submit refund: %v", err)
	}
	if got.SubmittedBy != "s1" || got.CreatedAt.IsZero() {
		t.Errorf("refund = %+v", got)
	}

	missing := valid
	missing.TransactionID = " "
	if _, err := svc.SubmitRefund(ctx, "s1", missing); !errors.Is(err, ErrValidation) {
		t.Errorf("missing transaction id error = %v, want ErrValidation", err)
	}
	badAmount := valid
	badAmount.RefundAmount = "twenty"
	if _, err := svc.SubmitRefund(ctx, "s1", badAmount); !errors.Is(err, ErrValidation) {
		t.Errorf("non-numeric amount error = %v, want ErrValidation", err)
	}
	if len(store.refunds) != 1 {
		t.Errorf("stored %d refunds, want 1", len(store.refunds))
	}
}

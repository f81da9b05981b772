// README: Support service validates and records feedback and refund requests.
package support

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"quickauto/internal/types"
)

var ErrValidation = errors.New("invalid support request")

// RollNoResolver finds the roll number of a signed-in student, if any.
type RollNoResolver interface {
	RollNo(ctx context.Context, uid types.ID) (string, error)
}

type Service struct {
	store    Store
	students RollNoResolver
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Store, students RollNoResolver) *Service {
	return &Service{store: store, students: students, validate: validator.New(), now: time.Now}
}

// SubmitFeedback stores free-text feedback, tagged with the sender's roll number when known.
func (s *Service) SubmitFeedback(ctx context.Context, uid types.ID, text string) (*Feedback, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: feedback is empty", ErrValidation)
	}
	roll := UnknownRollNo
	if uid != "" && s.students != nil {
		if r, err := s.students.RollNo(ctx, uid); err == nil && r != "" {
			roll = r
		}
	}
	f := &Feedback{Text: text, StudentRollNo: roll, CreatedAt: s.now().UTC()}
	if err := s.store.AddFeedback(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Service) SubmitRefund(ctx context.Context, uid types.ID, r Refund) (*Refund, error) {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	r.RiderName = strings.TrimSpace(r.RiderName)
	r.RideNo = strings.TrimSpace(r.RideNo)
	r.RefundAmount = strings.TrimSpace(r.RefundAmount)
	r.ReceivingNumber = strings.TrimSpace(r.ReceivingNumber)
	r.Reason = strings.TrimSpace(r.Reason)
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	if err := s.validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return nil, fmt.Errorf("%w: %s failed %s", ErrValidation, verrs[0].Field(), verrs[0].Tag())
		}
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	r.SubmittedBy = string(uid)
	r.CreatedAt = s.now().UTC()
	if err := s.store.AddRefund(ctx, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

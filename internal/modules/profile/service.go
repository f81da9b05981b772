// README: Profile service: sign-up flows, federated sign-in resolution and profile lookups.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"quickauto/internal/logging"
	"quickauto/internal/types"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrValidation      = errors.New("invalid profile")
	ErrEmailTaken      = errors.New("email already registered")
	ErrProfileExists   = errors.New("profile already completed")
	ErrRoleMismatch    = errors.New("account has another role")
)

const DefaultEmailDomain = "quickauto.com"

type Service struct {
	store       Store
	identity    Identity
	emailDomain string
	validate    *validator.Validate
	log         *logrus.Logger
	now         func() time.Time
}

func NewService(store Store, identity Identity, emailDomain string, log *logrus.Logger) *Service {
	if emailDomain == "" {
		emailDomain = DefaultEmailDomain
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Service{
		store:       store,
		identity:    identity,
		emailDomain: emailDomain,
		validate:    validator.New(),
		log:         log,
		now:         time.Now,
	}
}

type DriverSignUp struct {
	Name           string `validate:"required"`
	Phone          string `validate:"required,numeric,min=10,max=15"`
	Password       string `validate:"required,min=6"`
	AutoRickshawNo string `validate:"required"`
	AutoNo         string `validate:"required"`
}

type StudentSignUp struct {
	Name     string `validate:"required"`
	Phone    string `validate:"required,numeric,min=10,max=15"`
	Email    string `validate:"required,email"`
	Password string `validate:"required,min=6"`
	RollNo   string `validate:"required"`
}

type StudentDetails struct {
	Name   string `validate:"required"`
	Phone  string `validate:"required,numeric,min=10,max=15"`
	RollNo string `validate:"required"`
}

// DriverEmail is the sign-in email synthesized from a driver's phone number.
func (s *Service) DriverEmail(phone string) string {
	return strings.TrimSpace(phone) + "@" + s.emailDomain
}

func (s *Service) SignUpDriver(ctx context.Context, in DriverSignUp) (*Driver, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.AutoRickshawNo = strings.TrimSpace(in.AutoRickshawNo)
	in.AutoNo = strings.TrimSpace(in.AutoNo)
	if err := s.check(in); err != nil {
		return nil, err
	}
	uid, err := s.identity.CreateUser(ctx, s.DriverEmail(in.Phone), in.Password, in.Name)
	if err != nil {
		return nil, err
	}
	if err := s.identity.SetRole(ctx, uid, RoleDriver); err != nil {
		return nil, s.abandon(ctx, uid, fmt.Errorf("set driver role: %w", err))
	}
	d := Driver{
		UID:            uid,
		Name:           in.Name,
		Phone:          in.Phone,
		AutoRickshawNo: in.AutoRickshawNo,
		AutoNo:         in.AutoNo,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.store.PutDriver(ctx, d); err != nil {
		return nil, s.abandon(ctx, uid, fmt.Errorf("write driver profile: %w", err))
	}
	s.log.WithField("uid", uid).Info("driver signed up")
	return &d, nil
}

func (s *Service) SignUpStudent(ctx context.Context, in StudentSignUp) (*Student, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.RollNo = strings.TrimSpace(in.RollNo)
	if err := s.check(in); err != nil {
		return nil, err
	}
	uid, err := s.identity.CreateUser(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, err
	}
	if err := s.identity.SetRole(ctx, uid, RoleStudent); err != nil {
		return nil, s.abandon(ctx, uid, fmt.Errorf("set student role: %w", err))
	}
	st := Student{
		UID:       uid,
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     in.Email,
		RollNo:    in.RollNo,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutStudent(ctx, st); err != nil {
		return nil, s.abandon(ctx, uid, fmt.Errorf("write student profile: %w", err))
	}
	s.log.WithField("uid", uid).Info("student signed up")
	return &st, nil
}

// CompleteStudentProfile writes the profile of a user who signed in through a federated provider.
// It only creates: drivers and students who already have a profile are refused.
func (s *Service) CompleteStudentProfile(ctx context.Context, uid types.ID, role, email string, in StudentDetails) (*Student, error) {
	if uid == "" {
		return nil, fmt.Errorf("%w: missing uid", ErrValidation)
	}
	if role == RoleDriver {
		return nil, ErrRoleMismatch
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.RollNo = strings.TrimSpace(in.RollNo)
	if err := s.check(in); err != nil {
		return nil, err
	}
	_, err := s.store.GetDriver(ctx, uid)
	if ok, err := found(err); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrRoleMismatch
	}
	_, err = s.store.GetStudent(ctx, uid)
	if ok, err := found(err); err != nil {
		return nil, err
	} else if ok {
		return nil, ErrProfileExists
	}
	if err := s.identity.SetRole(ctx, uid, RoleStudent); err != nil {
		return nil, fmt.Errorf("set student role: %w", err)
	}
	st := Student{
		UID:       uid,
		Name:      in.Name,
		Phone:     in.Phone,
		Email:     strings.ToLower(strings.TrimSpace(email)),
		RollNo:    in.RollNo,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.PutStudent(ctx, st); err != nil {
		return nil, fmt.Errorf("write student profile: %w", err)
	}
	s.log.WithField("uid", uid).Info("student profile completed")
	return &st, nil
}

// abandon removes an identity created by a sign-up that failed afterwards, so the email can be
// registered again.
func (s *Service) abandon(ctx context.Context, uid types.ID, cause error) error {
	if err := s.identity.DeleteUser(context.WithoutCancel(ctx), uid); err != nil {
		s.log.WithFields(logrus.Fields{"uid": uid, "error": err}).Error("delete abandoned identity failed")
	}
	return cause
}

// found turns a profile lookup error into an existence check.
func found(err error) (bool, error) {
	if errors.Is(err, ErrProfileNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) ResolveFederated(ctx context.Context, email string) (FederatedState, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", fmt.Errorf("%w: missing email", ErrValidation)
	}
	_, err := s.store.FindStudentByEmail(ctx, email)
	if errors.Is(err, ErrProfileNotFound) {
		return FederatedNeedsProfile, nil
	}
	if err != nil {
		return "", err
	}
	return FederatedReady, nil
}

func (s *Service) Student(ctx context.Context, uid types.ID) (*Student, error) {
	return s.store.GetStudent(ctx, uid)
}

func (s *Service) Driver(ctx context.Context, uid types.ID) (*Driver, error) {
	return s.store.GetDriver(ctx, uid)
}

// RollNo resolves the roll number stamped onto a student's ride requests.
func (s *Service) RollNo(ctx context.Context, uid types.ID) (string, error) {
	st, err := s.store.GetStudent(ctx, uid)
	if err != nil {
		return "", err
	}
	return st.RollNo, nil
}

// DeviceToken returns the student's push token, or "" when none is registered.
func (s *Service) DeviceToken(ctx context.Context, uid types.ID) (string, error) {
	st, err := s.store.GetStudent(ctx, uid)
	if errors.Is(err, ErrProfileNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return st.FCMToken, nil
}

func (s *Service) SetDeviceToken(ctx context.Context, role string, uid types.ID, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("%w: missing token", ErrValidation)
	}
	return s.store.SetDeviceToken(ctx, role, uid, token)
}

func (s *Service) check(v any) error {
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", ErrValidation, strings.ToLower(verrs[0].Field()), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// README: Identity provider adapter (Firebase Auth user creation and role claims).
package profile

import (
	"context"

	"firebase.google.com/go/v4/auth"

	"quickauto/internal/types"
)

// Identity creates sign-in accounts and assigns the role claim the API authorizes on.
type Identity interface {
	CreateUser(ctx context.Context, email, password, displayName string) (types.ID, error)
	SetRole(ctx context.Context, uid types.ID, role string) error
	DeleteUser(ctx context.Context, uid types.ID) error
}

type FirebaseIdentity struct {
	client *auth.Client
}

func NewFirebaseIdentity(client *auth.Client) *FirebaseIdentity {
	return &FirebaseIdentity{client: client}
}

func (f *FirebaseIdentity) CreateUser(ctx context.Context, email, password, displayName string) (types.ID, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName)
	u, err := f.client.CreateUser(ctx, params)
	if auth.IsEmailAlreadyExists(err) {
		return "", ErrEmailTaken
	}
	if err != nil {
		return "", err
	}
	return types.ID(u.UID), nil
}

func (f *FirebaseIdentity) SetRole(ctx context.Context, uid types.ID, role string) error {
	return f.client.SetCustomUserClaims(ctx, string(uid), map[string]interface{}{"role": role})
}

func (f *FirebaseIdentity) DeleteUser(ctx context.Context, uid types.ID) error {
	return f.client.DeleteUser(ctx, string(uid))
}

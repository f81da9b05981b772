// README: Student and driver profile documents.
package profile

import (
	"time"

	"quickauto/internal/types"
)

const (
	RoleStudent = "student"
	RoleDriver  = "driver"
)

type Student struct {
	UID       types.ID  `json:"uid"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email"`
	RollNo    string    `json:"rollNo"`
	CreatedAt time.Time `json:"createdAt"`
	FCMToken  string    `json:"-"`
}

type Driver struct {
	UID            types.ID  `json:"uid"`
	Name           string    `json:"name"`
	Phone          string    `json:"phone"`
	AutoRickshawNo string    `json:"autoRickshawNo"`
	AutoNo         string    `json:"autoNo"`
	CreatedAt      time.Time `json:"createdAt"`
	FCMToken       string    `json:"-"`
}

// FederatedState tells a federated sign-in where to go next.
type FederatedState string

const (
	FederatedNeedsProfile FederatedState = "needs_profile"
	FederatedReady        FederatedState = "ready"
)

// README: Driver dashboard entries and the visibility rule.
package dispatch

import (
	"time"

	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

type Entry struct {
	Ride ride.Ride `json:"ride"`

	// RejectedRecently marks a ride this driver just rejected; it drops off the dashboard once
	// the grace window ends at GraceUntil.
	RejectedRecently bool      `json:"rejectedRecently,omitempty"`
	GraceUntil       time.Time `json:"graceUntil,omitzero"`
}

// NextGraceExpiry returns the earliest end of a grace window among entries.
func NextGraceExpiry(entries []Entry) (time.Time, bool) {
	var next time.Time
	for _, e := range entries {
		if e.RejectedRecently && (next.IsZero() || e.GraceUntil.Before(next)) {
			next = e.GraceUntil
		}
	}
	return next, !next.IsZero()
}

// Visible reports whether a ride belongs on the driver's dashboard: the driver has not rejected
// it, and nobody else has accepted it.
func Visible(r *ride.Ride, driverID types.ID) bool {
	if r.RejectedByDriver(driverID) {
		return false
	}
	return r.AcceptedBy == nil || *r.AcceptedBy == driverID
}

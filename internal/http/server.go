// README: API gateway; owns the module services the HTTP routes delegate to.
package http

import (
	"github.com/sirupsen/logrus"

	"quickauto/internal/http/handlers"
	"quickauto/internal/infra"
	"quickauto/internal/logging"
	"quickauto/internal/modules/dispatch"
	"quickauto/internal/modules/profile"
	"quickauto/internal/modules/ride"
	"quickauto/internal/modules/support"
)

type ServerDeps struct {
	Rides    *ride.Service
	Dispatch *dispatch.Service
	Profiles *profile.Service
	Support  *support.Service
	Verifier infra.TokenVerifier
	Log      *logrus.Logger
}

type Server struct {
	verifier infra.TokenVerifier
	log      *logrus.Logger

	rides   *handlers.RideHandler
	drivers *handlers.DriverHandler
	profile *handlers.ProfileHandler
	support *handlers.SupportHandler
	streams *handlers.StreamHandler
}

func NewServer(deps ServerDeps) *Server {
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		verifier: deps.Verifier,
		log:      log,
		rides:    handlers.NewRideHandler(deps.Rides),
		drivers:  handlers.NewDriverHandler(deps.Dispatch),
		profile:  handlers.NewProfileHandler(deps.Profiles),
		support:  handlers.NewSupportHandler(deps.Support),
		streams:  handlers.NewStreamHandler(deps.Rides, deps.Dispatch, log),
	}
}

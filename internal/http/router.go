// README: Route table for the REST API, websocket streams, health and metrics.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"quickauto/internal/http/middleware"
	"quickauto/internal/modules/profile"
)

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.log), middleware.Logging(s.log), middleware.Metrics())

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := middleware.Auth(s.verifier)
	driverOnly := middleware.RequireRole(profile.RoleDriver)

	// Sign-up creates the identity, so the caller has no token yet.
	signup := r.Group("/api/auth")
	signup.POST("/students/signup", s.profile.SignUpStudent)
	signup.POST("/drivers/signup", s.profile.SignUpDriver)

	api := r.Group("/api", auth)
	api.POST("/auth/federated", s.profile.Federated)

	api.GET("/profile", s.profile.Get)
	api.POST("/profile/complete", s.profile.Complete)
	api.PUT("/profile/device-token", s.profile.SetDeviceToken)

	rides := api.Group("/rides/:category")
	rides.POST("", s.rides.Create)
	rides.GET("/:id", s.rides.Get)
	rides.POST("/:id/resubmit", s.rides.Resubmit)
	rides.POST("/:id/reset", s.rides.Reset)
	rides.POST("/:id/pay", s.rides.Pay)
	rides.POST("/:id/cancel", s.rides.Cancel)
	rides.POST("/:id/finish", s.rides.Finish)

	drivers := api.Group("/drivers", driverOnly)
	drivers.GET("/dashboard", s.drivers.Dashboard)
	drivers.POST("/rides/:category/:id/accept", s.drivers.Accept)
	drivers.POST("/rides/:category/:id/reject", s.drivers.Reject)
	drivers.POST("/rides/:category/:id/confirm-payment", s.drivers.ConfirmPayment)
	drivers.POST("/rides/:category/:id/cancel", s.drivers.CancelAfterPay)
	drivers.POST("/rides/:category/:id/finish", s.drivers.Finish)

	api.POST("/feedback", s.support.Feedback)
	api.POST("/refunds", s.support.Refund)

	ws := r.Group("/ws", auth)
	ws.GET("/rides/:category/:id", s.streams.ObserveRide)
	ws.GET("/rider/:category", s.streams.RiderSession)
	ws.GET("/driver", driverOnly, s.streams.DriverDashboard)

	return r
}

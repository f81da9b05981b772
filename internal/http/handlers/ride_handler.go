// README: Rider-facing ride handlers: create, read, resubmit, reset, pay, cancel, finish.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickauto/internal/http/middleware"
	"quickauto/internal/modules/profile"
	"quickauto/internal/modules/ride"
)

const idempotencyHeader = "Idempotency-Key"

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(rides *ride.Service) *RideHandler {
	return &RideHandler{rides: rides}
}

type createRideRequest struct {
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	NumPersons  int    `json:"numPersons"`
	Luggage     int    `json:"studentsWithLuggage"`
}

type resubmitRequest struct {
	Amount int64 `json:"amount"`
}

type payRequest struct {
	TransactionID string `json:"transactionId"`
}

func (h *RideHandler) Create(c *gin.Context) {
	cat, ok := parseCategory(c)
	if !ok {
		return
	}
	var req createRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	r, err := h.rides.Create(c.Request.Context(), ride.CreateCommand{
		Category:       cat,
		RiderUID:       middleware.CallerUID(c),
		Name:           req.Name,
		Phone:          req.Phone,
		Source:         req.Source,
		Destination:    req.Destination,
		Amount:         req.Amount,
		Date:           req.Date,
		Time:           req.Time,
		NumPersons:     req.NumPersons,
		Luggage:        req.Luggage,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

// Get returns a ride to its rider, or to any driver.
func (h *RideHandler) Get(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	r, err := h.rides.Get(c.Request.Context(), ref)
	if err != nil {
		writeModuleError(c, err)
		return
	}
	if !canView(c, r) {
		writeModuleError(c, ride.ErrForbidden)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Resubmit(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	var req resubmitRequest
	if !bindBody(c, &req) {
		return
	}
	r, err := h.rides.Resubmit(c.Request.Context(), ride.ResubmitCommand{
		Ref:      ref,
		RiderUID: middleware.CallerUID(c),
		Amount:   req.Amount,
	})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

// Reset returns a rejected ride to idle so the rider can edit and resubmit it.
func (h *RideHandler) Reset(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	r, err := h.rides.ResetRejected(c.Request.Context(), ref, middleware.CallerUID(c))
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Pay(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	var req payRequest
	if !bindBody(c, &req) {
		return
	}
	r, err := h.rides.MarkPaid(c.Request.Context(), ride.PayCommand{
		Ref:           ref,
		ActorType:     ride.ActorRider,
		ActorID:       middleware.CallerUID(c),
		TransactionID: req.TransactionID,
	})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	err := h.rides.Cancel(c.Request.Context(), ride.CancelCommand{Ref: ref, RiderUID: middleware.CallerUID(c)})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *RideHandler) Finish(c *gin.Context) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	r, err := h.rides.Finish(c.Request.Context(), ride.FinishCommand{
		Ref:       ref,
		ActorType: ride.ActorRider,
		ActorID:   middleware.CallerUID(c),
	})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

func canView(c *gin.Context, r *ride.Ride) bool {
	return middleware.CallerRole(c) == profile.RoleDriver || r.RiderUID == middleware.CallerUID(c)
}

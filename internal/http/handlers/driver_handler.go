// README: Driver handlers: dashboard, accept, reject, payment confirmation, cancel, finish.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"quickauto/internal/http/middleware"
	"quickauto/internal/modules/dispatch"
	"quickauto/internal/modules/ride"
	"quickauto/internal/types"
)

type DriverHandler struct {
	dispatch *dispatch.Service
}

func NewDriverHandler(dispatchSvc *dispatch.Service) *DriverHandler {
	return &DriverHandler{dispatch: dispatchSvc}
}

func (h *DriverHandler) Dashboard(c *gin.Context) {
	entries, err := h.dispatch.Dashboard(c.Request.Context(), middleware.CallerUID(c))
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"rides": entries})
}

func (h *DriverHandler) Accept(c *gin.Context) {
	h.act(c, h.dispatch.Accept)
}

func (h *DriverHandler) Reject(c *gin.Context) {
	h.act(c, h.dispatch.Reject)
}

func (h *DriverHandler) CancelAfterPay(c *gin.Context) {
	h.act(c, h.dispatch.CancelAfterPay)
}

func (h *DriverHandler) Finish(c *gin.Context) {
	h.act(c, h.dispatch.Finish)
}

func (h *DriverHandler) ConfirmPayment(c *gin.Context) {
	var req payRequest
	if !bindBody(c, &req) {
		return
	}
	h.act(c, func(ctx context.Context, driverID types.ID, ref ride.Ref) (*ride.Ride, error) {
		return h.dispatch.ConfirmPayment(ctx, driverID, ref, req.TransactionID)
	})
}

func (h *DriverHandler) act(c *gin.Context, fn func(context.Context, types.ID, ride.Ref) (*ride.Ride, error)) {
	ref, ok := parseRef(c)
	if !ok {
		return
	}
	r, err := fn(c.Request.Context(), middleware.CallerUID(c), ref)
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, r)
}

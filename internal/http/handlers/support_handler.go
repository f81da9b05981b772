// README: Feedback and refund request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickauto/internal/http/middleware"
	"quickauto/internal/modules/support"
)

type SupportHandler struct {
	support *support.Service
}

func NewSupportHandler(svc *support.Service) *SupportHandler {
	return &SupportHandler{support: svc}
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (h *SupportHandler) Feedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	f, err := h.support.SubmitFeedback(c.Request.Context(), middleware.CallerUID(c), req.Feedback)
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, f)
}

func (h *SupportHandler) Refund(c *gin.Context) {
	var req support.Refund
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	r, err := h.support.SubmitRefund(c.Request.Context(), middleware.CallerUID(c), req)
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, r)
}

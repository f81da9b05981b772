// README: Base handler utilities (JSON helpers, error mapping, ride references).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"quickauto/internal/modules/pricing"
	"quickauto/internal/modules/profile"
	"quickauto/internal/modules/ride"
	"quickauto/internal/modules/rider"
	"quickauto/internal/modules/support"
	"quickauto/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts store ids: uuids, Firestore auto ids and other short alphanumeric keys.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// classify maps a module error to an HTTP status and the static message shown to the client.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ride.ErrNotAuthenticated):
		return http.StatusUnauthorized, ride.ErrNotAuthenticated.Error()
	case errors.Is(err, ride.ErrForbidden):
		return http.StatusForbidden, ride.ErrForbidden.Error()
	case errors.Is(err, profile.ErrRoleMismatch):
		return http.StatusForbidden, profile.ErrRoleMismatch.Error()
	case errors.Is(err, profile.ErrProfileNotFound):
		return http.StatusNotFound, profile.ErrProfileNotFound.Error()
	case errors.Is(err, ride.ErrNotFound):
		return http.StatusNotFound, ride.ErrNotFound.Error()
	case errors.Is(err, rider.ErrNoRide):
		return http.StatusNotFound, rider.ErrNoRide.Error()
	case errors.Is(err, ride.ErrValidation), errors.Is(err, profile.ErrValidation), errors.Is(err, support.ErrValidation):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, pricing.ErrInvalidBid), errors.Is(err, pricing.ErrInvalidParty), errors.Is(err, pricing.ErrUnknownCategory):
		return http.StatusBadRequest, "validation failed"
	case errors.Is(err, ride.ErrAlreadyTaken):
		return http.StatusConflict, ride.ErrAlreadyTaken.Error()
	case errors.Is(err, ride.ErrConflict):
		return http.StatusConflict, ride.ErrConflict.Error()
	case errors.Is(err, ride.ErrInvalidState), errors.Is(err, rider.ErrNotAccepted):
		return http.StatusConflict, ride.ErrInvalidState.Error()
	case errors.Is(err, profile.ErrEmailTaken):
		return http.StatusConflict, profile.ErrEmailTaken.Error()
	case errors.Is(err, profile.ErrProfileExists):
		return http.StatusConflict, profile.ErrProfileExists.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeModuleError(c *gin.Context, err error) {
	status, msg := classify(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	writeError(c, status, msg)
}

// parseRef reads :category and :id, answering 400 itself when either is malformed.
func parseRef(c *gin.Context) (ride.Ref, bool) {
	cat, ok := parseCategory(c)
	if !ok {
		return ride.Ref{}, false
	}
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return ride.Ref{}, false
	}
	return ride.Ref{Category: cat, ID: types.ID(id)}, true
}

func parseCategory(c *gin.Context) (ride.Category, bool) {
	cat, err := ride.ParseCategory(c.Param("category"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "unknown ride category")
		return "", false
	}
	return cat, true
}

// bindBody decodes an optional JSON body; an empty body leaves v untouched.
func bindBody(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

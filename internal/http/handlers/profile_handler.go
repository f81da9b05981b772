// README: Sign-up, federated sign-in check and profile handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"quickauto/internal/http/middleware"
	"quickauto/internal/modules/profile"
)

type ProfileHandler struct {
	profiles *profile.Service
}

func NewProfileHandler(profiles *profile.Service) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type studentSignUpRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RollNo   string `json:"rollNo"`
}

type driverSignUpRequest struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	Password       string `json:"password"`
	AutoRickshawNo string `json:"autoRickshawNo"`
	AutoNo         string `json:"autoNo"`
}

type completeProfileRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	RollNo string `json:"rollNo"`
}

type deviceTokenRequest struct {
	Token string `json:"token"`
}

func (h *ProfileHandler) SignUpStudent(c *gin.Context) {
	var req studentSignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.profiles.SignUpStudent(c.Request.Context(), profile.StudentSignUp{
		Name: req.Name, Phone: req.Phone, Email: req.Email, Password: req.Password, RollNo: req.RollNo,
	})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, st)
}

// SignUpDriver registers a driver; the response carries the email the client signs in with.
func (h *ProfileHandler) SignUpDriver(c *gin.Context) {
	var req driverSignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := h.profiles.SignUpDriver(c.Request.Context(), profile.DriverSignUp{
		Name:           req.Name,
		Phone:          req.Phone,
		Password:       req.Password,
		AutoRickshawNo: req.AutoRickshawNo,
		AutoNo:         req.AutoNo,
	})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"driver": d, "email": h.profiles.DriverEmail(d.Phone)})
}

// Federated tells a Google-signed-in caller whether a student profile still has to be completed.
func (h *ProfileHandler) Federated(c *gin.Context) {
	state, err := h.profiles.ResolveFederated(c.Request.Context(), middleware.CallerEmail(c))
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"state": state})
}

func (h *ProfileHandler) Complete(c *gin.Context) {
	var req completeProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	st, err := h.profiles.CompleteStudentProfile(c.Request.Context(),
		middleware.CallerUID(c), middleware.CallerRole(c), middleware.CallerEmail(c),
		profile.StudentDetails{Name: req.Name, Phone: req.Phone, RollNo: req.RollNo})
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (h *ProfileHandler) Get(c *gin.Context) {
	uid := middleware.CallerUID(c)
	if middleware.CallerRole(c) == profile.RoleDriver {
		d, err := h.profiles.Driver(c.Request.Context(), uid)
		if err != nil {
			writeModuleError(c, err)
			return
		}
		writeJSON(c, http.StatusOK, gin.H{"role": profile.RoleDriver, "driver": d})
		return
	}
	st, err := h.profiles.Student(c.Request.Context(), uid)
	if err != nil {
		writeModuleError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"role": profile.RoleStudent, "student": st})
}

func (h *ProfileHandler) SetDeviceToken(c *gin.Context) {
	var req deviceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	role := middleware.CallerRole(c)
	if role != profile.RoleDriver {
		role = profile.RoleStudent
	}
	if err := h.profiles.SetDeviceToken(c.Request.Context(), role, middleware.CallerUID(c), req.Token); err != nil {
		writeModuleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

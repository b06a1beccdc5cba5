package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evently-app/evently-api/internal/models"
	"github.com/evently-app/evently-api/internal/service"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
	"github.com/evently-app/evently-api/pkg/response"
)

// EntrantHandler exposes the entrant lifecycle endpoints: enrollment,
// the draw and the accept/cancel transitions.
type EntrantHandler struct {
	lifecycle *service.LifecycleService
}

// NewEntrantHandler constructs EntrantHandler.
func NewEntrantHandler(lifecycle *service.LifecycleService) *EntrantHandler {
	return &EntrantHandler{lifecycle: lifecycle}
}

// EnrollRequest is the enrollment payload.
type EnrollRequest struct {
	Email    string           `json:"email" binding:"required,email"`
	Location *models.GeoPoint `json:"location"`
}

// EntrantRequest identifies one entrant on an event.
type EntrantRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// Enroll godoc
// @Summary Enroll an entrant onto the waitlist
// @Tags Entrants
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body EnrollRequest true "Entrant payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "capacity reached or already enrolled"
// @Failure 412 {object} response.Envelope "selection time has passed"
// @Router /events/{id}/enroll [post]
func (h *EntrantHandler) Enroll(c *gin.Context) {
	var req EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.lifecycle.Enroll(c.Request.Context(), c.Param("id"), req.Email, req.Location); err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"event_id": c.Param("id"), "email": models.NormalizeEmail(req.Email)})
}

// Unenroll godoc
// @Summary Remove an entrant from the waitlist
// @Tags Entrants
// @Produce json
// @Param id path string true "Event ID"
// @Param email path string true "Entrant email"
// @Success 204 {object} nil
// @Router /events/{id}/enroll/{email} [delete]
func (h *EntrantHandler) Unenroll(c *gin.Context) {
	if err := h.lifecycle.Unenroll(c.Request.Context(), c.Param("id"), c.Param("email")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Draw godoc
// @Summary Run the selection draw
// @Tags Entrants
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{id}/draw [post]
func (h *EntrantHandler) Draw(c *gin.Context) {
	winners, err := h.lifecycle.Draw(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"winners": winners}, nil)
}

// Accept godoc
// @Summary Accept a won spot
// @Tags Entrants
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body EntrantRequest true "Entrant payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "entrant was not selected"
// @Router /events/{id}/accept [post]
func (h *EntrantHandler) Accept(c *gin.Context) {
	var req EntrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.lifecycle.Accept(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "accepted"}, nil)
}

// Cancel godoc
// @Summary Decline a won spot and schedule a replacement draw
// @Tags Entrants
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body EntrantRequest true "Entrant payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "entrant was not selected"
// @Router /events/{id}/cancel [post]
func (h *EntrantHandler) Cancel(c *gin.Context) {
	var req EntrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.lifecycle.Cancel(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "cancelled"}, nil)
}

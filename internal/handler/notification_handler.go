package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/evently-app/evently-api/internal/service"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
	"github.com/evently-app/evently-api/pkg/response"
)

// NotificationHandler exposes broadcast and feed endpoints.
type NotificationHandler struct {
	notifications *service.NotificationService
}

// NewNotificationHandler constructs NotificationHandler.
func NewNotificationHandler(notifications *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifications: notifications}
}

// Broadcast godoc
// @Summary Broadcast a notification to an event channel
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body service.BroadcastRequest true "Broadcast payload"
// @Success 201 {object} response.Envelope
// @Router /notifications [post]
func (h *NotificationHandler) Broadcast(c *gin.Context) {
	var req service.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	notification, err := h.notifications.Broadcast(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, notification)
}

// List godoc
// @Summary List notifications
// @Description With an email, returns the entrant's visible feed. Without one, returns every notification.
// @Tags Notifications
// @Produce json
// @Param email query string false "Entrant email"
// @Success 200 {object} response.Envelope
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		notifications, err := h.notifications.ListAll(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.JSON(c, http.StatusOK, notifications, nil)
		return
	}

	notifications, cached, err := h.notifications.ListForEntrant(c.Request.Context(), email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil, map[string]interface{}{"channels_cached": cached})
}

// MarkSeen godoc
// @Summary Mark a notification as seen by an entrant
// @Tags Notifications
// @Accept json
// @Produce json
// @Param id path string true "Notification ID"
// @Param payload body EntrantRequest true "Entrant payload"
// @Success 200 {object} response.Envelope
// @Router /notifications/{id}/seen [post]
func (h *NotificationHandler) MarkSeen(c *gin.Context) {
	var req EntrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.notifications.MarkSeen(c.Request.Context(), c.Param("id"), req.Email); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": "seen"}, nil)
}

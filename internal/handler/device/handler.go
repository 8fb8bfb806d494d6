package device

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/media-push/internal/handler"
	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/internal/service/device"
	"github.com/jwalitptl/media-push/pkg/errors"
)

type Handler struct {
	service device.Service
}

func NewHandler(service device.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/register-device", h.Register)

	notifications := r.Group("/notifications")
	{
		notifications.GET("/:deviceId", h.History)
		notifications.POST("/:deviceId/:notificationId/read", h.MarkRead)
	}
}

func (h *Handler) Register(c *gin.Context) {
	var req model.RegisterDeviceRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	if _, err := h.service.Register(c.Request.Context(), &req); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// History lists the device's notifications, most recent first.
func (h *Handler) History(c *gin.Context) {
	items, err := h.service.History(c.Request.Context(), c.Param("deviceId"))
	if err != nil {
		handler.Fail(c, err)
		return
	}
	if items == nil {
		items = []*model.DeviceNotification{}
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) MarkRead(c *gin.Context) {
	notificationID, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		handler.Fail(c, errors.BadRequest("invalid notification ID", err))
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), c.Param("deviceId"), notificationID); err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

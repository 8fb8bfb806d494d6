package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/media-push/internal/handler"
	"github.com/jwalitptl/media-push/internal/model"
	"github.com/jwalitptl/media-push/internal/service/notification"
	"github.com/jwalitptl/media-push/pkg/push"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the test push route. The webhook is mounted
// separately so it can carry its own rate limit.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/test-fcm", h.TestPush)
}

// WebhookResponse is returned for an accepted event.
type WebhookResponse struct {
	Success      bool                `json:"success"`
	Sent         int                 `json:"sent"`
	Failed       int                 `json:"failed"`
	Status       push.Status         `json:"status"`
	Notification *model.Notification `json:"notification"`
}

type TestPushResponse struct {
	Success bool          `json:"success"`
	Sent    int           `json:"sent"`
	Failed  int           `json:"failed"`
	Results []push.Result `json:"results"`
}

func (h *Handler) Webhook(c *gin.Context) {
	raw, ok := handler.ReadBody(c)
	if !ok {
		return
	}

	res, err := h.service.HandleWebhook(c.Request.Context(), raw)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	if res.Ignored {
		c.JSON(http.StatusOK, gin.H{"ignored": true})
		return
	}

	c.JSON(http.StatusOK, WebhookResponse{
		Success:      true,
		Sent:         res.Report.Sent,
		Failed:       res.Report.Failed,
		Status:       res.Report.Status,
		Notification: res.Notification,
	})
}

func (h *Handler) TestPush(c *gin.Context) {
	var req model.TestPushRequest
	if !handler.BindJSON(c, &req) {
		return
	}

	report, err := h.service.TestPush(c.Request.Context(), req.FCMToken, req.Title, req.Body)
	if err != nil {
		handler.Fail(c, err)
		return
	}

	c.JSON(http.StatusOK, TestPushResponse{
		Success: report.Failed == 0,
		Sent:    report.Sent,
		Failed:  report.Failed,
		Results: report.Results,
	})
}

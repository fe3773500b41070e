package reminder

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/reminder-api/internal/model"
	"github.com/jwalitptl/reminder-api/internal/notify"
	reminderService "github.com/jwalitptl/reminder-api/internal/service/reminder"
	"github.com/jwalitptl/reminder-api/pkg/errors"
	"github.com/jwalitptl/reminder-api/pkg/httputil"
)

type Handler struct {
	service reminderService.Servicer
}

func NewHandler(service reminderService.Servicer) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	reminders := r.Group("/reminders")
	{
		reminders.GET("", h.ListReminders)
		reminders.POST("", h.CreateReminder)
	}

	// The scheduler calls with GET; POST is accepted for manual triggers.
	r.GET("/notify", h.Notify)
	r.POST("/notify", h.Notify)
}

type triggerResponse struct {
	Success       bool             `json:"success"`
	Error         string           `json:"error,omitempty"`
	Notifications []notify.Outcome `json:"notifications"`
}

func (h *Handler) ListReminders(c *gin.Context) {
	reminders, err := h.service.List(c.Request.Context())
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, reminders)
}

func (h *Handler) CreateReminder(c *gin.Context) {
	var req model.CreateReminderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.NewBadRequest("invalid request body", err))
		return
	}
	req.Origin = requestOrigin(c)

	if _, err := h.service.Create(c.Request.Context(), &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c)
}

// Notify is the scheduler callback. Without an id it only reports that the
// endpoint is up.
func (h *Handler) Notify(c *gin.Context) {
	id := c.Query("id")
	if id == "" {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Notification endpoint is working",
		})
		return
	}

	outcomes, err := h.service.Trigger(c.Request.Context(), id, c.Query("key"))
	if err != nil {
		if outcomes == nil {
			httputil.RespondWithError(c, err)
			return
		}
		c.JSON(httputil.StatusOf(err), triggerResponse{
			Success:       false,
			Error:         httputil.MessageOf(err),
			Notifications: outcomes,
		})
		return
	}

	c.JSON(http.StatusOK, triggerResponse{Success: true, Notifications: outcomes})
}

func requestOrigin(c *gin.Context) string {
	scheme := "http"
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if c.Request.TLS != nil {
		scheme = "https"
	}
	host := c.Request.Host
	if fwd := c.GetHeader("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

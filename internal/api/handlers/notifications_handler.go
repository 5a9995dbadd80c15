package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"example.com/procurement/internal/services"
)

// NotificationsHandler handles notification HTTP requests.
type NotificationsHandler struct {
	notificationService *services.NotificationService
	staleAfter          time.Duration
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(notificationService *services.NotificationService, staleAfter time.Duration) *NotificationsHandler {
	if staleAfter <= 0 {
		staleAfter = services.DefaultStaleAfter
	}
	return &NotificationsHandler{
		notificationService: notificationService,
		staleAfter:          staleAfter,
	}
}

// HandleCheckPendingPOs triggers an on-demand pending-order scan.
func (h *NotificationsHandler) HandleCheckPendingPOs(c *gin.Context) {
	created, err := h.notificationService.ScanPendingOrders(
		c.Request.Context(), time.Now().UTC(), h.staleAfter)
	if err != nil {
		log.Error().Err(err).Msg("Pending-order scan failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":               fmt.Sprintf("Scan complete, %d notifications created", created),
		"notifications_created": created,
	})
}

// HandleListNotifications lists all notifications, newest first.
func (h *NotificationsHandler) HandleListNotifications(c *gin.Context) {
	notifications, err := h.notificationService.ListNotifications(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, notifications)
}

// HandleMarkRead flips a notification's read flag.
func (h *NotificationsHandler) HandleMarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid notification id"})
		return
	}

	if err := h.notificationService.MarkRead(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked read"})
}

// HandleUnreadCount returns the number of unread notifications.
func (h *NotificationsHandler) HandleUnreadCount(c *gin.Context) {
	count, err := h.notificationService.UnreadCount(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// RegisterRoutes registers the handler's routes.
func (h *NotificationsHandler) RegisterRoutes(router *gin.Engine) {
	notifications := router.Group("/notifications")
	notifications.POST("/check-pending-pos", h.HandleCheckPendingPOs)
	notifications.GET("", h.HandleListNotifications)
	notifications.PATCH("/:id/read", h.HandleMarkRead)
	notifications.GET("/unread-count", h.HandleUnreadCount)
}

package ginserver

import (
	"log/slog"
	"net/http"
	"strings"

	gin "github.com/gin-gonic/gin"

	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/notification"
)

type NotificationHTTP interface {
	List(c *gin.Context)
	UnreadCount(c *gin.Context)
	MarkRead(c *gin.Context)
}

type NotificationHandler struct {
	Chat   *chatservice.Service
	Logger *slog.Logger
}

func (h NotificationHandler) List(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.Chat.ListNotifications(c.Request.Context(), domainchat.UserID(p.ID), parsePositiveIntStrict(c.Query("limit"), 0))
	if err != nil {
		respondChatError(c, h.Logger, err, "list notifications", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h NotificationHandler) UnreadCount(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	count, err := h.Chat.UnreadNotifications(c.Request.Context(), domainchat.UserID(p.ID))
	if err != nil {
		respondChatError(c, h.Logger, err, "count notifications", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h NotificationHandler) MarkRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := notification.ID(strings.TrimSpace(c.Param("id")))
	count, err := h.Chat.MarkNotificationRead(c.Request.Context(), id, domainchat.UserID(p.ID))
	if err != nil {
		respondChatError(c, h.Logger, err, "mark notification read", "notification_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "unreadCount": count})
}

var _ NotificationHTTP = (*NotificationHandler)(nil)

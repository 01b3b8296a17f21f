package ginserver

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"

	"marketchat/internal/app/dto"
	chatservice "marketchat/internal/app/services/chat"
	domainchat "marketchat/internal/domain/chat"
)

// ChatHTTP exposes chat endpoints.
type ChatHTTP interface {
	ListConversations(c *gin.Context)
	Start(c *gin.Context)
	Thread(c *gin.Context)
	ListMessages(c *gin.Context)
	SendMessage(c *gin.Context)
	MarkRead(c *gin.Context)
	EditMessage(c *gin.Context)
	DeleteMessage(c *gin.Context)
	DeleteConversation(c *gin.Context)
}

// ChatHandler bridges HTTP with the chat service.
type ChatHandler struct {
	Chat   *chatservice.Service
	Logger *slog.Logger
}

// ListConversations returns the caller's conversations, optionally filtered
// by listing type.
func (h ChatHandler) ListConversations(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	items, err := h.Chat.ListForUser(c.Request.Context(), domainchat.UserID(p.ID), c.Query("type"))
	if err != nil {
		respondChatError(c, h.Logger, err, "list conversations", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Start opens (or reopens) the caller's conversation with a seller about a
// listing and returns it with its history.
func (h ChatHandler) Start(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		ListingID string `json:"listingId"`
		SellerID  string `json:"sellerId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	if strings.TrimSpace(req.ListingID) == "" || strings.TrimSpace(req.SellerID) == "" {
		badRequest(c, "listingId and sellerId are required")
		return
	}
	resp, err := h.Chat.Start(c.Request.Context(), domainchat.ListingID(req.ListingID), domainchat.UserID(p.ID), domainchat.UserID(req.SellerID))
	if err != nil {
		respondChatError(c, h.Logger, err, "start chat", "user_id", p.ID, "listing_id", req.ListingID)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h ChatHandler) Thread(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	before, ok := parseBefore(c)
	if !ok {
		return
	}
	msgs, err := h.Chat.Thread(c.Request.Context(),
		domainchat.UserID(p.ID),
		domainchat.ListingID(c.Query("listingId")),
		domainchat.UserID(c.Query("otherId")),
		before,
		parsePositiveIntStrict(c.Query("limit"), 0),
	)
	if err != nil {
		respondChatError(c, h.Logger, err, "load thread", "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapMessages(msgs))
}

// ListMessages pages backwards through a conversation the caller is part of.
func (h ChatHandler) ListMessages(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	before, ok := parseBefore(c)
	if !ok {
		return
	}
	id := domainchat.ConversationID(strings.TrimSpace(c.Param("id")))
	msgs, err := h.Chat.History(c.Request.Context(), id, domainchat.UserID(p.ID), before, parsePositiveIntStrict(c.Query("limit"), 0))
	if err != nil {
		respondChatError(c, h.Logger, err, "list messages", "conversation_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapMessages(msgs))
}

func (h ChatHandler) SendMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	id := domainchat.ConversationID(strings.TrimSpace(c.Param("id")))
	msg, err := h.Chat.SendMessage(c.Request.Context(), chatservice.SendParams{
		Sender:         domainchat.UserID(p.ID),
		ConversationID: id,
		Text:           req.Text,
	})
	if err != nil {
		respondChatError(c, h.Logger, err, "send message", "conversation_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusCreated, dto.MapMessage(msg))
}

func (h ChatHandler) MarkRead(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := domainchat.ConversationID(strings.TrimSpace(c.Param("id")))
	count, err := h.Chat.MarkRead(c.Request.Context(), id, domainchat.UserID(p.ID))
	if err != nil {
		respondChatError(c, h.Logger, err, "mark read", "conversation_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "unreadCount": count})
}

func (h ChatHandler) EditMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	id := domainchat.MessageID(strings.TrimSpace(c.Param("id")))
	msg, err := h.Chat.EditMessage(c.Request.Context(), id, domainchat.UserID(p.ID), req.Text)
	if err != nil {
		respondChatError(c, h.Logger, err, "edit message", "message_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, dto.MapMessage(msg))
}

func (h ChatHandler) DeleteMessage(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := domainchat.MessageID(strings.TrimSpace(c.Param("id")))
	if _, err := h.Chat.DeleteMessage(c.Request.Context(), id, domainchat.UserID(p.ID)); err != nil {
		respondChatError(c, h.Logger, err, "delete message", "message_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// DeleteConversation removes the conversation and its whole thread.
func (h ChatHandler) DeleteConversation(c *gin.Context) {
	p, ok := requireUser(c)
	if !ok {
		return
	}
	id := domainchat.ConversationID(strings.TrimSpace(c.Param("id")))
	if err := h.Chat.DeleteConversation(c.Request.Context(), id, domainchat.UserID(p.ID)); err != nil {
		respondChatError(c, h.Logger, err, "delete conversation", "conversation_id", id, "user_id", p.ID)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// parseBefore reads the optional before cursor as RFC 3339 or unix millis.
func parseBefore(c *gin.Context) (time.Time, bool) {
	raw := strings.TrimSpace(c.Query("before"))
	if raw == "" {
		return time.Time{}, true
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		badRequest(c, "before must be RFC 3339 or unix milliseconds")
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parsePositiveIntStrict(raw string, def int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return def
	}
	return value
}

var _ ChatHTTP = (*ChatHandler)(nil)

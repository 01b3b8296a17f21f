package notification

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound         = errors.New("notification: not found")
	ErrRecipientMissing = errors.New("notification: recipient is required")
	ErrTypeMissing      = errors.New("notification: type is required")
)

type ID string

type Type string

const (
	TypeChatMessage Type = "chat_message"
	TypeChatStarted Type = "chat_started"
	// TypeLegacyMessage was written by older chat producers and is still
	// treated as a chat notification when marking a thread read.
	TypeLegacyMessage Type = "message"
)

// ChatTypes are the notification types cleared by reading a conversation.
var ChatTypes = []Type{TypeChatMessage, TypeLegacyMessage}

type Meta struct {
	ConversationID string `json:"conversationId,omitempty"`
	ListingID      string `json:"listingId,omitempty"`
	From           string `json:"from,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
}

type Notification struct {
	ID        ID
	UserID    string
	Type      Type
	Title     string
	Body      string
	Read      bool
	Meta      Meta
	CreatedAt time.Time
}

type CreateParams struct {
	ID        ID
	UserID    string
	Type      Type
	Title     string
	Body      string
	Meta      Meta
	CreatedAt time.Time
}

func New(params CreateParams) (*Notification, error) {
	user := strings.TrimSpace(params.UserID)
	if user == "" {
		return nil, ErrRecipientMissing
	}
	if strings.TrimSpace(string(params.Type)) == "" {
		return nil, ErrTypeMissing
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	return &Notification{
		ID:        params.ID,
		UserID:    user,
		Type:      params.Type,
		Title:     strings.TrimSpace(params.Title),
		Body:      params.Body,
		Meta:      params.Meta,
		CreatedAt: now.UTC(),
	}, nil
}

// Reduced is the fallback shape used when the full record cannot be stored.
func (n *Notification) Reduced() *Notification {
	out := *n
	out.Title = ""
	out.Meta.MessageID = ""
	return &out
}

// ChatReadFilter selects a user's unread chat notifications that reference a
// conversation or its listing.
type ChatReadFilter struct {
	UserID         string
	ConversationID string
	ListingID      string
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	CountUnread(ctx context.Context, userID string) (int64, error)
	MarkChatRead(ctx context.Context, filter ChatReadFilter) (int64, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error)
	// MarkRead flags one notification read; ErrNotFound unless it belongs to userID.
	MarkRead(ctx context.Context, id ID, userID string) error
}

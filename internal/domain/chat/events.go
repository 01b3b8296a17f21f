package chat

import (
	"time"

	"marketchat/internal/domain/shared/events"
)

const (
	EventConversationStarted = "chat.conversation_started"
	EventConversationDeleted = "chat.conversation_deleted"
	EventMessageSent         = "chat.message_sent"
	EventMessageEdited       = "chat.message_edited"
	EventMessageDeleted      = "chat.message_deleted"
)

type ConversationStarted struct {
	events.BaseEvent
	ConversationID ConversationID `json:"conversation_id"`
	ListingID      ListingID      `json:"listing_id"`
	Participants   []UserID       `json:"participants"`
}

func NewConversationStarted(c *Conversation) ConversationStarted {
	return ConversationStarted{
		BaseEvent:      events.NewBase(EventConversationStarted, string(c.ID), c.CreatedAt),
		ConversationID: c.ID,
		ListingID:      c.ListingID,
		Participants:   append([]UserID(nil), c.Participants...),
	}
}

type ConversationDeleted struct {
	events.BaseEvent
	ConversationID  ConversationID `json:"conversation_id"`
	ListingID       ListingID      `json:"listing_id"`
	DeletedBy       UserID         `json:"deleted_by"`
	MessagesRemoved int64          `json:"messages_removed"`
}

func NewConversationDeleted(c *Conversation, by UserID, removed int64, at time.Time) ConversationDeleted {
	return ConversationDeleted{
		BaseEvent:       events.NewBase(EventConversationDeleted, string(c.ID), at),
		ConversationID:  c.ID,
		ListingID:       c.ListingID,
		DeletedBy:       by,
		MessagesRemoved: removed,
	}
}

// MessageEvent carries the message snapshot for sent, edited and deleted events.
type MessageEvent struct {
	events.BaseEvent
	MessageID      MessageID      `json:"message_id"`
	ConversationID ConversationID `json:"conversation_id"`
	ListingID      ListingID      `json:"listing_id"`
	From           UserID         `json:"from"`
	To             UserID         `json:"to"`
	Text           string         `json:"text,omitempty"`
}

func NewMessageEvent(name string, m *Message, at time.Time) MessageEvent {
	ev := MessageEvent{
		BaseEvent:      events.NewBase(name, string(m.ConversationID), at),
		MessageID:      m.ID,
		ConversationID: m.ConversationID,
		ListingID:      m.ListingID,
		From:           m.From,
		To:             m.To,
	}
	if name != EventMessageDeleted {
		ev.Text = m.Text
	}
	return ev
}

var (
	_ events.DomainEvent = ConversationStarted{}
	_ events.DomainEvent = ConversationDeleted{}
	_ events.DomainEvent = MessageEvent{}
)

package dto

import "time"

// Server to client event names on the live channel.
const (
	EventMessageNew      = "message:new"
	EventMessageUpdated  = "message:updated"
	EventMessageDeleted  = "message:deleted"
	EventNotificationNew = "notification:new"
)

// NotificationPush is the payload of notification:new. Only UnreadCount is
// always present.
type NotificationPush struct {
	Type           string     `json:"type,omitempty"`
	ConversationID string     `json:"conversationId,omitempty"`
	ListingID      string     `json:"listingId,omitempty"`
	From           string     `json:"from,omitempty"`
	At             *time.Time `json:"at,omitempty"`
	UnreadCount    int64      `json:"unreadCount"`
}

type MessageDeletedPush struct {
	ID             string `json:"_id"`
	ConversationID string `json:"conversationId,omitempty"`
	ListingID      string `json:"listingId"`
}

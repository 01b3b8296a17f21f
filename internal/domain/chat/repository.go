package chat

import (
	"context"
	"time"
)

// ConversationRepository persists conversation rows. Implementations must
// enforce uniqueness of (ListingID, ParticipantsKey) and apply unread changes
// atomically per participant.
type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByScope(ctx context.Context, scope Scope) (*Conversation, error)
	// ByListingAndMembers finds rows written before the participants key existed.
	ByListingAndMembers(ctx context.Context, listingID ListingID, a, b UserID) (*Conversation, error)
	// Create returns ErrDuplicateConversation when the scope is already taken.
	Create(ctx context.Context, conv *Conversation) error
	BackfillKey(ctx context.Context, id ConversationID, key string, participants []UserID) error
	ListForUser(ctx context.Context, userID UserID) ([]*Conversation, error)
	IncrementUnread(ctx context.Context, id ConversationID, userID UserID) error
	ResetUnread(ctx context.Context, id ConversationID, userID UserID) error
	// AdvanceLastMessage updates the cache only when at is not older than the stored value.
	AdvanceLastMessage(ctx context.Context, id ConversationID, text string, at time.Time) error
	// SetLastMessage replaces the cache, possibly with an older value, unless
	// the stored value is newer than bound.
	SetLastMessage(ctx context.Context, id ConversationID, text string, at, bound time.Time) error
	Delete(ctx context.Context, id ConversationID) error
}

// HistoryQuery selects the newest Limit messages of a scope strictly older
// than Before (when set).
type HistoryQuery struct {
	Scope  Scope
	Before time.Time
	Limit  int
}

type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	ByID(ctx context.Context, id MessageID) (*Message, error)
	UpdateText(ctx context.Context, id MessageID, text string, editedAt time.Time) error
	Delete(ctx context.Context, id MessageID) error
	// Latest returns the newest message of the scope, or nil when none survives.
	Latest(ctx context.Context, scope Scope) (*Message, error)
	// History returns messages in chronological order.
	History(ctx context.Context, q HistoryQuery) ([]*Message, error)
	// RecentForUser returns up to limit messages sent or received by userID, newest first.
	RecentForUser(ctx context.Context, userID UserID, limit int) ([]*Message, error)
	DeleteScope(ctx context.Context, scope Scope) (int64, error)
}

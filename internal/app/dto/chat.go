package dto

import (
	"time"

	"marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/notification"
	"marketchat/internal/domain/user"
)

// Conversation is a conversation as the caller sees it.
type Conversation struct {
	ID            string            `json:"_id"`
	ListingID     string            `json:"listingId"`
	Listing       *listings.Summary `json:"listing,omitempty"`
	Participants  []Participant     `json:"participants"`
	LastMessage   string            `json:"lastMessage"`
	LastMessageAt time.Time         `json:"lastMessageAt"`
	Unread        map[string]int    `json:"unread"`
	UnreadCount   int               `json:"unreadCount"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// Participant carries the display fields when the directory knows the user.
type Participant struct {
	ID        string `json:"_id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

type ChatMessage struct {
	ID             string     `json:"_id"`
	ConversationID string     `json:"conversationId,omitempty"`
	ListingID      string     `json:"listingId"`
	From           string     `json:"from"`
	To             string     `json:"to"`
	Text           string     `json:"text"`
	CreatedAt      time.Time  `json:"createdAt"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
}

type StartChatResponse struct {
	Conversation Conversation  `json:"conversation"`
	Messages     []ChatMessage `json:"messages"`
}

type Notification struct {
	ID        string            `json:"_id"`
	Type      string            `json:"type"`
	Title     string            `json:"title,omitempty"`
	Body      string            `json:"body"`
	Read      bool              `json:"read"`
	Meta      notification.Meta `json:"meta"`
	CreatedAt time.Time         `json:"createdAt"`
}

func MapConversation(c *chat.Conversation, viewer chat.UserID) Conversation {
	out := Conversation{
		ID:            string(c.ID),
		ListingID:     string(c.ListingID),
		Participants:  make([]Participant, 0, len(c.Participants)),
		LastMessage:   c.LastMessage,
		LastMessageAt: c.LastActivity(),
		Unread:        make(map[string]int, len(c.Unread)),
		UnreadCount:   c.UnreadFor(viewer),
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
	for _, p := range c.Participants {
		out.Participants = append(out.Participants, Participant{ID: string(p)})
	}
	for k, v := range c.Unread {
		out.Unread[string(k)] = v
	}
	return out
}

// Populate fills listing and participant summaries from lookup maps.
func (c *Conversation) Populate(listing map[listings.ListingID]listings.Summary, users map[user.ID]user.Summary) {
	if l, ok := listing[listings.ListingID(c.ListingID)]; ok {
		l := l
		c.Listing = &l
	}
	for i, p := range c.Participants {
		if s, ok := users[user.ID(p.ID)]; ok {
			c.Participants[i] = Participant{ID: p.ID, Name: s.Name, Email: s.Email, AvatarURL: s.AvatarURL}
		}
	}
}

func MapMessage(m *chat.Message) ChatMessage {
	return ChatMessage{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		ListingID:      string(m.ListingID),
		From:           string(m.From),
		To:             string(m.To),
		Text:           m.Text,
		CreatedAt:      m.CreatedAt,
		EditedAt:       m.EditedAt,
	}
}

func MapMessages(msgs []*chat.Message) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, MapMessage(m))
	}
	return out
}

func MapNotification(n *notification.Notification) Notification {
	return Notification{
		ID:        string(n.ID),
		Type:      string(n.Type),
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.Read,
		Meta:      n.Meta,
		CreatedAt: n.CreatedAt,
	}
}

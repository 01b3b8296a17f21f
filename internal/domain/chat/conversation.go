package chat

import (
	"sort"
	"strings"
	"time"
)

type (
	ConversationID string
	ListingID      string
	UserID         string
)

// Scope identifies a thread independently of whether a conversation row exists:
// one listing and one unordered pair of users.
type Scope struct {
	ListingID       ListingID
	ParticipantsKey string
}

func (s Scope) String() string {
	return string(s.ListingID) + ":" + s.ParticipantsKey
}

// ScopeFor builds the scope of a thread between a and b on a listing.
func ScopeFor(listingID ListingID, a, b UserID) Scope {
	return Scope{ListingID: listingID, ParticipantsKey: ParticipantsKey(a, b)}
}

// ParticipantsKey is the direction independent key of a user pair.
func ParticipantsKey(a, b UserID) string {
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return pair[0] + ":" + pair[1]
}

type Conversation struct {
	ID              ConversationID
	ListingID       ListingID
	Participants    []UserID
	ParticipantsKey string
	LastMessage     string
	LastMessageAt   time.Time
	Unread          map[UserID]int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type CreateParams struct {
	ID        ConversationID
	ListingID ListingID
	A         UserID
	B         UserID
	CreatedAt time.Time
}

func NewConversation(params CreateParams) (*Conversation, error) {
	id := ConversationID(strings.TrimSpace(string(params.ID)))
	listing := ListingID(strings.TrimSpace(string(params.ListingID)))
	a := UserID(strings.TrimSpace(string(params.A)))
	b := UserID(strings.TrimSpace(string(params.B)))
	if id == "" || listing == "" || a == "" || b == "" {
		return nil, ErrBadRequest
	}
	if a == b {
		return nil, ErrSelfChat
	}
	now := params.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	return &Conversation{
		ID:              id,
		ListingID:       listing,
		Participants:    sortedPair(a, b),
		ParticipantsKey: ParticipantsKey(a, b),
		LastMessageAt:   now,
		Unread:          map[UserID]int{a: 0, b: 0},
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

func (c *Conversation) HasParticipant(id UserID) bool {
	for _, p := range c.Participants {
		if p == id {
			return true
		}
	}
	return false
}

// Counterpart returns the other participant of the conversation.
func (c *Conversation) Counterpart(id UserID) (UserID, error) {
	if !c.HasParticipant(id) {
		return "", ErrNotParticipant
	}
	for _, p := range c.Participants {
		if p != id {
			return p, nil
		}
	}
	return "", ErrNotParticipant
}

func (c *Conversation) Scope() Scope {
	key := c.ParticipantsKey
	if key == "" && len(c.Participants) == 2 {
		key = ParticipantsKey(c.Participants[0], c.Participants[1])
	}
	return Scope{ListingID: c.ListingID, ParticipantsKey: key}
}

// LastActivity is the time used to order conversations.
func (c *Conversation) LastActivity() time.Time {
	if !c.LastMessageAt.IsZero() {
		return c.LastMessageAt
	}
	return c.UpdatedAt
}

func (c *Conversation) UnreadFor(id UserID) int {
	if c.Unread == nil {
		return 0
	}
	if n := c.Unread[id]; n > 0 {
		return n
	}
	return 0
}

// Clone returns a deep copy safe to hand out of a store.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Participants = append([]UserID(nil), c.Participants...)
	out.Unread = make(map[UserID]int, len(c.Unread))
	for k, v := range c.Unread {
		out.Unread[k] = v
	}
	return &out
}

func sortedPair(a, b UserID) []UserID {
	if a > b {
		a, b = b, a
	}
	return []UserID{a, b}
}

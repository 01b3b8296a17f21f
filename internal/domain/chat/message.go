package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxMessageLength = 2000
	PreviewLength    = 140
)

type MessageID string

type Message struct {
	ID              MessageID
	ConversationID  ConversationID
	ListingID       ListingID
	From            UserID
	To              UserID
	ParticipantsKey string
	Text            string
	CreatedAt       time.Time
	EditedAt        *time.Time
}

func (m *Message) Scope() Scope {
	key := m.ParticipantsKey
	if key == "" {
		key = ParticipantsKey(m.From, m.To)
	}
	return Scope{ListingID: m.ListingID, ParticipantsKey: key}
}

// Counterpart returns the participant on the other side of the message from id.
func (m *Message) Counterpart(id UserID) UserID {
	if m.From == id {
		return m.To
	}
	return m.From
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.EditedAt != nil {
		at := *m.EditedAt
		out.EditedAt = &at
	}
	return &out
}

// NormalizeText trims raw and caps it at MaxMessageLength characters.
func NormalizeText(raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", ErrEmptyMessage
	}
	return Truncate(text, MaxMessageLength), nil
}

// Truncate cuts s to at most n characters without splitting a rune.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

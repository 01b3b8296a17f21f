package chat

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParticipantsKeyIsDirectionIndependent(t *testing.T) {
	assert.Equal(t, "u1:u2", ParticipantsKey("u1", "u2"))
	assert.Equal(t, "u1:u2", ParticipantsKey("u2", "u1"))
	assert.Equal(t, ScopeFor("L", "b", "a"), ScopeFor("L", "a", "b"))
}

func TestNewConversation(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	conv, err := NewConversation(CreateParams{ID: "c1", ListingID: "L", A: "u2", B: "u1", CreatedAt: now})
	require.NoError(t, err)
	assert.Equal(t, []UserID{"u1", "u2"}, conv.Participants)
	assert.Equal(t, "u1:u2", conv.ParticipantsKey)
	assert.Equal(t, map[UserID]int{"u1": 0, "u2": 0}, conv.Unread)
	assert.Empty(t, conv.LastMessage)
	assert.Equal(t, now, conv.LastMessageAt)

	_, err = NewConversation(CreateParams{ID: "c2", ListingID: "L", A: "u1", B: " u1 "})
	assert.ErrorIs(t, err, ErrSelfChat)

	_, err = NewConversation(CreateParams{ID: "c3", ListingID: "", A: "u1", B: "u2"})
	assert.ErrorIs(t, err, ErrBadRequest)
}

func TestConversationCounterpart(t *testing.T) {
	conv, err := NewConversation(CreateParams{ID: "c1", ListingID: "L", A: "u1", B: "u2"})
	require.NoError(t, err)

	other, err := conv.Counterpart("u1")
	require.NoError(t, err)
	assert.Equal(t, UserID("u2"), other)

	_, err = conv.Counterpart("u3")
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestConversationLastActivityFallsBackToUpdatedAt(t *testing.T) {
	updated := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	conv := &Conversation{UpdatedAt: updated}
	assert.Equal(t, updated, conv.LastActivity())

	last := updated.Add(time.Hour)
	conv.LastMessageAt = last
	assert.Equal(t, last, conv.LastActivity())
}

func TestNormalizeText(t *testing.T) {
	text, err := NormalizeText("  hi  ")
	require.NoError(t, err)
	assert.Equal(t, "hi", text)

	_, err = NormalizeText(" \n\t ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	long := strings.Repeat("я", MaxMessageLength+50)
	text, err = NormalizeText(long)
	require.NoError(t, err)
	assert.Equal(t, MaxMessageLength, len([]rune(text)))
}

func TestKindOf(t *testing.T) {
	cases := map[error]Kind{
		ErrSelfChat:             KindSelfChat,
		ErrNotParticipant:       KindNotParticipant,
		ErrForbidden:            KindForbidden,
		ErrConversationNotFound: KindNotFound,
		ErrListingNotFound:      KindNotFound,
		ErrEmptyMessage:         KindEmptyMessage,
		ErrBadRequest:           KindBadRequest,
		assert.AnError:          KindServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, KindOf(err), err.Error())
	}
}

package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/notification"
)

func newConv(t *testing.T, id string) *domainchat.Conversation {
	t.Helper()
	conv, err := domainchat.NewConversation(domainchat.CreateParams{
		ID:        domainchat.ConversationID(id),
		ListingID: "L1",
		A:         "u1",
		B:         "u2",
	})
	require.NoError(t, err)
	return conv
}

func TestConversationRepositoryRejectsDuplicateScope(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newConv(t, "c1")))
	err := repo.Create(ctx, newConv(t, "c2"))
	assert.ErrorIs(t, err, domainchat.ErrDuplicateConversation)

	found, err := repo.ByScope(ctx, domainchat.ScopeFor("L1", "u2", "u1"))
	require.NoError(t, err)
	assert.Equal(t, domainchat.ConversationID("c1"), found.ID)
}

func TestConversationRepositoryConcurrentUnreadIncrements(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newConv(t, "c1")))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementUnread(ctx, "c1", "u2"))
		}()
	}
	wg.Wait()

	conv, err := repo.ByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 50, conv.Unread["u2"])
	assert.Equal(t, 0, conv.Unread["u1"])

	require.NoError(t, repo.ResetUnread(ctx, "c1", "u2"))
	conv, err = repo.ByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, conv.Unread["u2"])
}

func TestConversationRepositoryAdvanceLastMessageNeverRegresses(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, newConv(t, "c1")))

	later := time.Now().Add(time.Minute)
	require.NoError(t, repo.AdvanceLastMessage(ctx, "c1", "second", later))
	require.NoError(t, repo.AdvanceLastMessage(ctx, "c1", "first", later.Add(-time.Second)))

	conv, err := repo.ByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "second", conv.LastMessage)

	require.NoError(t, repo.SetLastMessage(ctx, "c1", "first", later.Add(-time.Second), later.Add(-time.Second)))
	conv, err = repo.ByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "second", conv.LastMessage, "stored value is newer than bound")

	require.NoError(t, repo.SetLastMessage(ctx, "c1", "first", later.Add(-time.Second), later))
	conv, err = repo.ByID(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "first", conv.LastMessage)
}

func TestConversationRepositoryLegacyRowBackfill(t *testing.T) {
	repo := NewConversationRepository()
	ctx := context.Background()
	legacy := newConv(t, "legacy")
	legacy.ParticipantsKey = ""
	require.NoError(t, repo.Create(ctx, legacy))

	_, err := repo.ByScope(ctx, domainchat.ScopeFor("L1", "u1", "u2"))
	assert.ErrorIs(t, err, domainchat.ErrConversationNotFound)

	found, err := repo.ByListingAndMembers(ctx, "L1", "u2", "u1")
	require.NoError(t, err)
	require.NoError(t, repo.BackfillKey(ctx, found.ID, "u1:u2", []domainchat.UserID{"u1", "u2"}))

	found, err = repo.ByScope(ctx, domainchat.ScopeFor("L1", "u1", "u2"))
	require.NoError(t, err)
	assert.Equal(t, domainchat.ConversationID("legacy"), found.ID)
}

func TestMessageRepositoryHistoryPagesBackwards(t *testing.T) {
	repo := NewMessageRepository()
	ctx := context.Background()
	base := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		from, to := domainchat.UserID("u1"), domainchat.UserID("u2")
		if i%2 == 1 {
			from, to = to, from
		}
		require.NoError(t, repo.Append(ctx, &domainchat.Message{
			ID:        domainchat.MessageID(fmt.Sprintf("m%d", i)),
			ListingID: "L1",
			From:      from,
			To:        to,
			Text:      fmt.Sprintf("text %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	scope := domainchat.ScopeFor("L1", "u1", "u2")

	page, err := repo.History(ctx, domainchat.HistoryQuery{Scope: scope, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, domainchat.MessageID("m3"), page[0].ID)
	assert.Equal(t, domainchat.MessageID("m4"), page[1].ID)

	page, err = repo.History(ctx, domainchat.HistoryQuery{Scope: scope, Before: page[0].CreatedAt, Limit: 10})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, domainchat.MessageID("m0"), page[0].ID)

	latest, err := repo.Latest(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, domainchat.MessageID("m4"), latest.ID)

	recent, err := repo.RecentForUser(ctx, "u2", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, domainchat.MessageID("m4"), recent[0].ID)

	removed, err := repo.DeleteScope(ctx, scope)
	require.NoError(t, err)
	assert.EqualValues(t, 5, removed)
	latest, err = repo.Latest(ctx, scope)
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestNotificationRepositoryMarkChatRead(t *testing.T) {
	repo := NewNotificationRepository()
	ctx := context.Background()
	add := func(id string, typ notification.Type, meta notification.Meta) {
		require.NoError(t, repo.Create(ctx, &notification.Notification{ID: notification.ID(id), UserID: "u2", Type: typ, Meta: meta}))
	}
	add("n1", notification.TypeChatMessage, notification.Meta{ConversationID: "c1"})
	add("n2", notification.TypeLegacyMessage, notification.Meta{ListingID: "L1"})
	add("n3", notification.TypeChatStarted, notification.Meta{ListingID: "L1"})
	add("n4", notification.TypeChatMessage, notification.Meta{ConversationID: "c9", ListingID: "L9"})

	marked, err := repo.MarkChatRead(ctx, notification.ChatReadFilter{UserID: "u2", ConversationID: "c1", ListingID: "L1"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, marked)

	count, err := repo.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	assert.ErrorIs(t, repo.MarkRead(ctx, "n3", "someone-else"), notification.ErrNotFound)
	require.NoError(t, repo.MarkRead(ctx, "n3", "u2"))
	count, err = repo.CountUnread(ctx, "u2")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

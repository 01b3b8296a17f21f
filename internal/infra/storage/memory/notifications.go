package memory

import (
	"context"
	"sort"
	"sync"

	"marketchat/internal/domain/notification"
)

type NotificationRepository struct {
	mu    sync.RWMutex
	items []*notification.Notification
}

func NewNotificationRepository() *NotificationRepository {
	return &NotificationRepository{}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	if n == nil || n.UserID == "" {
		return notification.ErrRecipientMissing
	}
	copyN := *n
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, &copyN)
	return nil
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var count int64
	for _, n := range r.items {
		if n.UserID == userID && !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *NotificationRepository) MarkChatRead(ctx context.Context, f notification.ChatReadFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var marked int64
	for _, n := range r.items {
		if n.UserID != f.UserID || n.Read || !isChatType(n.Type) {
			continue
		}
		matchConv := f.ConversationID != "" && n.Meta.ConversationID == f.ConversationID
		matchListing := f.ListingID != "" && n.Meta.ListingID == f.ListingID
		if matchConv || matchListing {
			n.Read = true
			marked++
		}
	}
	return marked, nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*notification.Notification, 0)
	for _, n := range r.items {
		if n.UserID == userID {
			copyN := *n
			out = append(out, &copyN)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id notification.ID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.items {
		if n.ID == id && n.UserID == userID {
			n.Read = true
			return nil
		}
	}
	return notification.ErrNotFound
}

func isChatType(t notification.Type) bool {
	for _, ct := range notification.ChatTypes {
		if t == ct {
			return true
		}
	}
	return false
}

var _ notification.Repository = (*NotificationRepository)(nil)

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"marketchat/internal/app/dto"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/notification"
)

const (
	defaultNotificationLimit = 50
	maxNotificationLimit     = 200
)

func (s *Service) ensureNotifications() error {
	if s == nil || s.Notifications == nil {
		return ErrNotConfigured
	}
	return nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *Service) ListNotifications(ctx context.Context, userID domainchat.UserID, limit int) ([]dto.Notification, error) {
	if err := s.ensureNotifications(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(userID)) == "" {
		return nil, domainchat.ErrBadRequest
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	items, err := s.Notifications.ListForUser(ctx, string(userID), clampLimit(limit, defaultNotificationLimit, maxNotificationLimit))
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	out := make([]dto.Notification, 0, len(items))
	for _, n := range items {
		out = append(out, dto.MapNotification(n))
	}
	return out, nil
}

func (s *Service) UnreadNotifications(ctx context.Context, userID domainchat.UserID) (int64, error) {
	if err := s.ensureNotifications(); err != nil {
		return 0, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.Notifications.CountUnread(ctx, string(userID))
}

// MarkNotificationRead flags one of the user's notifications read and pushes
// the new unread total.
func (s *Service) MarkNotificationRead(ctx context.Context, id notification.ID, userID domainchat.UserID) (int64, error) {
	if err := s.ensureNotifications(); err != nil {
		return 0, err
	}
	if strings.TrimSpace(string(id)) == "" {
		return 0, domainchat.ErrBadRequest
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if err := s.Notifications.MarkRead(ctx, id, string(userID)); err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			return 0, domainchat.ErrNotificationNotFound
		}
		return 0, err
	}
	count, err := s.Notifications.CountUnread(ctx, string(userID))
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	_ = s.emit(ctx, userID, dto.EventNotificationNew, dto.NotificationPush{UnreadCount: count})
	return count, nil
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marketchat/internal/app/dto"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/notification"
)

const (
	DefaultHistoryLimit = 300
	MaxHistoryLimit     = 1000
	DefaultThreadLimit  = 200
	MaxThreadLimit      = 500
)

// SendParams addresses a message either by ConversationID or by the
// (ListingID, RecipientID) pair. ConversationID wins when both are set.
type SendParams struct {
	Sender         domainchat.UserID
	ConversationID domainchat.ConversationID
	ListingID      domainchat.ListingID
	RecipientID    domainchat.UserID
	Text           string
}

// SendMessage persists a message, updates the conversation counters and
// pushes it to the recipient. The returned message is the sender's ack.
func (s *Service) SendMessage(ctx context.Context, p SendParams) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	sender := domainchat.UserID(strings.TrimSpace(string(p.Sender)))
	convID := domainchat.ConversationID(strings.TrimSpace(string(p.ConversationID)))
	listingID := domainchat.ListingID(strings.TrimSpace(string(p.ListingID)))
	recipient := domainchat.UserID(strings.TrimSpace(string(p.RecipientID)))
	if sender == "" || (convID == "" && (listingID == "" || recipient == "")) {
		return nil, domainchat.ErrBadRequest
	}
	text, err := domainchat.NormalizeText(p.Text)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.bounded(ctx)
	defer cancel()

	var conv *domainchat.Conversation
	if convID != "" {
		conv, err = s.Conversations.ByID(ctx, convID)
		if err != nil {
			return nil, err
		}
	} else {
		conv, err = s.resolveOrCreate(ctx, listingID, sender, recipient)
		if err != nil {
			return nil, err
		}
	}
	to, err := conv.Counterpart(sender)
	if err != nil {
		return nil, err
	}

	msg := &domainchat.Message{
		ID:              domainchat.MessageID(s.newID()),
		ConversationID:  conv.ID,
		ListingID:       conv.ListingID,
		From:            sender,
		To:              to,
		ParticipantsKey: conv.Scope().ParticipantsKey,
		Text:            text,
		CreatedAt:       s.now(),
	}
	if err := s.Messages.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}
	// Past this point the message is stored: failures are logged, not returned.
	if err := s.Conversations.AdvanceLastMessage(ctx, conv.ID, msg.Text, msg.CreatedAt); err != nil {
		s.log().Warn("last message update failed", "conversation_id", conv.ID, "message_id", msg.ID, "error", err)
	}
	if err := s.Conversations.IncrementUnread(ctx, conv.ID, to); err != nil {
		s.log().Warn("unread increment failed", "conversation_id", conv.ID, "user_id", to, "error", err)
	}

	outcome := s.deliverMessage(ctx, msg)
	s.log().Debug("message delivered", "message_id", msg.ID, "conversation_id", conv.ID, "outcome", outcome)
	s.record(ctx, domainchat.NewMessageEvent(domainchat.EventMessageSent, msg, msg.CreatedAt))
	return msg, nil
}

// EditMessage replaces the text of a message. Only its sender may edit it.
func (s *Service) EditMessage(ctx context.Context, id domainchat.MessageID, requester domainchat.UserID, rawText string) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	msg, err := s.ownMessage(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	text, err := domainchat.NormalizeText(rawText)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if err := s.Messages.UpdateText(ctx, msg.ID, text, now); err != nil {
		return nil, fmt.Errorf("update message: %w", err)
	}
	msg.Text = text
	msg.EditedAt = &now

	s.refreshLastMessage(ctx, msg)
	payload := dto.MapMessage(msg)
	_ = s.emit(ctx, msg.From, dto.EventMessageUpdated, payload)
	_ = s.emit(ctx, msg.To, dto.EventMessageUpdated, payload)
	s.record(ctx, domainchat.NewMessageEvent(domainchat.EventMessageEdited, msg, now))
	return msg, nil
}

// DeleteMessage removes a message. Only its sender may delete it.
func (s *Service) DeleteMessage(ctx context.Context, id domainchat.MessageID, requester domainchat.UserID) (*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	msg, err := s.ownMessage(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	if err := s.Messages.Delete(ctx, msg.ID); err != nil {
		return nil, fmt.Errorf("delete message: %w", err)
	}

	s.refreshLastMessage(ctx, msg)
	payload := dto.MessageDeletedPush{
		ID:             string(msg.ID),
		ConversationID: string(msg.ConversationID),
		ListingID:      string(msg.ListingID),
	}
	_ = s.emit(ctx, msg.From, dto.EventMessageDeleted, payload)
	_ = s.emit(ctx, msg.To, dto.EventMessageDeleted, payload)
	s.record(ctx, domainchat.NewMessageEvent(domainchat.EventMessageDeleted, msg, s.now()))
	return msg, nil
}

func (s *Service) ownMessage(ctx context.Context, id domainchat.MessageID, requester domainchat.UserID) (*domainchat.Message, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, domainchat.ErrBadRequest
	}
	msg, err := s.Messages.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if msg.From != requester {
		return nil, domainchat.ErrForbidden
	}
	return msg, nil
}

// refreshLastMessage recomputes the conversation cache from the newest
// surviving message of the thread msg belongs to.
func (s *Service) refreshLastMessage(ctx context.Context, msg *domainchat.Message) {
	conv, err := s.conversationOf(ctx, msg)
	if err != nil {
		if !errors.Is(err, domainchat.ErrConversationNotFound) {
			s.log().Warn("conversation lookup failed", "message_id", msg.ID, "error", err)
		}
		return
	}
	latest, err := s.Messages.Latest(ctx, conv.Scope())
	if err != nil {
		s.log().Warn("latest message lookup failed", "conversation_id", conv.ID, "error", err)
		return
	}
	text, at, bound := "", conv.UpdatedAt, msg.CreatedAt
	if latest != nil {
		text, at = latest.Text, latest.CreatedAt
		if latest.CreatedAt.After(bound) {
			bound = latest.CreatedAt
		}
	}
	// A message appended after the lookup is newer than bound and keeps the cache.
	if err := s.Conversations.SetLastMessage(ctx, conv.ID, text, at, bound); err != nil {
		s.log().Warn("last message recompute failed", "conversation_id", conv.ID, "error", err)
	}
}

func (s *Service) conversationOf(ctx context.Context, msg *domainchat.Message) (*domainchat.Conversation, error) {
	if msg.ConversationID != "" {
		conv, err := s.Conversations.ByID(ctx, msg.ConversationID)
		if err == nil || !errors.Is(err, domainchat.ErrConversationNotFound) {
			return conv, err
		}
	}
	return s.Conversations.ByScope(ctx, msg.Scope())
}

// MarkRead zeroes the reader's unread counter, clears the chat notifications
// pointing at the conversation and pushes the new unread total.
func (s *Service) MarkRead(ctx context.Context, id domainchat.ConversationID, reader domainchat.UserID) (int64, error) {
	if err := s.ensureDependencies(); err != nil {
		return 0, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	conv, err := s.participantConversation(ctx, id, reader)
	if err != nil {
		return 0, err
	}
	if err := s.Conversations.ResetUnread(ctx, conv.ID, reader); err != nil {
		return 0, fmt.Errorf("reset unread: %w", err)
	}
	if s.Notifications == nil {
		return 0, nil
	}
	marked, err := s.Notifications.MarkChatRead(ctx, notification.ChatReadFilter{
		UserID:         string(reader),
		ConversationID: string(conv.ID),
		ListingID:      string(conv.ListingID),
	})
	if err != nil {
		s.log().Warn("notification mark read failed", "conversation_id", conv.ID, "user_id", reader, "error", err)
	}
	count, err := s.Notifications.CountUnread(ctx, string(reader))
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	_ = s.emit(ctx, reader, dto.EventNotificationNew, dto.NotificationPush{UnreadCount: count})
	s.log().Debug("conversation read", "conversation_id", conv.ID, "user_id", reader, "notifications", marked)
	return count, nil
}

// History pages backwards through a conversation: the newest limit messages
// older than before, oldest first.
func (s *Service) History(ctx context.Context, id domainchat.ConversationID, requester domainchat.UserID, before time.Time, limit int) ([]*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	conv, err := s.participantConversation(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	return s.Messages.History(ctx, domainchat.HistoryQuery{
		Scope:  conv.Scope(),
		Before: before,
		Limit:  clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit),
	})
}

// Thread is History addressed by listing and counterpart. It also covers
// threads that have no conversation row.
func (s *Service) Thread(ctx context.Context, requester domainchat.UserID, listingID domainchat.ListingID, other domainchat.UserID, before time.Time, limit int) ([]*domainchat.Message, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	requester = domainchat.UserID(strings.TrimSpace(string(requester)))
	listingID = domainchat.ListingID(strings.TrimSpace(string(listingID)))
	other = domainchat.UserID(strings.TrimSpace(string(other)))
	if requester == "" || listingID == "" || other == "" {
		return nil, domainchat.ErrBadRequest
	}
	if requester == other {
		return nil, domainchat.ErrSelfChat
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	return s.Messages.History(ctx, domainchat.HistoryQuery{
		Scope:  domainchat.ScopeFor(listingID, requester, other),
		Before: before,
		Limit:  clampLimit(limit, DefaultThreadLimit, MaxThreadLimit),
	})
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

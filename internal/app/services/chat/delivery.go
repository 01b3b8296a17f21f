package chat

import (
	"context"
	"strings"

	"marketchat/internal/app/dto"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/notification"
)

const (
	chatMessageTitle = "New message"
	chatStartedTitle = "New chat opened"
	chatStartedBody  = "A buyer opened the chat on your listing."
)

// Outcome reports how far a best-effort delivery got. It is logged, never
// returned to the sender.
type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeDegraded  Outcome = "degraded"
	OutcomeSkipped   Outcome = "skipped"
)

// deliverMessage stores the recipient's notification, recounts their unread
// notifications and pushes message:new followed by notification:new to the
// recipient only.
func (s *Service) deliverMessage(ctx context.Context, msg *domainchat.Message) Outcome {
	if s.Notifier == nil && s.Notifications == nil {
		return OutcomeSkipped
	}
	outcome := OutcomeDelivered

	n, err := notification.New(notification.CreateParams{
		ID:     notification.ID(s.newID()),
		UserID: string(msg.To),
		Type:   notification.TypeChatMessage,
		Title:  chatMessageTitle,
		Body:   domainchat.Truncate(msg.Text, domainchat.PreviewLength),
		Meta: notification.Meta{
			ConversationID: string(msg.ConversationID),
			ListingID:      string(msg.ListingID),
			From:           string(msg.From),
			MessageID:      string(msg.ID),
		},
		CreatedAt: msg.CreatedAt,
	})
	if err != nil || !s.storeNotification(ctx, n) {
		outcome = OutcomeDegraded
	}

	count, counted := s.countUnread(ctx, msg.To)
	if !counted {
		outcome = OutcomeDegraded
	}

	if err := s.emit(ctx, msg.To, dto.EventMessageNew, dto.MapMessage(msg)); err != nil {
		outcome = OutcomeDegraded
	}
	if counted {
		at := msg.CreatedAt
		push := dto.NotificationPush{
			Type:           string(notification.TypeChatMessage),
			ConversationID: string(msg.ConversationID),
			ListingID:      string(msg.ListingID),
			From:           string(msg.From),
			At:             &at,
			UnreadCount:    count,
		}
		if err := s.emit(ctx, msg.To, dto.EventNotificationNew, push); err != nil {
			outcome = OutcomeDegraded
		}
	}
	return outcome
}

// storeNotification writes n, retrying once with the reduced shape.
func (s *Service) storeNotification(ctx context.Context, n *notification.Notification) bool {
	if s.Notifications == nil {
		return false
	}
	err := s.Notifications.Create(ctx, n)
	if err == nil {
		return true
	}
	s.log().Warn("notification create failed, retrying reduced", "user_id", n.UserID, "type", n.Type, "error", err)
	if err := s.Notifications.Create(ctx, n.Reduced()); err != nil {
		s.log().Error("notification dropped", "user_id", n.UserID, "type", n.Type, "error", err)
		return false
	}
	return true
}

func (s *Service) countUnread(ctx context.Context, userID domainchat.UserID) (int64, bool) {
	if s.Notifications == nil {
		return 0, false
	}
	count, err := s.Notifications.CountUnread(ctx, string(userID))
	if err != nil {
		s.log().Warn("unread count failed", "user_id", userID, "error", err)
		return 0, false
	}
	return count, true
}

// ChatStarted tells a seller that a buyer opened a chat on their listing.
// sellerID must own the listing. It never fails the caller.
func (s *Service) ChatStarted(ctx context.Context, listingID domainchat.ListingID, buyerID, sellerID domainchat.UserID) Outcome {
	listingID = domainchat.ListingID(strings.TrimSpace(string(listingID)))
	buyerID = domainchat.UserID(strings.TrimSpace(string(buyerID)))
	sellerID = domainchat.UserID(strings.TrimSpace(string(sellerID)))
	if listingID == "" || buyerID == "" || sellerID == "" || buyerID == sellerID {
		return OutcomeSkipped
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	if s.Listings != nil {
		item, err := s.Listings.ByID(ctx, listings.ListingID(listingID))
		if err != nil || item.SellerID != string(sellerID) {
			s.log().Debug("chat started ignored", "listing_id", listingID, "seller_id", sellerID, "error", err)
			return OutcomeSkipped
		}
	}

	outcome := OutcomeDelivered
	now := s.now()
	n, err := notification.New(notification.CreateParams{
		ID:     notification.ID(s.newID()),
		UserID: string(sellerID),
		Type:   notification.TypeChatStarted,
		Title:  chatStartedTitle,
		Body:   chatStartedBody,
		Meta: notification.Meta{
			ListingID: string(listingID),
			From:      string(buyerID),
		},
		CreatedAt: now,
	})
	if err != nil || !s.storeNotification(ctx, n) {
		outcome = OutcomeDegraded
	}
	count, counted := s.countUnread(ctx, sellerID)
	if !counted {
		s.log().Debug("chat started", "listing_id", listingID, "seller_id", sellerID, "outcome", OutcomeDegraded)
		return OutcomeDegraded
	}
	push := dto.NotificationPush{
		Type:        string(notification.TypeChatStarted),
		ListingID:   string(listingID),
		From:        string(buyerID),
		At:          &now,
		UnreadCount: count,
	}
	if err := s.emit(ctx, sellerID, dto.EventNotificationNew, push); err != nil {
		outcome = OutcomeDegraded
	}
	s.log().Debug("chat started", "listing_id", listingID, "seller_id", sellerID, "outcome", outcome)
	return outcome
}

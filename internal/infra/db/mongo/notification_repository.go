package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/notification"
)

type NotificationRepository struct {
	col *mongo.Collection
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{col: db.Collection(notificationsCollection)}
}

func (r *NotificationRepository) Create(ctx context.Context, n *notification.Notification) error {
	_, err := r.col.InsertOne(ctx, newNotificationDocument(n))
	return err
}

func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int64, error) {
	return r.col.CountDocuments(ctx, bson.M{"user_id": userID, "read": false})
}

// MarkChatRead flips the user's unread chat notifications that point at the
// conversation or, for rows that predate conversation ids, at its listing.
func (r *NotificationRepository) MarkChatRead(ctx context.Context, f notification.ChatReadFilter) (int64, error) {
	types := make(bson.A, 0, len(notification.ChatTypes))
	for _, t := range notification.ChatTypes {
		types = append(types, string(t))
	}
	targets := bson.A{}
	if f.ConversationID != "" {
		targets = append(targets, bson.M{"meta.conversation_id": f.ConversationID})
	}
	if f.ListingID != "" {
		targets = append(targets, bson.M{"meta.listing_id": f.ListingID})
	}
	if len(targets) == 0 {
		return 0, nil
	}
	res, err := r.col.UpdateMany(ctx, bson.M{
		"user_id": f.UserID,
		"read":    false,
		"type":    bson.M{"$in": types},
		"$or":     targets,
	}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*notification.Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.col.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	var docs []notificationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*notification.Notification, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toNotification())
	}
	return out, nil
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id notification.ID, userID string) error {
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": string(id), "user_id": userID}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return notification.ErrNotFound
	}
	return nil
}

type notificationMeta struct {
	ConversationID string `bson:"conversation_id,omitempty"`
	ListingID      string `bson:"listing_id,omitempty"`
	From           string `bson:"from,omitempty"`
	MessageID      string `bson:"message_id,omitempty"`
}

type notificationDocument struct {
	ID        string           `bson:"_id"`
	UserID    string           `bson:"user_id"`
	Type      string           `bson:"type"`
	Title     string           `bson:"title,omitempty"`
	Body      string           `bson:"body"`
	Read      bool             `bson:"read"`
	Meta      notificationMeta `bson:"meta"`
	CreatedAt time.Time        `bson:"created_at"`
}

func newNotificationDocument(n *notification.Notification) notificationDocument {
	return notificationDocument{
		ID:     string(n.ID),
		UserID: n.UserID,
		Type:   string(n.Type),
		Title:  n.Title,
		Body:   n.Body,
		Read:   n.Read,
		Meta: notificationMeta{
			ConversationID: n.Meta.ConversationID,
			ListingID:      n.Meta.ListingID,
			From:           n.Meta.From,
			MessageID:      n.Meta.MessageID,
		},
		CreatedAt: n.CreatedAt.UTC(),
	}
}

func (d notificationDocument) toNotification() *notification.Notification {
	return &notification.Notification{
		ID:     notification.ID(d.ID),
		UserID: d.UserID,
		Type:   notification.Type(d.Type),
		Title:  d.Title,
		Body:   d.Body,
		Read:   d.Read,
		Meta: notification.Meta{
			ConversationID: d.Meta.ConversationID,
			ListingID:      d.Meta.ListingID,
			From:           d.Meta.From,
			MessageID:      d.Meta.MessageID,
		},
		CreatedAt: d.CreatedAt.UTC(),
	}
}

var _ notification.Repository = (*NotificationRepository)(nil)

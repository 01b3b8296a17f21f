package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	conversationsCollection = "chat_conversations"
	messagesCollection      = "chat_messages"
	notificationsCollection = "notifications"
	usersCollection         = "users"
	listingsCollection      = "listings"
)

// EnsureIndexes creates the indexes the chat collections rely on. The
// unique scope index is what keeps one conversation per listing and pair.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	plan := map[string][]mongo.IndexModel{
		conversationsCollection: {
			{
				Keys:    bson.D{{Key: "listing_id", Value: 1}, {Key: "participants_key", Value: 1}},
				Options: options.Index().SetUnique(true).SetPartialFilterExpression(bson.M{"participants_key": bson.M{"$type": "string"}}),
			},
			{Keys: bson.D{{Key: "participants", Value: 1}}},
		},
		messagesCollection: {
			{Keys: bson.D{{Key: "listing_id", Value: 1}, {Key: "participants_key", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "from", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "to", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		notificationsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "read", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
	}
	for name, models := range plan {
		if _, err := db.Collection(name).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("indexes for %s: %w", name, err)
		}
	}
	return nil
}

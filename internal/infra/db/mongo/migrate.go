package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type migration struct {
	name       string
	collection string
	filter     bson.M
	pipeline   mongo.Pipeline
}

// Every migration is an idempotent pipeline update: its filter only matches
// documents still in the old shape.
var migrations = []migration{
	{
		name:       "notifications: user to user_id",
		collection: notificationsCollection,
		filter:     bson.M{"user_id": bson.M{"$exists": false}, "user": bson.M{"$exists": true}},
		pipeline: mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"user_id": bson.M{"$toString": "$user"}}}},
			{{Key: "$unset", Value: "user"}},
		},
	},
	{
		name:       "notifications: data to meta",
		collection: notificationsCollection,
		filter:     bson.M{"meta": bson.M{"$exists": false}, "data": bson.M{"$exists": true}},
		pipeline: mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"meta": bson.M{
				"conversation_id": bson.M{"$toString": "$data.conversationId"},
				"listing_id":      bson.M{"$toString": "$data.listingId"},
				"from":            bson.M{"$toString": "$data.from"},
				"message_id":      bson.M{"$toString": "$data.messageId"},
			}}}},
			{{Key: "$unset", Value: "data"}},
		},
	},
	{
		name:       "notifications: camelCase meta keys",
		collection: notificationsCollection,
		filter: bson.M{"$or": bson.A{
			bson.M{"meta.conversationId": bson.M{"$exists": true}},
			bson.M{"meta.listingId": bson.M{"$exists": true}},
			bson.M{"meta.messageId": bson.M{"$exists": true}},
		}},
		pipeline: mongo.Pipeline{
			{{Key: "$set", Value: bson.M{
				"meta.conversation_id": bson.M{"$ifNull": bson.A{"$meta.conversation_id", bson.M{"$toString": "$meta.conversationId"}}},
				"meta.listing_id":      bson.M{"$ifNull": bson.A{"$meta.listing_id", bson.M{"$toString": "$meta.listingId"}}},
				"meta.message_id":      bson.M{"$ifNull": bson.A{"$meta.message_id", bson.M{"$toString": "$meta.messageId"}}},
				"meta.from":            bson.M{"$toString": "$meta.from"},
			}}},
			{{Key: "$unset", Value: bson.A{"meta.conversationId", "meta.listingId", "meta.messageId"}}},
		},
	},
	{
		name:       "notifications: message to body",
		collection: notificationsCollection,
		filter:     bson.M{"body": bson.M{"$exists": false}, "message": bson.M{"$exists": true}},
		pipeline: mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"body": "$message"}}},
			{{Key: "$unset", Value: "message"}},
		},
	},
	{
		name:       "notifications: read default",
		collection: notificationsCollection,
		filter:     bson.M{"read": bson.M{"$exists": false}},
		pipeline: mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"read": false}}},
		},
	},
	{
		name:       "messages: participants_key backfill",
		collection: messagesCollection,
		filter:     bson.M{"participants_key": bson.M{"$exists": false}, "from": bson.M{"$exists": true}, "to": bson.M{"$exists": true}},
		pipeline: mongo.Pipeline{
			{{Key: "$set", Value: bson.M{"participants_key": bson.M{"$cond": bson.A{
				bson.M{"$lte": bson.A{"$from", "$to"}},
				bson.M{"$concat": bson.A{"$from", ":", "$to"}},
				bson.M{"$concat": bson.A{"$to", ":", "$from"}},
			}}}}},
		},
	},
}

// Migrate brings stored documents to the current shape.
func Migrate(ctx context.Context, db *mongo.Database, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	for _, m := range migrations {
		res, err := db.Collection(m.collection).UpdateMany(ctx, m.filter, m.pipeline)
		if err != nil {
			return fmt.Errorf("migration %q: %w", m.name, err)
		}
		if res.ModifiedCount > 0 {
			logger.Info("migration applied", "migration", m.name, "documents", res.ModifiedCount)
		}
	}
	return nil
}

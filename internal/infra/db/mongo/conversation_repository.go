package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "marketchat/internal/domain/chat"
)

type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(conversationsCollection)}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByScope(ctx context.Context, scope domainchat.Scope) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"listing_id": string(scope.ListingID), "participants_key": scope.ParticipantsKey})
}

// ByListingAndMembers finds rows written before participants_key existed.
func (r *ConversationRepository) ByListingAndMembers(ctx context.Context, listingID domainchat.ListingID, a, b domainchat.UserID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{
		"listing_id":   string(listingID),
		"participants": bson.M{"$all": bson.A{string(a), string(b)}},
	})
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || conv.ID == "" {
		return domainchat.ErrBadRequest
	}
	if _, err := r.col.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrDuplicateConversation
		}
		return err
	}
	return nil
}

// BackfillKey stamps a legacy row with its key. Existing counters win over
// the zero defaults.
func (r *ConversationRepository) BackfillKey(ctx context.Context, id domainchat.ConversationID, key string, participants []domainchat.UserID) error {
	defaults := bson.M{}
	ids := make(bson.A, 0, len(participants))
	for _, p := range participants {
		defaults[string(p)] = 0
		ids = append(ids, string(p))
	}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"participants_key": key,
			"participants":     ids,
			"unread":           bson.M{"$mergeObjects": bson.A{defaults, bson.M{"$ifNull": bson.A{"$unread", bson.M{}}}}},
			"updated_at":       time.Now().UTC(),
		}}},
	}
	res, err := r.col.UpdateByID(ctx, string(id), pipeline)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrDuplicateConversation
		}
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID domainchat.UserID) ([]*domainchat.Conversation, error) {
	cur, err := r.col.Find(ctx, bson.M{"participants": string(userID)}, options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainchat.Conversation, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toAggregate())
	}
	return out, nil
}

func (r *ConversationRepository) IncrementUnread(ctx context.Context, id domainchat.ConversationID, userID domainchat.UserID) error {
	return r.update(ctx, bson.M{"_id": string(id)}, bson.M{
		"$inc": bson.M{"unread." + string(userID): 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}, true)
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id domainchat.ConversationID, userID domainchat.UserID) error {
	return r.update(ctx, bson.M{"_id": string(id)}, bson.M{
		"$set": bson.M{"unread." + string(userID): 0, "updated_at": time.Now().UTC()},
	}, true)
}

// AdvanceLastMessage only moves the cache forward in time; a no-match is
// the expected outcome when a newer message already won.
func (r *ConversationRepository) AdvanceLastMessage(ctx context.Context, id domainchat.ConversationID, text string, at time.Time) error {
	filter := bson.M{
		"_id": string(id),
		"$or": bson.A{
			bson.M{"last_message_at": bson.M{"$lte": at.UTC()}},
			bson.M{"last_message_at": nil},
		},
	}
	return r.update(ctx, filter, bson.M{
		"$set": bson.M{"last_message": text, "last_message_at": at.UTC(), "updated_at": time.Now().UTC()},
	}, false)
}

// SetLastMessage may move the cache backwards, but never past a message
// newer than bound that was appended concurrently.
func (r *ConversationRepository) SetLastMessage(ctx context.Context, id domainchat.ConversationID, text string, at, bound time.Time) error {
	filter := bson.M{
		"_id": string(id),
		"$or": bson.A{
			bson.M{"last_message_at": bson.M{"$lte": bound.UTC()}},
			bson.M{"last_message_at": nil},
		},
	}
	return r.update(ctx, filter, bson.M{
		"$set": bson.M{"last_message": text, "last_message_at": at.UTC(), "updated_at": time.Now().UTC()},
	}, false)
}

func (r *ConversationRepository) Delete(ctx context.Context, id domainchat.ConversationID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ConversationRepository) update(ctx context.Context, filter, update bson.M, mustMatch bool) error {
	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if mustMatch && res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

type conversationDocument struct {
	ID              string         `bson:"_id"`
	ListingID       string         `bson:"listing_id"`
	Participants    []string       `bson:"participants"`
	ParticipantsKey string         `bson:"participants_key,omitempty"`
	LastMessage     string         `bson:"last_message"`
	LastMessageAt   time.Time      `bson:"last_message_at"`
	Unread          map[string]int `bson:"unread"`
	CreatedAt       time.Time      `bson:"created_at"`
	UpdatedAt       time.Time      `bson:"updated_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:              string(c.ID),
		ListingID:       string(c.ListingID),
		Participants:    make([]string, 0, len(c.Participants)),
		ParticipantsKey: c.ParticipantsKey,
		LastMessage:     c.LastMessage,
		LastMessageAt:   c.LastMessageAt.UTC(),
		Unread:          make(map[string]int, len(c.Unread)),
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt.UTC(),
	}
	for _, p := range c.Participants {
		doc.Participants = append(doc.Participants, string(p))
	}
	for id, n := range c.Unread {
		doc.Unread[string(id)] = n
	}
	return doc
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	c := &domainchat.Conversation{
		ID:              domainchat.ConversationID(d.ID),
		ListingID:       domainchat.ListingID(d.ListingID),
		Participants:    make([]domainchat.UserID, 0, len(d.Participants)),
		ParticipantsKey: d.ParticipantsKey,
		LastMessage:     d.LastMessage,
		LastMessageAt:   d.LastMessageAt.UTC(),
		Unread:          make(map[domainchat.UserID]int, len(d.Unread)),
		CreatedAt:       d.CreatedAt.UTC(),
		UpdatedAt:       d.UpdatedAt.UTC(),
	}
	for _, p := range d.Participants {
		c.Participants = append(c.Participants, domainchat.UserID(p))
	}
	for id, n := range d.Unread {
		c.Unread[domainchat.UserID(id)] = n
	}
	return c
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)

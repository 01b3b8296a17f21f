package mongo

import (
	"context"
	"errors"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "marketchat/internal/domain/chat"
)

// Newest first. Ids are uuid v7 so they break created_at ties in insert order.
var newestFirst = bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}

type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(messagesCollection)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	if msg == nil || msg.ID == "" {
		return domainchat.ErrBadRequest
	}
	_, err := r.col.InsertOne(ctx, newMessageDocument(msg))
	return err
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	var doc messageDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrMessageNotFound
		}
		return nil, err
	}
	return doc.toMessage(), nil
}

func (r *MessageRepository) UpdateText(ctx context.Context, id domainchat.MessageID, text string, editedAt time.Time) error {
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$set": bson.M{"text": text, "edited_at": editedAt.UTC()}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainchat.ErrMessageNotFound
	}
	return nil
}

func (r *MessageRepository) Latest(ctx context.Context, scope domainchat.Scope) (*domainchat.Message, error) {
	var doc messageDocument
	err := r.col.FindOne(ctx, scopeFilter(scope), options.FindOne().SetSort(newestFirst)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toMessage(), nil
}

func (r *MessageRepository) History(ctx context.Context, q domainchat.HistoryQuery) ([]*domainchat.Message, error) {
	filter := scopeFilter(q.Scope)
	if !q.Before.IsZero() {
		filter["created_at"] = bson.M{"$lt": q.Before.UTC()}
	}
	opts := options.Find().SetSort(newestFirst)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	msgs, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	slices.Reverse(msgs)
	return msgs, nil
}

func (r *MessageRepository) RecentForUser(ctx context.Context, userID domainchat.UserID, limit int) ([]*domainchat.Message, error) {
	filter := bson.M{"$or": bson.A{bson.M{"from": string(userID)}, bson.M{"to": string(userID)}}}
	opts := options.Find().SetSort(newestFirst)
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return r.find(ctx, filter, opts)
}

func (r *MessageRepository) DeleteScope(ctx context.Context, scope domainchat.Scope) (int64, error) {
	res, err := r.col.DeleteMany(ctx, scopeFilter(scope))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *MessageRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainchat.Message, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainchat.Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toMessage())
	}
	return out, nil
}

func scopeFilter(scope domainchat.Scope) bson.M {
	return bson.M{"listing_id": string(scope.ListingID), "participants_key": scope.ParticipantsKey}
}

type messageDocument struct {
	ID              string     `bson:"_id"`
	ConversationID  string     `bson:"conversation_id,omitempty"`
	ListingID       string     `bson:"listing_id"`
	From            string     `bson:"from"`
	To              string     `bson:"to"`
	ParticipantsKey string     `bson:"participants_key,omitempty"`
	Text            string     `bson:"text"`
	CreatedAt       time.Time  `bson:"created_at"`
	EditedAt        *time.Time `bson:"edited_at,omitempty"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:              string(m.ID),
		ConversationID:  string(m.ConversationID),
		ListingID:       string(m.ListingID),
		From:            string(m.From),
		To:              string(m.To),
		ParticipantsKey: m.ParticipantsKey,
		Text:            m.Text,
		CreatedAt:       m.CreatedAt.UTC(),
	}
	if doc.ParticipantsKey == "" {
		doc.ParticipantsKey = domainchat.ParticipantsKey(m.From, m.To)
	}
	if m.EditedAt != nil {
		at := m.EditedAt.UTC()
		doc.EditedAt = &at
	}
	return doc
}

func (d messageDocument) toMessage() *domainchat.Message {
	m := &domainchat.Message{
		ID:              domainchat.MessageID(d.ID),
		ConversationID:  domainchat.ConversationID(d.ConversationID),
		ListingID:       domainchat.ListingID(d.ListingID),
		From:            domainchat.UserID(d.From),
		To:              domainchat.UserID(d.To),
		ParticipantsKey: d.ParticipantsKey,
		Text:            d.Text,
		CreatedAt:       d.CreatedAt.UTC(),
	}
	if d.EditedAt != nil {
		at := d.EditedAt.UTC()
		m.EditedAt = &at
	}
	return m
}

var _ domainchat.MessageRepository = (*MessageRepository)(nil)

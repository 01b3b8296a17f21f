package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// The users and listings collections belong to the marketplace. Their ids
// are ObjectIDs; anything that is not valid hex is looked up verbatim.
func docID(raw string) any {
	if oid, err := primitive.ObjectIDFromHex(raw); err == nil {
		return oid
	}
	return raw
}

func docIDs[T ~string](ids []T) bson.A {
	out := make(bson.A, 0, len(ids))
	for _, id := range ids {
		out = append(out, docID(string(id)))
	}
	return out
}

type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection(usersCollection)}
}

var userProjection = bson.M{"name": 1, "email": 1, "avatarUrl": 1, "isActive": 1}

func (d *UserDirectory) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	var doc userDocument
	err := d.col.FindOne(ctx, bson.M{"_id": docID(string(id))}, options.FindOne().SetProjection(userProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domainuser.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toUser(), nil
}

func (d *UserDirectory) Summaries(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]domainuser.Summary, error) {
	out := make(map[domainuser.ID]domainuser.Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := d.col.Find(ctx, bson.M{"_id": bson.M{"$in": docIDs(ids)}}, options.Find().SetProjection(userProjection))
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		u := doc.toUser()
		out[u.ID] = u.Summary()
	}
	return out, nil
}

type userDocument struct {
	ID        any    `bson:"_id"`
	Name      string `bson:"name"`
	Email     string `bson:"email"`
	AvatarURL string `bson:"avatarUrl"`
	IsActive  *bool  `bson:"isActive"`
}

func (d userDocument) toUser() *domainuser.User {
	return &domainuser.User{
		ID:        domainuser.ID(idString(d.ID)),
		Name:      d.Name,
		Email:     d.Email,
		AvatarURL: d.AvatarURL,
		Active:    d.IsActive == nil || *d.IsActive,
	}
}

type ListingCatalog struct {
	col *mongo.Collection
}

func NewListingCatalog(db *mongo.Database) *ListingCatalog {
	return &ListingCatalog{col: db.Collection(listingsCollection)}
}

var listingProjection = bson.M{"title": 1, "type": 1, "images": 1, "seller": 1}

func (c *ListingCatalog) ByID(ctx context.Context, id listings.ListingID) (*listings.Summary, error) {
	var doc listingDocument
	err := c.col.FindOne(ctx, bson.M{"_id": docID(string(id))}, options.FindOne().SetProjection(listingProjection)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, listings.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s := doc.toSummary()
	return &s, nil
}

func (c *ListingCatalog) Summaries(ctx context.Context, ids []listings.ListingID) (map[listings.ListingID]listings.Summary, error) {
	out := make(map[listings.ListingID]listings.Summary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := c.col.Find(ctx, bson.M{"_id": bson.M{"$in": docIDs(ids)}}, options.Find().SetProjection(listingProjection))
	if err != nil {
		return nil, err
	}
	var docs []listingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	for _, doc := range docs {
		s := doc.toSummary()
		out[s.ID] = s
	}
	return out, nil
}

type listingDocument struct {
	ID     any      `bson:"_id"`
	Title  string   `bson:"title"`
	Type   string   `bson:"type"`
	Images []string `bson:"images"`
	Seller any      `bson:"seller"`
}

func (d listingDocument) toSummary() listings.Summary {
	s := listings.Summary{
		ID:       listings.ListingID(idString(d.ID)),
		SellerID: idString(d.Seller),
		Title:    d.Title,
		Images:   d.Images,
	}
	if t, ok := listings.ParseType(d.Type); ok {
		s.Type = t
	}
	if len(d.Images) > 0 {
		s.CoverURL = d.Images[0]
	}
	return s
}

func idString(v any) string {
	switch id := v.(type) {
	case primitive.ObjectID:
		return id.Hex()
	case string:
		return id
	default:
		return ""
	}
}

var (
	_ domainuser.Directory = (*UserDirectory)(nil)
	_ listings.Catalog     = (*ListingCatalog)(nil)
)

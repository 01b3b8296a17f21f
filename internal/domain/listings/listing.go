package listings

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("listings: not found")

type ListingID string

type Type string

const (
	TypeSale Type = "sale"
	TypeRent Type = "rent"
)

// ParseType returns the listing type a conversation list may be filtered by.
// Unknown values mean no filter.
func ParseType(raw string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(raw))) {
	case TypeSale:
		return TypeSale, true
	case TypeRent:
		return TypeRent, true
	default:
		return "", false
	}
}

// Summary is the listing data shown next to a conversation.
type Summary struct {
	ID       ListingID `json:"_id"`
	SellerID string    `json:"seller,omitempty"`
	Title    string    `json:"title"`
	Type     Type      `json:"type"`
	CoverURL string    `json:"coverUrl,omitempty"`
	Images   []string  `json:"images,omitempty"`
}

// Catalog is the read side of the external listing store.
type Catalog interface {
	ByID(ctx context.Context, id ListingID) (*Summary, error)
	Summaries(ctx context.Context, ids []ListingID) (map[ListingID]Summary, error)
}

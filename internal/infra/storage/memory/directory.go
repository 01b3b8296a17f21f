package memory

import (
	"context"
	"sync"

	"marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// UserDirectory stands in for the marketplace account store.
type UserDirectory struct {
	mu    sync.RWMutex
	users map[domainuser.ID]domainuser.User
}

func NewUserDirectory(users ...domainuser.User) *UserDirectory {
	d := &UserDirectory{users: make(map[domainuser.ID]domainuser.User)}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

func (d *UserDirectory) Put(u domainuser.User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

func (d *UserDirectory) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, domainuser.ErrNotFound
	}
	return &u, nil
}

func (d *UserDirectory) Summaries(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]domainuser.Summary, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[domainuser.ID]domainuser.Summary, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			out[id] = u.Summary()
		}
	}
	return out, nil
}

// ListingCatalog stands in for the marketplace listing store.
type ListingCatalog struct {
	mu    sync.RWMutex
	items map[listings.ListingID]listings.Summary
}

func NewListingCatalog(items ...listings.Summary) *ListingCatalog {
	c := &ListingCatalog{items: make(map[listings.ListingID]listings.Summary)}
	for _, item := range items {
		c.Put(item)
	}
	return c
}

func (c *ListingCatalog) Put(item listings.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item.Images = append([]string(nil), item.Images...)
	c.items[item.ID] = item
}

func (c *ListingCatalog) ByID(ctx context.Context, id listings.ListingID) (*listings.Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.items[id]
	if !ok {
		return nil, listings.ErrNotFound
	}
	return &item, nil
}

func (c *ListingCatalog) Summaries(ctx context.Context, ids []listings.ListingID) (map[listings.ListingID]listings.Summary, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[listings.ListingID]listings.Summary, len(ids))
	for _, id := range ids {
		if item, ok := c.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

var (
	_ domainuser.Directory = (*UserDirectory)(nil)
	_ listings.Catalog     = (*ListingCatalog)(nil)
)

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
	"marketchat/internal/infra/storage/memory"
)

var defaultFixturesPath = filepath.Join("data", "directory.json")

type directoryFixtures struct {
	Users []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
		Inactive  bool   `json:"inactive"`
	} `json:"users"`
	Listings []struct {
		ID       string   `json:"id"`
		SellerID string   `json:"seller_id"`
		Title    string   `json:"title"`
		Type     string   `json:"type"`
		Images   []string `json:"images"`
	} `json:"listings"`
}

// loadDirectoryFixtures seeds the in-memory user directory and listing
// catalog, which stand in for the marketplace collections on local runs.
func loadDirectoryFixtures(path string, users *memory.UserDirectory, catalog *memory.ListingCatalog, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("directory fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}
	var fx directoryFixtures
	if err := json.Unmarshal(data, &fx); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}
	for _, u := range fx.Users {
		if u.ID == "" {
			continue
		}
		users.Put(domainuser.User{
			ID:        domainuser.ID(u.ID),
			Name:      u.Name,
			Email:     u.Email,
			AvatarURL: u.AvatarURL,
			Active:    !u.Inactive,
		})
	}
	for _, l := range fx.Listings {
		if l.ID == "" {
			continue
		}
		item := listings.Summary{
			ID:       listings.ListingID(l.ID),
			SellerID: l.SellerID,
			Title:    l.Title,
			Images:   l.Images,
		}
		if t, ok := listings.ParseType(l.Type); ok {
			item.Type = t
		}
		if len(l.Images) > 0 {
			item.CoverURL = l.Images[0]
		}
		catalog.Put(item)
	}
	logger.Info("directory fixtures imported", "users", len(fx.Users), "listings", len(fx.Listings))
	return nil
}

package user

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrIDRequired = errors.New("user: id is required")
	ErrNotFound   = errors.New("user: not found")
	ErrInactive   = errors.New("user: account is inactive")
)

type ID string

// User is the subset of the marketplace account the chat core reads.
type User struct {
	ID        ID
	Name      string
	Email     string
	AvatarURL string
	Active    bool
}

// Summary is what a conversation list shows about a participant.
type Summary struct {
	ID        ID     `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, Name: u.Name, Email: u.Email, AvatarURL: u.AvatarURL}
}

// Directory is the read side of the external account store.
type Directory interface {
	ByID(ctx context.Context, id ID) (*User, error)
	Summaries(ctx context.Context, ids []ID) (map[ID]Summary, error)
}

// NormalizeID trims a raw user reference. It does not check existence.
func NormalizeID(raw string) (ID, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", ErrIDRequired
	}
	return ID(id), nil
}

// Resolve maps a raw reference to an existing user id.
func Resolve(ctx context.Context, dir Directory, raw string) (ID, error) {
	id, err := NormalizeID(raw)
	if err != nil {
		return "", err
	}
	if dir == nil {
		return id, nil
	}
	u, err := dir.ByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.ID, nil
}

package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"marketchat/internal/app/outbox"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	"marketchat/internal/domain/notification"
	"marketchat/internal/domain/shared/events"
	domainuser "marketchat/internal/domain/user"
)

const (
	defaultStoreTimeout = 5 * time.Second
	resolveAttempts     = 3
	reconcileWindow     = 500
	startHistoryLimit   = 500
)

var ErrNotConfigured = errors.New("chat: service missing dependencies")

// Notifier pushes an event to every live connection of a user.
type Notifier interface {
	EmitToUser(ctx context.Context, userID string, event string, payload any) error
}

// Service is the conversation registry, message store and delivery fan-out.
// Callers always pass the acting user explicitly.
type Service struct {
	Conversations domainchat.ConversationRepository
	Messages      domainchat.MessageRepository
	Notifications notification.Repository
	Users         domainuser.Directory
	Listings      listings.Catalog
	Notifier      Notifier
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Now           func() time.Time
	NewID         func() string
	StoreTimeout  time.Duration
	Logger        *slog.Logger
}

func (s *Service) ensureDependencies() error {
	if s == nil || s.Conversations == nil || s.Messages == nil {
		return ErrNotConfigured
	}
	return nil
}

// bounded caps an operation so a store that never answers fails the caller.
func (s *Service) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.New(slog.DiscardHandler)
}

func (s *Service) record(ctx context.Context, evs ...events.DomainEvent) {
	if s.Outbox == nil {
		return
	}
	if err := outbox.RecordDomainEvents(ctx, s.Outbox, s.Encoder, evs...); err != nil {
		s.log().Warn("outbox record failed", "error", err)
	}
}

func (s *Service) emit(ctx context.Context, userID domainchat.UserID, event string, payload any) error {
	if s.Notifier == nil {
		return nil
	}
	if err := s.Notifier.EmitToUser(ctx, string(userID), event, payload); err != nil {
		s.log().Warn("push failed", "event", event, "user_id", userID, "error", err)
		return err
	}
	return nil
}

package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	domainchat "marketchat/internal/domain/chat"
)

// ConversationRepository keeps conversations in memory. The scope index
// plays the role of the unique (listing, participants key) constraint.
type ConversationRepository struct {
	mu      sync.RWMutex
	byID    map[domainchat.ConversationID]*domainchat.Conversation
	byScope map[string]domainchat.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:    make(map[domainchat.ConversationID]*domainchat.Conversation),
		byScope: make(map[string]domainchat.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if conv, ok := r.byID[id]; ok {
		return conv.Clone(), nil
	}
	return nil, domainchat.ErrConversationNotFound
}

func (r *ConversationRepository) ByScope(ctx context.Context, scope domainchat.Scope) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.byScope[scope.String()]; ok {
		return r.byID[id].Clone(), nil
	}
	return nil, domainchat.ErrConversationNotFound
}

func (r *ConversationRepository) ByListingAndMembers(ctx context.Context, listingID domainchat.ListingID, a, b domainchat.UserID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conv := range r.byID {
		if conv.ListingID == listingID && conv.HasParticipant(a) && conv.HasParticipant(b) {
			return conv.Clone(), nil
		}
	}
	return nil, domainchat.ErrConversationNotFound
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || strings.TrimSpace(string(conv.ID)) == "" {
		return domainchat.ErrBadRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[conv.ID]; ok {
		return domainchat.ErrDuplicateConversation
	}
	if conv.ParticipantsKey != "" {
		key := conv.Scope().String()
		if _, taken := r.byScope[key]; taken {
			return domainchat.ErrDuplicateConversation
		}
		r.byScope[key] = conv.ID
	}
	r.byID[conv.ID] = conv.Clone()
	return nil
}

func (r *ConversationRepository) BackfillKey(ctx context.Context, id domainchat.ConversationID, key string, participants []domainchat.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	scope := domainchat.Scope{ListingID: conv.ListingID, ParticipantsKey: key}.String()
	if owner, taken := r.byScope[scope]; taken && owner != id {
		return domainchat.ErrDuplicateConversation
	}
	conv.ParticipantsKey = key
	conv.Participants = append([]domainchat.UserID(nil), participants...)
	if conv.Unread == nil {
		conv.Unread = make(map[domainchat.UserID]int, len(participants))
	}
	for _, p := range participants {
		if _, ok := conv.Unread[p]; !ok {
			conv.Unread[p] = 0
		}
	}
	r.byScope[scope] = id
	return nil
}

func (r *ConversationRepository) ListForUser(ctx context.Context, userID domainchat.UserID) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainchat.Conversation, 0)
	for _, conv := range r.byID {
		if conv.HasParticipant(userID) {
			out = append(out, conv.Clone())
		}
	}
	return out, nil
}

func (r *ConversationRepository) IncrementUnread(ctx context.Context, id domainchat.ConversationID, userID domainchat.UserID) error {
	return r.mutate(id, func(conv *domainchat.Conversation) {
		if conv.Unread == nil {
			conv.Unread = map[domainchat.UserID]int{}
		}
		conv.Unread[userID]++
	})
}

func (r *ConversationRepository) ResetUnread(ctx context.Context, id domainchat.ConversationID, userID domainchat.UserID) error {
	return r.mutate(id, func(conv *domainchat.Conversation) {
		if conv.Unread == nil {
			conv.Unread = map[domainchat.UserID]int{}
		}
		conv.Unread[userID] = 0
	})
}

func (r *ConversationRepository) AdvanceLastMessage(ctx context.Context, id domainchat.ConversationID, text string, at time.Time) error {
	return r.mutate(id, func(conv *domainchat.Conversation) {
		if conv.LastMessageAt.After(at) {
			return
		}
		conv.LastMessage = text
		conv.LastMessageAt = at
	})
}

func (r *ConversationRepository) SetLastMessage(ctx context.Context, id domainchat.ConversationID, text string, at, bound time.Time) error {
	return r.mutate(id, func(conv *domainchat.Conversation) {
		if conv.LastMessageAt.After(bound) {
			return
		}
		conv.LastMessage = text
		conv.LastMessageAt = at
	})
}

func (r *ConversationRepository) Delete(ctx context.Context, id domainchat.ConversationID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	delete(r.byID, id)
	key := conv.Scope().String()
	if r.byScope[key] == id {
		delete(r.byScope, key)
	}
	return nil
}

func (r *ConversationRepository) mutate(id domainchat.ConversationID, fn func(*domainchat.Conversation)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	fn(conv)
	conv.UpdatedAt = time.Now().UTC()
	return nil
}

var _ domainchat.ConversationRepository = (*ConversationRepository)(nil)

package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"marketchat/internal/app/dto"
	domainchat "marketchat/internal/domain/chat"
	"marketchat/internal/domain/listings"
	domainuser "marketchat/internal/domain/user"
)

// ResolveOrCreate returns the single conversation for a listing and a user
// pair, creating it when needed. Concurrent callers converge on one row.
func (s *Service) ResolveOrCreate(ctx context.Context, listingID domainchat.ListingID, a, b domainchat.UserID) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.resolveOrCreate(ctx, listingID, a, b)
}

func (s *Service) resolveOrCreate(ctx context.Context, listingID domainchat.ListingID, a, b domainchat.UserID) (*domainchat.Conversation, error) {
	listingID = domainchat.ListingID(strings.TrimSpace(string(listingID)))
	a = domainchat.UserID(strings.TrimSpace(string(a)))
	b = domainchat.UserID(strings.TrimSpace(string(b)))
	if listingID == "" || a == "" || b == "" {
		return nil, domainchat.ErrBadRequest
	}
	if a == b {
		return nil, domainchat.ErrSelfChat
	}
	scope := domainchat.ScopeFor(listingID, a, b)
	validated := false
	for attempt := 0; attempt < resolveAttempts; attempt++ {
		conv, err := s.lookup(ctx, scope, a, b)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, domainchat.ErrConversationNotFound) {
			return nil, err
		}
		if !validated {
			if err := s.validateParties(ctx, listingID, a, b); err != nil {
				return nil, err
			}
			validated = true
		}
		conv, err = domainchat.NewConversation(domainchat.CreateParams{
			ID:        domainchat.ConversationID(s.newID()),
			ListingID: listingID,
			A:         a,
			B:         b,
			CreatedAt: s.now(),
		})
		if err != nil {
			return nil, err
		}
		err = s.Conversations.Create(ctx, conv)
		if err == nil {
			s.log().Info("conversation created", "conversation_id", conv.ID, "listing_id", listingID)
			s.record(ctx, domainchat.NewConversationStarted(conv))
			return conv, nil
		}
		if !errors.Is(err, domainchat.ErrDuplicateConversation) {
			return nil, fmt.Errorf("create conversation %s: %w", scope, err)
		}
		s.log().Debug("conversation create lost race, re-reading", "scope", scope.String(), "attempt", attempt+1)
	}
	return nil, fmt.Errorf("resolve conversation %s: retries exhausted", scope)
}

// lookup tries the participants key first, then the member-set query that
// matches rows written before the key existed, backfilling the key.
func (s *Service) lookup(ctx context.Context, scope domainchat.Scope, a, b domainchat.UserID) (*domainchat.Conversation, error) {
	conv, err := s.Conversations.ByScope(ctx, scope)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, domainchat.ErrConversationNotFound) {
		return nil, err
	}
	conv, err = s.Conversations.ByListingAndMembers(ctx, scope.ListingID, a, b)
	if err != nil {
		return nil, err
	}
	participants := []domainchat.UserID{a, b}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	if err := s.Conversations.BackfillKey(ctx, conv.ID, scope.ParticipantsKey, participants); err != nil {
		s.log().Warn("participants key backfill failed", "conversation_id", conv.ID, "error", err)
	} else {
		s.log().Info("participants key backfilled", "conversation_id", conv.ID)
	}
	conv.ParticipantsKey = scope.ParticipantsKey
	conv.Participants = participants
	return conv, nil
}

func (s *Service) validateParties(ctx context.Context, listingID domainchat.ListingID, a, b domainchat.UserID) error {
	if s.Listings != nil {
		if _, err := s.Listings.ByID(ctx, listings.ListingID(listingID)); err != nil {
			if errors.Is(err, listings.ErrNotFound) {
				return domainchat.ErrListingNotFound
			}
			return err
		}
	}
	if s.Users != nil {
		for _, id := range []domainchat.UserID{a, b} {
			if _, err := domainuser.Resolve(ctx, s.Users, string(id)); err != nil {
				if errors.Is(err, domainuser.ErrNotFound) {
					return domainchat.ErrUserNotFound
				}
				return err
			}
		}
	}
	return nil
}

// ListForUser returns the caller's conversations, newest activity first.
// Threads that exist only in the message log get their conversation row
// created on the way. listingType filters by "sale" or "rent"; any other
// value returns everything.
func (s *Service) ListForUser(ctx context.Context, userID domainchat.UserID, listingType string) ([]dto.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(userID)) == "" {
		return nil, domainchat.ErrBadRequest
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	convs, err := s.Conversations.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if s.reconcile(ctx, userID, convs) > 0 {
		convs, err = s.Conversations.ListForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
	}

	listingSummaries := s.listingSummaries(ctx, convs)
	if typ, ok := listings.ParseType(listingType); ok {
		filtered := convs[:0]
		for _, c := range convs {
			if l, found := listingSummaries[listings.ListingID(c.ListingID)]; found && l.Type == typ {
				filtered = append(filtered, c)
			}
		}
		convs = filtered
	}

	convs = dedupeByScope(convs)
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].LastActivity().After(convs[j].LastActivity())
	})

	userSummaries := s.participantSummaries(ctx, convs)
	out := make([]dto.Conversation, 0, len(convs))
	for _, c := range convs {
		item := dto.MapConversation(c, userID)
		item.Populate(listingSummaries, userSummaries)
		out = append(out, item)
	}
	return out, nil
}

// reconcile creates conversation rows for threads found in the user's recent
// messages that have no row yet. It returns how many rows it touched.
func (s *Service) reconcile(ctx context.Context, userID domainchat.UserID, convs []*domainchat.Conversation) int {
	known := make(map[string]struct{}, len(convs))
	for _, c := range convs {
		known[c.Scope().String()] = struct{}{}
	}
	recent, err := s.Messages.RecentForUser(ctx, userID, reconcileWindow)
	if err != nil {
		s.log().Warn("recent messages lookup failed", "user_id", userID, "error", err)
		return 0
	}
	touched := 0
	for _, m := range recent {
		key := m.Scope().String()
		if _, ok := known[key]; ok {
			continue
		}
		known[key] = struct{}{}
		if m.From == m.To {
			s.log().Warn("skipping self-addressed message", "message_id", m.ID, "user_id", userID)
			continue
		}
		conv, err := s.resolveOrCreate(ctx, m.ListingID, m.From, m.To)
		if err != nil {
			s.log().Warn("conversation synthesis failed", "listing_id", m.ListingID, "user_id", userID, "error", err)
			continue
		}
		// recent is newest first, so m is the newest message of its thread.
		if err := s.Conversations.SetLastMessage(ctx, conv.ID, m.Text, m.CreatedAt, m.CreatedAt); err != nil {
			s.log().Warn("last message seed failed", "conversation_id", conv.ID, "error", err)
		}
		touched++
	}
	return touched
}

func dedupeByScope(convs []*domainchat.Conversation) []*domainchat.Conversation {
	best := make(map[string]*domainchat.Conversation, len(convs))
	order := make([]string, 0, len(convs))
	for _, c := range convs {
		key := c.Scope().String()
		current, ok := best[key]
		if !ok {
			order = append(order, key)
			best[key] = c
			continue
		}
		if c.LastActivity().After(current.LastActivity()) {
			best[key] = c
		}
	}
	out := make([]*domainchat.Conversation, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

func (s *Service) listingSummaries(ctx context.Context, convs []*domainchat.Conversation) map[listings.ListingID]listings.Summary {
	if s.Listings == nil || len(convs) == 0 {
		return map[listings.ListingID]listings.Summary{}
	}
	seen := map[listings.ListingID]struct{}{}
	ids := make([]listings.ListingID, 0, len(convs))
	for _, c := range convs {
		id := listings.ListingID(c.ListingID)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	out, err := s.Listings.Summaries(ctx, ids)
	if err != nil {
		s.log().Warn("listing summaries lookup failed", "error", err)
		return map[listings.ListingID]listings.Summary{}
	}
	return out
}

func (s *Service) participantSummaries(ctx context.Context, convs []*domainchat.Conversation) map[domainuser.ID]domainuser.Summary {
	if s.Users == nil || len(convs) == 0 {
		return map[domainuser.ID]domainuser.Summary{}
	}
	seen := map[domainuser.ID]struct{}{}
	ids := make([]domainuser.ID, 0, len(convs)*2)
	for _, c := range convs {
		for _, p := range c.Participants {
			id := domainuser.ID(p)
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	out, err := s.Users.Summaries(ctx, ids)
	if err != nil {
		s.log().Warn("participant summaries lookup failed", "error", err)
		return map[domainuser.ID]domainuser.Summary{}
	}
	return out
}

// Start opens (or reopens) the buyer's chat with a seller about a listing and
// returns the most recent page of messages in chronological order.
func (s *Service) Start(ctx context.Context, listingID domainchat.ListingID, buyerID, sellerID domainchat.UserID) (dto.StartChatResponse, error) {
	if err := s.ensureDependencies(); err != nil {
		return dto.StartChatResponse{}, err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	conv, err := s.resolveOrCreate(ctx, listingID, buyerID, sellerID)
	if err != nil {
		return dto.StartChatResponse{}, err
	}
	msgs, err := s.Messages.History(ctx, domainchat.HistoryQuery{Scope: conv.Scope(), Limit: startHistoryLimit})
	if err != nil {
		return dto.StartChatResponse{}, fmt.Errorf("load history: %w", err)
	}
	view := dto.MapConversation(conv, buyerID)
	convs := []*domainchat.Conversation{conv}
	view.Populate(s.listingSummaries(ctx, convs), s.participantSummaries(ctx, convs))
	return dto.StartChatResponse{Conversation: view, Messages: dto.MapMessages(msgs)}, nil
}

// participantConversation loads a conversation the requester belongs to.
func (s *Service) participantConversation(ctx context.Context, id domainchat.ConversationID, requester domainchat.UserID) (*domainchat.Conversation, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, domainchat.ErrBadRequest
	}
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(requester) {
		return nil, domainchat.ErrForbidden
	}
	return conv, nil
}

// DeleteConversation removes a conversation and every message of its thread.
func (s *Service) DeleteConversation(ctx context.Context, id domainchat.ConversationID, requester domainchat.UserID) error {
	if err := s.ensureDependencies(); err != nil {
		return err
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()

	conv, err := s.participantConversation(ctx, id, requester)
	if err != nil {
		return err
	}
	removed, err := s.Messages.DeleteScope(ctx, conv.Scope())
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := s.Conversations.Delete(ctx, conv.ID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	s.log().Info("conversation deleted", "conversation_id", conv.ID, "user_id", requester, "messages", removed)
	s.record(ctx, domainchat.NewConversationDeleted(conv, requester, removed, s.now()))
	return nil
}

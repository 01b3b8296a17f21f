package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	domainchat "marketchat/internal/domain/chat"
)

type storedMessage struct {
	msg *domainchat.Message
	seq uint64
}

// MessageRepository is an append log ordered by creation time, with insertion
// order breaking ties.
type MessageRepository struct {
	mu   sync.RWMutex
	seq  uint64
	byID map[domainchat.MessageID]*storedMessage
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byID: make(map[domainchat.MessageID]*storedMessage)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	if msg == nil || msg.ID == "" {
		return domainchat.ErrBadRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	stored := msg.Clone()
	if stored.ParticipantsKey == "" {
		stored.ParticipantsKey = domainchat.ParticipantsKey(stored.From, stored.To)
	}
	r.byID[msg.ID] = &storedMessage{msg: stored, seq: r.seq}
	return nil
}

func (r *MessageRepository) ByID(ctx context.Context, id domainchat.MessageID) (*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.byID[id]; ok {
		return s.msg.Clone(), nil
	}
	return nil, domainchat.ErrMessageNotFound
}

func (r *MessageRepository) UpdateText(ctx context.Context, id domainchat.MessageID, text string, editedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domainchat.ErrMessageNotFound
	}
	at := editedAt
	s.msg.Text = text
	s.msg.EditedAt = &at
	return nil
}

func (r *MessageRepository) Delete(ctx context.Context, id domainchat.MessageID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return domainchat.ErrMessageNotFound
	}
	delete(r.byID, id)
	return nil
}

func (r *MessageRepository) Latest(ctx context.Context, scope domainchat.Scope) (*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *storedMessage
	for _, s := range r.byID {
		if s.msg.Scope() != scope {
			continue
		}
		if latest == nil || newer(s, latest) {
			latest = s
		}
	}
	if latest == nil {
		return nil, nil
	}
	return latest.msg.Clone(), nil
}

func (r *MessageRepository) History(ctx context.Context, q domainchat.HistoryQuery) ([]*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*storedMessage, 0)
	for _, s := range r.byID {
		if s.msg.Scope() != q.Scope {
			continue
		}
		if !q.Before.IsZero() && !s.msg.CreatedAt.Before(q.Before) {
			continue
		}
		matched = append(matched, s)
	}

	sort.Slice(matched, func(i, j int) bool { return newer(matched[j], matched[i]) })
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[len(matched)-q.Limit:]
	}
	return cloneMessages(matched), nil
}

func (r *MessageRepository) RecentForUser(ctx context.Context, userID domainchat.UserID, limit int) ([]*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matched := make([]*storedMessage, 0)
	for _, s := range r.byID {
		if s.msg.From == userID || s.msg.To == userID {
			matched = append(matched, s)
		}
	}

	sort.Slice(matched, func(i, j int) bool { return newer(matched[i], matched[j]) })
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return cloneMessages(matched), nil
}

func (r *MessageRepository) DeleteScope(ctx context.Context, scope domainchat.Scope) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed int64
	for id, s := range r.byID {
		if s.msg.Scope() == scope {
			delete(r.byID, id)
			removed++
		}
	}
	return removed, nil
}

func newer(a, b *storedMessage) bool {
	if a.msg.CreatedAt.Equal(b.msg.CreatedAt) {
		return a.seq > b.seq
	}
	return a.msg.CreatedAt.After(b.msg.CreatedAt)
}

func cloneMessages(in []*storedMessage) []*domainchat.Message {
	out := make([]*domainchat.Message, 0, len(in))
	for _, s := range in {
		out = append(out, s.msg.Clone())
	}
	return out
}

var _ domainchat.MessageRepository = (*MessageRepository)(nil)

package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"just_us/internal/domain"
	apperrors "just_us/pkg/errors"
)

// memMessageRepo - MessageRepository в памяти, с тем же порядком выдачи, что и postgres.
type memMessageRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]*domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: make(map[uuid.UUID]*domain.Message)}
}

func (r *memMessageRepo) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.messages[m.ID] = &cp
	return nil
}

func (r *memMessageRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) sorted() []*domain.Message {
	out := make([]*domain.Message, 0, len(r.messages))
	for _, m := range r.messages {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (r *memMessageRepo) ListLatest(_ context.Context, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.sorted()
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func (r *memMessageRepo) ListBefore(_ context.Context, c domain.MessageCursor, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var before []*domain.Message
	for _, m := range r.sorted() {
		ts := m.Timestamp.UnixMicro()
		if ts < c.Timestamp || (ts == c.Timestamp && m.ID.String() < c.ID.String()) {
			before = append(before, m)
		}
	}
	if len(before) > limit {
		before = before[len(before)-limit:]
	}
	return before, nil
}

func (r *memMessageRepo) update(id uuid.UUID, fn func(m *domain.Message)) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, apperrors.ErrMessageNotFound
	}
	fn(m)
	cp := *m
	return &cp, nil
}

func (r *memMessageRepo) UpdateText(_ context.Context, id uuid.UUID, text string, at time.Time) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) {
		m.Message = text
		m.EditedAt = &at
	})
}

func (r *memMessageRepo) SetReaction(_ context.Context, id uuid.UUID, reaction *domain.Reaction) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) { m.Reaction = reaction })
}

func (r *memMessageRepo) SetDeleted(_ context.Context, id uuid.UUID, deleted bool, at time.Time) (*domain.Message, error) {
	return r.update(id, func(m *domain.Message) {
		m.IsDeleted = deleted
		m.UpdatedAt = &at
	})
}

func (r *memMessageRepo) MarkSeen(_ context.Context, viewerID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, m := range r.messages {
		if m.SenderID != viewerID && !m.IsSeen {
			m.IsSeen = true
			n++
		}
	}
	return n, nil
}

// memUserRepo - UserRepository в памяти. List отдает пользователей в порядке создания.
type memUserRepo struct {
	mu    sync.Mutex
	order []string
	users map[string]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.order = append(r.order, u.ID)
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Upsert(_ context.Context, u *domain.User) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.users[u.ID]
	if !ok {
		cp := *u
		r.order = append(r.order, u.ID)
		r.users[u.ID] = &cp
		return &cp, nil
	}
	existing.Username, existing.Email = u.Username, u.Email
	cp := *existing
	return &cp, nil
}

func (r *memUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) List(_ context.Context) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.User, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.users[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memUserRepo) SetTyping(_ context.Context, id string, typing bool, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.Typing = typing
	u.TypingAt = &at
	return nil
}

func (r *memUserRepo) ListTyping(_ context.Context, since time.Time) ([]*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.User
	for _, id := range r.order {
		u := r.users[id]
		if u.Typing && u.TypingAt != nil && !u.TypingAt.Before(since) {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memUserRepo) SetSubscriptions(_ context.Context, id string, sub *domain.PushSubscription, subs []domain.PushSubscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.Subscription = sub
	u.Subscriptions = subs
	return nil
}

func (r *memUserRepo) ClearSubscriptions(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.Subscriptions = nil
	return nil
}

func (r *memUserRepo) TouchLastOnline(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.LastOnlineAt = &at
	return nil
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyMessagesChanged(ctx context.Context) {
	m.Called(ctx)
}

func (m *mockNotifier) BroadcastEvent(ctx context.Context, env *domain.Envelope) {
	m.Called(ctx, env)
}

// recordingNotifier запоминает события, удобно для проверки payload.
type recordingNotifier struct {
	mu      sync.Mutex
	changes int
	events  []*domain.Envelope
}

func (n *recordingNotifier) NotifyMessagesChanged(context.Context) {
	n.mu.Lock()
	n.changes++
	n.mu.Unlock()
}

func (n *recordingNotifier) BroadcastEvent(_ context.Context, env *domain.Envelope) {
	n.mu.Lock()
	n.events = append(n.events, env)
	n.mu.Unlock()
}

func (n *recordingNotifier) eventsOf(eventType string) []*domain.Envelope {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []*domain.Envelope
	for _, e := range n.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type mockNotifications struct {
	mock.Mock
}

func (m *mockNotifications) NotifyMessage(ctx context.Context, recipient *domain.User, msg *domain.Message) error {
	return m.Called(ctx, recipient, msg).Error(0)
}

func (m *mockNotifications) NotifyReaction(ctx context.Context, recipient *domain.User, reactor domain.Actor, glyph string) error {
	return m.Called(ctx, recipient, reactor, glyph).Error(0)
}

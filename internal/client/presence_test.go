package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"just_us/internal/domain"
	"just_us/pkg/logger"
)

type fakeChecker struct {
	mu     sync.Mutex
	status *domain.StatusPayload
	err    error
	calls  int
}

func (f *fakeChecker) CheckStatus(context.Context, string) (*domain.StatusPayload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.status, f.err
}

func (f *fakeChecker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func envelope(t *testing.T, eventType string, payload interface{}) *domain.Envelope {
	t.Helper()
	env, err := domain.NewEnvelope(eventType, "", payload)
	require.NoError(t, err)
	return env
}

func TestPresenceWatcher_TypingShowsAtMostOnePeer(t *testing.T) {
	w := NewPresenceWatcher(&fakeChecker{}, "user-a", time.Hour, nil, logger.NewNop())

	handled := w.HandleEvent(envelope(t, domain.EventTyping, &domain.TypingPayload{Users: []domain.TypingUser{
		{ID: "user-a", Username: "alice"},
		{ID: "user-b", Username: "bob"},
		{ID: "user-c", Username: "carol"},
	}}))
	require.True(t, handled)
	require.NotNil(t, w.Current().Typing)
	assert.Equal(t, "bob", w.Current().Typing.Username)

	// печатает только сам пользователь
	w.HandleEvent(envelope(t, domain.EventTyping, &domain.TypingPayload{Users: []domain.TypingUser{{ID: "user-a"}}}))
	assert.Nil(t, w.Current().Typing)
}

func TestPresenceWatcher_StatusEvents(t *testing.T) {
	var changes []PeerPresence
	w := NewPresenceWatcher(&fakeChecker{}, "user-a", time.Hour, func(p PeerPresence) {
		changes = append(changes, p)
	}, logger.NewNop())

	last := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC).UnixMilli()
	assert.True(t, w.HandleEvent(envelope(t, domain.EventStatus, &domain.StatusPayload{UserID: "user-b", Online: true})))
	assert.False(t, w.HandleEvent(envelope(t, domain.EventStatus, &domain.StatusPayload{UserID: "user-a", Online: false})))
	assert.True(t, w.HandleEvent(envelope(t, domain.EventStatus, &domain.StatusPayload{UserID: "user-b", LastOnlineAt: &last})))
	assert.False(t, w.HandleEvent(envelope(t, domain.EventSnapshot, &domain.SnapshotPayload{})))

	require.Len(t, changes, 2)
	assert.True(t, changes[0].Online)
	assert.False(t, changes[1].Online)
	require.NotNil(t, changes[1].LastOnlineAt)
	assert.Equal(t, last, changes[1].LastOnlineAt.UnixMilli())
}

func TestPresenceWatcher_RunPolls(t *testing.T) {
	checker := &fakeChecker{status: &domain.StatusPayload{UserID: "user-b", Online: true}}
	w := NewPresenceWatcher(checker, "user-a", 10*time.Millisecond, nil, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool { return checker.count() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.Current().Online)
}

func TestPresenceWatcher_PollErrorKeepsState(t *testing.T) {
	checker := &fakeChecker{status: &domain.StatusPayload{UserID: "user-b", Online: true}}
	w := NewPresenceWatcher(checker, "user-a", time.Hour, nil, logger.NewNop())
	w.Poll(context.Background())

	checker.mu.Lock()
	checker.err = errors.New("stream closed")
	checker.mu.Unlock()

	w.Poll(context.Background())
	assert.True(t, w.Current().Online)
}

package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/repository"
	"just_us/pkg/logger"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

type presenceFixture struct {
	svc      *presenceService
	users    *memUserRepo
	notifier *recordingNotifier
	mr       *miniredis.Miniredis
	clock    time.Time
}

func newPresenceFixture(t *testing.T) *presenceFixture {
	t.Helper()
	mr, rdb := newTestRedis(t)
	f := &presenceFixture{
		users: newMemUserRepo(
			&domain.User{ID: alice.ID, Username: alice.Username},
			&domain.User{ID: bob.ID, Username: bob.Username},
		),
		notifier: &recordingNotifier{},
		mr:       mr,
		clock:    time.Date(2024, 2, 14, 12, 0, 0, 0, time.UTC),
	}
	cfg := config.PresenceConfig{HeartbeatTTL: 75 * time.Second, TypingTTL: 10 * time.Second}
	svc := NewPresenceService(repository.NewPresenceRepository(rdb, logger.NewNop()), f.users, f.notifier, cfg, logger.NewNop())
	f.svc = svc.(*presenceService)
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func statusPayload(t *testing.T, env *domain.Envelope) domain.StatusPayload {
	t.Helper()
	var p domain.StatusPayload
	require.NoError(t, json.Unmarshal(env.Payload, &p))
	return p
}

func TestPresenceService_ConnectAndExpire(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.Connect(ctx, alice, "conn-1"))

	status, err := f.svc.Status(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, status.Online)

	events := f.notifier.eventsOf(domain.EventStatus)
	require.Len(t, events, 1)
	assert.Equal(t, domain.StatusPayload{UserID: alice.ID, Online: true}, statusPayload(t, events[0]))

	// без heartbeat ключ истекает
	f.mr.FastForward(76 * time.Second)
	status, err = f.svc.Status(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, status.Online)

	require.NoError(t, f.svc.Heartbeat(ctx, alice.ID, "conn-1"))
	status, err = f.svc.Status(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, status.Online)
}

func TestPresenceService_DisconnectWaitsForLastConnection(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()
	// вторая вкладка подключена к другому инстансу
	require.NoError(t, f.svc.Connect(ctx, alice, "conn-1"))
	require.NoError(t, f.svc.Connect(ctx, alice, "conn-2"))

	require.NoError(t, f.svc.Disconnect(ctx, alice, "conn-1"))
	status, err := f.svc.Status(ctx, alice.ID)
	require.NoError(t, err)
	assert.True(t, status.Online)

	require.NoError(t, f.svc.SetTyping(ctx, alice, true))
	require.NoError(t, f.svc.Disconnect(ctx, alice, "conn-2"))

	status, err = f.svc.Status(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, status.Online)
	require.NotNil(t, status.LastOnlineAt)
	assert.True(t, f.clock.Equal(*status.LastOnlineAt))

	events := f.notifier.eventsOf(domain.EventStatus)
	require.Len(t, events, 3)
	offline := statusPayload(t, events[2])
	assert.False(t, offline.Online)
	require.NotNil(t, offline.LastOnlineAt)
	assert.Equal(t, f.clock.UnixMilli(), *offline.LastOnlineAt)

	// флаг набора снят при уходе
	typing, err := f.svc.TypingUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, typing)
}

func TestPresenceService_TypingBroadcastAndStaleGuard(t *testing.T) {
	f := newPresenceFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.SetTyping(ctx, bob, true))

	events := f.notifier.eventsOf(domain.EventTyping)
	require.Len(t, events, 1)
	var payload domain.TypingPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, []domain.TypingUser{{ID: bob.ID, Username: bob.Username}}, payload.Users)

	// флаг, оставленный пропавшим клиентом, перестает учитываться
	f.clock = f.clock.Add(11 * time.Second)
	typing, err := f.svc.TypingUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, typing)

	require.NoError(t, f.svc.SetTyping(ctx, bob, false))
	events = f.notifier.eventsOf(domain.EventTyping)
	require.Len(t, events, 2)
	require.NoError(t, json.Unmarshal(events[1].Payload, &payload))
	assert.Empty(t, payload.Users)
}

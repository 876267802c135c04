package service

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/metrics"
	"just_us/pkg/logger"
)

func TestMessagePushPayload(t *testing.T) {
	tests := []struct {
		name  string
		msg   *domain.Message
		title string
		body  string
	}{
		{
			name:  "text",
			msg:   &domain.Message{Username: "alice", Message: "hello there"},
			title: "New message from alice",
			body:  "hello there",
		},
		{
			name:  "image",
			msg:   &domain.Message{Username: "alice", Message: "look", Asset: &domain.Upload{SecureURL: "https://cdn/x.png"}},
			title: "alice shared an image",
			body:  "Image attached",
		},
		{
			name:  "gif",
			msg:   &domain.Message{Username: "alice", Gif: &domain.Gif{ID: "1"}},
			title: "alice sent a GIF",
			body:  "GIF",
		},
		{
			name:  "voice",
			msg:   &domain.Message{Username: "alice", Audio: &domain.Upload{SecureURL: "https://cdn/x.webm"}},
			title: "alice sent a voice message",
			body:  "Voice message",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := MessagePushPayload(tt.msg, "/icon.png")
			assert.Equal(t, tt.title, p.Title)
			assert.Equal(t, tt.body, p.Body)
			assert.Equal(t, "chat-notification", p.Tag)
			assert.Equal(t, "/chat", p.URL)
			assert.Equal(t, "/icon.png", p.Icon)
		})
	}
}

func TestReactionPushPayload(t *testing.T) {
	p := ReactionPushPayload("bob", "❤️", "")
	assert.Equal(t, "bob has reacted to your message", p.Title)
	assert.Equal(t, "❤️", p.Body)

	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"bob has reacted to your message","body":"❤️","tag":"chat-notification","url":"/chat"}`, string(raw))
}

type scriptedSender struct {
	mu       sync.Mutex
	statuses map[string]int
	sent     []string
	payloads [][]byte
}

func (s *scriptedSender) Send(_ context.Context, sub domain.PushSubscription, payload []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sub.Endpoint)
	s.payloads = append(s.payloads, payload)
	status, ok := s.statuses[sub.Endpoint]
	if !ok {
		status = http.StatusCreated
	}
	if status >= 300 {
		return status, errors.New("push failed")
	}
	return status, nil
}

var enabledPush = config.PushConfig{VAPIDPublicKey: "pub", VAPIDPrivateKey: "priv", IconURL: "/icon.png"}

func TestNotificationService_PrunesGoneSubscriptions(t *testing.T) {
	live := domain.PushSubscription{Endpoint: "https://push.example/live"}
	gone := domain.PushSubscription{Endpoint: "https://push.example/gone"}
	missing := domain.PushSubscription{Endpoint: "https://push.example/missing"}

	users := newMemUserRepo(&domain.User{
		ID:            alice.ID,
		Subscription:  &gone,
		Subscriptions: []domain.PushSubscription{live, gone, missing},
	})
	sender := &scriptedSender{statuses: map[string]int{
		gone.Endpoint:    http.StatusGone,
		missing.Endpoint: http.StatusNotFound,
	}}
	m := metrics.New()
	svc := NewNotificationService(users, sender, enabledPush, m, logger.NewNop())

	recipient, err := users.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)

	err = svc.NotifyMessage(context.Background(), recipient, &domain.Message{Username: "bob", Message: "hi"})
	require.NoError(t, err)

	// дубликат одиночной подписки не отправляется дважды
	assert.ElementsMatch(t, []string{live.Endpoint, gone.Endpoint, missing.Endpoint}, sender.sent)

	stored, err := users.GetByID(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.Subscription)
	assert.Equal(t, []domain.PushSubscription{live}, stored.Subscriptions)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.PushDeliveries.WithLabelValues(metrics.PushDelivered)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PushDeliveries.WithLabelValues(metrics.PushPruned)))

	var payload PushPayload
	require.NoError(t, json.Unmarshal(sender.payloads[0], &payload))
	assert.Equal(t, "New message from bob", payload.Title)
}

func TestNotificationService_OtherFailuresKeepSubscription(t *testing.T) {
	flaky := domain.PushSubscription{Endpoint: "https://push.example/flaky"}
	users := newMemUserRepo(&domain.User{ID: alice.ID, Subscriptions: []domain.PushSubscription{flaky}})
	sender := &scriptedSender{statuses: map[string]int{flaky.Endpoint: http.StatusInternalServerError}}
	svc := NewNotificationService(users, sender, enabledPush, metrics.New(), logger.NewNop())

	recipient, _ := users.GetByID(context.Background(), alice.ID)
	err := svc.NotifyReaction(context.Background(), recipient, bob, "👍")
	assert.Error(t, err)

	stored, _ := users.GetByID(context.Background(), alice.ID)
	assert.Equal(t, []domain.PushSubscription{flaky}, stored.Subscriptions)
}

func TestNotificationService_DisabledWithoutVAPID(t *testing.T) {
	sub := domain.PushSubscription{Endpoint: "https://push.example/1"}
	sender := &scriptedSender{}
	svc := NewNotificationService(newMemUserRepo(), sender, config.PushConfig{}, metrics.New(), logger.NewNop())

	err := svc.NotifyMessage(context.Background(), &domain.User{ID: "x", Subscription: &sub}, &domain.Message{Message: "hi"})
	require.NoError(t, err)
	assert.Empty(t, sender.sent)
}

func TestWebPushSender_DeliversEncryptedPayload(t *testing.T) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)

	// ключи браузера: P-256 ECDH и 16 байт auth secret
	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	authSecret := make([]byte, 16)
	_, err = rand.Read(authSecret)
	require.NoError(t, err)

	var gotHeaders http.Header
	var gotBody int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		buf := make([]byte, 8192)
		n, _ := r.Body.Read(buf)
		gotBody = n
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	sender := NewWebPushSender(config.PushConfig{
		VAPIDPublicKey:  publicKey,
		VAPIDPrivateKey: privateKey,
		Subscriber:      "mailto:admin@example.com",
		TTL:             60,
	})

	status, err := sender.Send(context.Background(), domain.PushSubscription{
		Endpoint: srv.URL + "/push/abc",
		Keys: domain.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(clientKey.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(authSecret),
		},
	}, []byte(`{"title":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	assert.Equal(t, "aes128gcm", gotHeaders.Get("Content-Encoding"))
	assert.Equal(t, "60", gotHeaders.Get("TTL"))
	assert.Equal(t, "high", gotHeaders.Get("Urgency"))
	assert.True(t, strings.HasPrefix(gotHeaders.Get("Authorization"), "vapid "))
	assert.Greater(t, gotBody, 0)
}

func TestWebPushSender_ReportsGone(t *testing.T) {
	privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
	require.NoError(t, err)
	clientKey, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	sender := NewWebPushSender(config.PushConfig{VAPIDPublicKey: publicKey, VAPIDPrivateKey: privateKey, Subscriber: "mailto:a@b.c", TTL: 60})
	status, err := sender.Send(context.Background(), domain.PushSubscription{
		Endpoint: srv.URL,
		Keys: domain.PushKeys{
			P256dh: base64.RawURLEncoding.EncodeToString(clientKey.PublicKey().Bytes()),
			Auth:   base64.RawURLEncoding.EncodeToString(make([]byte, 16)),
		},
	}, []byte(`{}`))
	assert.Error(t, err)
	assert.Equal(t, http.StatusGone, status)
}

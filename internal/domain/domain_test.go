package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageIsEmpty(t *testing.T) {
	tests := []struct {
		name string
		in   NewMessage
		want bool
	}{
		{"blank", NewMessage{Message: "  \n"}, true},
		{"text", NewMessage{Message: "hi"}, false},
		{"image only", NewMessage{Asset: &Upload{SecureURL: "x"}}, false},
		{"gif only", NewMessage{Gif: &Gif{ID: "1"}}, false},
		{"audio only", NewMessage{Audio: &Upload{SecureURL: "a"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.IsEmpty())
		})
	}
}

func TestCursorRoundTrip(t *testing.T) {
	m := &Message{ID: uuid.New(), Timestamp: time.Date(2024, 2, 14, 10, 0, 0, 123456000, time.UTC)}

	c, err := DecodeCursor(EncodeCursor(CursorFor(m)))
	require.NoError(t, err)
	assert.Equal(t, m.ID, c.ID)
	assert.True(t, c.Time().Equal(m.Timestamp))
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "!!!", "e30"} {
		_, err := DecodeCursor(s)
		assert.Error(t, err, s)
	}
}

func TestReactionSerializesAsNull(t *testing.T) {
	raw, err := json.Marshal(&Message{ID: uuid.New()})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"reaction":null`)
}

func TestPushTargetsDedupes(t *testing.T) {
	a := PushSubscription{Endpoint: "https://push/a"}
	b := PushSubscription{Endpoint: "https://push/b"}
	u := &User{Subscription: &a, Subscriptions: []PushSubscription{a, b, {Endpoint: ""}}}

	targets := u.PushTargets()
	require.Len(t, targets, 2)
	assert.Equal(t, a.Endpoint, targets[0].Endpoint)
	assert.Equal(t, b.Endpoint, targets[1].Endpoint)
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
}

func TestMessageKindAndSnapshot(t *testing.T) {
	m := &Message{ID: uuid.New(), SenderID: "u1", Username: "ann", Gif: &Gif{ID: "g"}}
	assert.Equal(t, MessageKindGif, m.Kind())

	s := m.Snapshot()
	assert.Equal(t, m.ID, s.ID)
	assert.Equal(t, "ann", s.Username)
	assert.Same(t, m.Gif, s.Gif)
}

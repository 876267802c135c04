package domain

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// User - запись пользователя и одновременно его presence-документ.
type User struct {
	ID            string             `json:"id"`
	Username      string             `json:"username"`
	Email         string             `json:"email"`
	Typing        bool               `json:"typing"`
	TypingAt      *time.Time         `json:"typing_at,omitempty"`
	Subscription  *PushSubscription  `json:"subscription,omitempty"`
	Subscriptions []PushSubscription `json:"subscriptions,omitempty"`
	LastOnlineAt  *time.Time         `json:"last_online_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// PushTargets возвращает все подписки без дублей: массив плюс одиночное поле.
func (u *User) PushTargets() []PushSubscription {
	seen := make(map[string]struct{}, len(u.Subscriptions)+1)
	var out []PushSubscription
	add := func(s PushSubscription) {
		if s.Endpoint == "" {
			return
		}
		fp := s.Fingerprint()
		if _, ok := seen[fp]; ok {
			return
		}
		seen[fp] = struct{}{}
		out = append(out, s)
	}
	for _, s := range u.Subscriptions {
		add(s)
	}
	if u.Subscription != nil {
		add(*u.Subscription)
	}
	return out
}

type PushSubscription struct {
	Endpoint       string   `json:"endpoint" binding:"required"`
	ExpirationTime *int64   `json:"expirationTime,omitempty"`
	Keys           PushKeys `json:"keys"`
}

type PushKeys struct {
	P256dh string `json:"p256dh"`
	Auth   string `json:"auth"`
}

// Fingerprint - стабильный ключ устройства, считается по endpoint.
func (s PushSubscription) Fingerprint() string {
	sum := blake2b.Sum256([]byte(s.Endpoint))
	return hex.EncodeToString(sum[:16])
}

type SubscriptionsView struct {
	UserID        string             `json:"user_id"`
	Subscription  *PushSubscription  `json:"subscription,omitempty"`
	Subscriptions []PushSubscription `json:"subscriptions"`
}

type Presence struct {
	UserID       string     `json:"user_id"`
	Online       bool       `json:"online"`
	LastOnlineAt *time.Time `json:"last_online_at,omitempty"`
}

type TypingUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

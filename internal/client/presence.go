package client

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"just_us/internal/domain"
	"just_us/pkg/logger"
)

const StatusPollInterval = 5 * time.Second

type StatusChecker interface {
	CheckStatus(ctx context.Context, userID string) (*domain.StatusPayload, error)
}

// PeerPresence - то, что показывается в шапке чата.
type PeerPresence struct {
	Online       bool
	LastOnlineAt *time.Time
	// Typing - не больше одного печатающего собеседника
	Typing *domain.TypingUser
}

// PresenceWatcher держит статус собеседника: опрос раз в интервал плюс события из потока.
type PresenceWatcher struct {
	checker  StatusChecker
	selfID   string
	interval time.Duration
	onChange func(PeerPresence)
	log      logger.Logger

	mu      sync.Mutex
	current PeerPresence
}

func NewPresenceWatcher(checker StatusChecker, selfID string, interval time.Duration, onChange func(PeerPresence), log logger.Logger) *PresenceWatcher {
	if interval <= 0 {
		interval = StatusPollInterval
	}
	if onChange == nil {
		onChange = func(PeerPresence) {}
	}
	return &PresenceWatcher{
		checker:  checker,
		selfID:   selfID,
		interval: interval,
		onChange: onChange,
		log:      log,
	}
}

func (w *PresenceWatcher) Current() PeerPresence {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// HandleEvent разбирает status и typing; остальные события игнорируются.
func (w *PresenceWatcher) HandleEvent(env *domain.Envelope) bool {
	switch env.Type {
	case domain.EventStatus:
		var status domain.StatusPayload
		if err := json.Unmarshal(env.Payload, &status); err != nil {
			w.log.Warn("Malformed status event", "error", err)
			return false
		}
		if status.UserID == w.selfID {
			return false
		}
		w.applyStatus(&status)
		return true

	case domain.EventTyping:
		var payload domain.TypingPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			w.log.Warn("Malformed typing event", "error", err)
			return false
		}
		var typing *domain.TypingUser
		for i := range payload.Users {
			if payload.Users[i].ID != w.selfID {
				u := payload.Users[i]
				typing = &u
				break
			}
		}
		w.update(func(p *PeerPresence) { p.Typing = typing })
		return true
	}
	return false
}

// Poll спрашивает статус один раз. Ошибки только логируются.
func (w *PresenceWatcher) Poll(ctx context.Context) {
	status, err := w.checker.CheckStatus(ctx, "")
	if err != nil {
		w.log.Warn("Failed to check peer status", "error", err)
		return
	}
	w.applyStatus(status)
}

// Run опрашивает статус сразу и затем раз в интервал, пока не отменен ctx.
func (w *PresenceWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}

func (w *PresenceWatcher) applyStatus(status *domain.StatusPayload) {
	var last *time.Time
	if status.LastOnlineAt != nil {
		t := time.UnixMilli(*status.LastOnlineAt)
		last = &t
	}
	w.update(func(p *PeerPresence) {
		p.Online = status.Online
		if last != nil {
			p.LastOnlineAt = last
		}
	})
}

func (w *PresenceWatcher) update(fn func(p *PeerPresence)) {
	w.mu.Lock()
	fn(&w.current)
	snapshot := w.current
	w.mu.Unlock()

	w.onChange(snapshot)
}

package liveview

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"just_us/internal/domain"
	"just_us/internal/state"
)

const SoundResetDelay = 500 * time.Millisecond

// SoundCue проигрывает звук отправки один раз на новое собственное сообщение.
// Первый снимок (начальная загрузка) только запоминается.
type SoundCue struct {
	selfID  string
	allowed *state.Store[bool]
	play    func()
	reset   time.Duration

	mu       sync.Mutex
	lastID   uuid.UUID
	observed bool
	armed    bool
}

func NewSoundCue(selfID string, allowed *state.Store[bool], play func(), reset time.Duration) *SoundCue {
	if reset <= 0 {
		reset = SoundResetDelay
	}
	return &SoundCue{selfID: selfID, allowed: allowed, play: play, reset: reset}
}

// Observe смотрит на очередной снимок. true - звук проигран.
func (s *SoundCue) Observe(msgs []*domain.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	newest := msgs[len(msgs)-1]

	s.mu.Lock()
	if !s.observed {
		s.observed = true
		s.lastID = newest.ID
		s.mu.Unlock()
		return false
	}
	if newest.ID == s.lastID {
		s.mu.Unlock()
		return false
	}
	s.lastID = newest.ID
	if newest.SenderID != s.selfID || s.armed {
		s.mu.Unlock()
		return false
	}
	s.armed = true
	s.mu.Unlock()

	time.AfterFunc(s.reset, func() {
		s.mu.Lock()
		s.armed = false
		s.mu.Unlock()
	})

	if !s.allowed.Get() {
		return false
	}
	s.play()
	return true
}

func (s *SoundCue) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

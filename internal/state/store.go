package state

import (
	"sync"
	"time"

	"just_us/internal/domain"
)

// Store - маленький наблюдаемый контейнер одного значения.
// Подписчики вызываются синхронно после каждого Set, без удержания блокировки.
type Store[T any] struct {
	mu     sync.RWMutex
	value  T
	nextID int
	subs   map[int]func(T)
}

func NewStore[T any](initial T) *Store[T] {
	return &Store[T]{value: initial, subs: make(map[int]func(T))}
}

func (s *Store[T]) Get() T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value
}

func (s *Store[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(v)
	}
}

// Update применяет fn к текущему значению атомарно относительно других Set/Update.
func (s *Store[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	s.value = fn(s.value)
	v := s.value
	subs := s.snapshotSubs()
	s.mu.Unlock()

	for _, sub := range subs {
		sub(v)
	}
	return v
}

// Subscribe возвращает функцию отписки.
func (s *Store[T]) Subscribe(fn func(T)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store[T]) snapshotSubs() []func(T) {
	out := make([]func(T), 0, len(s.subs))
	for _, fn := range s.subs {
		out = append(out, fn)
	}
	return out
}

// ClientState - состояние клиента, которое раньше жило в глобальных сторах.
// Передается явно туда, где нужно.
type ClientState struct {
	ReplyTarget      *Store[*domain.ReplySnapshot]
	EditTarget       *Store[*domain.Message]
	SoundAllowed     *Store[bool]
	ReminderInterval *Store[time.Duration] // 0 - напоминания выключены
}

func NewClientState(soundAllowed bool, reminder time.Duration) *ClientState {
	return &ClientState{
		ReplyTarget:      NewStore[*domain.ReplySnapshot](nil),
		EditTarget:       NewStore[*domain.Message](nil),
		SoundAllowed:     NewStore(soundAllowed),
		ReminderInterval: NewStore(reminder),
	}
}

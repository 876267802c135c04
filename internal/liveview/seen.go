package liveview

import (
	"context"
	"sync"
	"time"

	"just_us/pkg/logger"
)

const SeenRecheckInterval = 5 * time.Second

type SeenMarker interface {
	MarkSeen(ctx context.Context) (int64, error)
}

// SeenTracker отмечает сообщения собеседника просмотренными, когда самое новое из них видно.
// Периодическая перепроверка ловит пропущенные события видимости.
type SeenTracker struct {
	view     *View
	marker   SeenMarker
	selfID   string
	interval time.Duration
	log      logger.Logger

	mu       sync.Mutex
	inFlight bool
	stop     chan struct{}
	done     chan struct{}
}

func NewSeenTracker(view *View, marker SeenMarker, selfID string, interval time.Duration, log logger.Logger) *SeenTracker {
	if interval <= 0 {
		interval = SeenRecheckInterval
	}
	return &SeenTracker{
		view:     view,
		marker:   marker,
		selfID:   selfID,
		interval: interval,
		log:      log,
	}
}

// Check вызывается на любое изменение видимости. true - mark-seen был отправлен.
func (t *SeenTracker) Check(ctx context.Context) bool {
	target := t.view.NewestUnseenFrom(t.selfID)
	if target == nil || !t.view.Visible(target.ID) {
		return false
	}

	t.mu.Lock()
	if t.inFlight {
		t.mu.Unlock()
		return false
	}
	t.inFlight = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.inFlight = false
		t.mu.Unlock()
	}()

	if _, err := t.marker.MarkSeen(ctx); err != nil {
		t.log.Warn("Failed to mark messages seen", "error", err)
	}
	return true
}

func (t *SeenTracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stop != nil {
		return
	}
	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), t.interval)
				t.Check(ctx)
				cancel()
			}
		}
	}(t.stop, t.done)
}

func (t *SeenTracker) Stop() {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done = nil, nil
	t.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

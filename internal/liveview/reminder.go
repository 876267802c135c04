package liveview

import (
	"context"
	"time"

	"just_us/internal/state"
)

// Reminder периодически напоминает о непрочитанных сообщениях собеседника.
// Интервал берется из стора; 0 выключает напоминания, смена интервала перезапускает таймер.
type Reminder struct {
	view     *View
	selfID   string
	interval *state.Store[time.Duration]
	notify   func(unseen int)
}

func NewReminder(view *View, selfID string, interval *state.Store[time.Duration], notify func(unseen int)) *Reminder {
	return &Reminder{view: view, selfID: selfID, interval: interval, notify: notify}
}

// Run блокируется до отмены ctx.
func (r *Reminder) Run(ctx context.Context) {
	changed := make(chan struct{}, 1)
	unsubscribe := r.interval.Subscribe(func(time.Duration) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	for {
		var tick <-chan time.Time
		var timer *time.Timer
		if d := r.interval.Get(); d > 0 {
			timer = time.NewTimer(d)
			tick = timer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(timer)
			return
		case <-changed:
			stopTimer(timer)
		case <-tick:
			if n := r.view.UnseenCount(r.selfID); n > 0 {
				r.notify(n)
			}
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

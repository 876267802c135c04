package typing

import (
	"context"
	"sync"
	"time"

	"just_us/pkg/logger"
)

// DefaultIdle - через сколько после последнего нажатия флаг сбрасывается.
const DefaultIdle = 2 * time.Second

// Writer - то, куда пишется флаг "печатает". Реализуется client.API и client.Stream.
type Writer interface {
	SetTyping(ctx context.Context, typing bool) error
}

// Debouncer превращает поток нажатий в пару записей true/false.
type Debouncer struct {
	writer  Writer
	idle    time.Duration
	timeout time.Duration
	log     logger.Logger

	// writeMu упорядочивает записи: false таймера не обгонит медленный true.
	writeMu sync.Mutex

	mu      sync.Mutex
	timer   *time.Timer
	gen     uint64
	stopped bool
}

func NewDebouncer(writer Writer, idle time.Duration, log logger.Logger) *Debouncer {
	if idle <= 0 {
		idle = DefaultIdle
	}
	return &Debouncer{
		writer:  writer,
		idle:    idle,
		timeout: 5 * time.Second,
		log:     log,
	}
}

// Keystroke сразу пишет typing=true и переносит таймер сброса.
// Запись true делается на каждое нажатие, без подавления повторов.
// Таймер взводится только после записи true.
func (d *Debouncer) Keystroke() {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	gen := d.cancelLocked()
	d.mu.Unlock()

	d.write(true)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen || d.stopped {
		return
	}
	d.timer = time.AfterFunc(d.idle, func() { d.reset(gen) })
}

// Flush отменяет таймер и сразу пишет typing=false, например после отправки.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	d.cancelLocked()
	d.mu.Unlock()

	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	d.write(false)
}

// Stop - Flush плюс запрет дальнейших нажатий.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.Flush()
}

// reset срабатывает по таймеру; устаревшее поколение ничего не пишет.
func (d *Debouncer) reset(gen uint64) {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()

	d.mu.Lock()
	current := d.gen == gen
	if current {
		d.timer = nil
	}
	d.mu.Unlock()

	if current {
		d.write(false)
	}
}

func (d *Debouncer) cancelLocked() uint64 {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	return d.gen
}

func (d *Debouncer) write(typing bool) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.writer.SetTyping(ctx, typing); err != nil {
		d.log.Warn("Failed to write typing flag", "typing", typing, "error", err)
	}
}

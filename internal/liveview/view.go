package liveview

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"just_us/internal/domain"
	"just_us/pkg/logger"
)

const (
	// BottomThreshold - насколько близко к низу должен быть viewport, чтобы снимок прокрутил его вниз.
	BottomThreshold = 50.0
	// TopThreshold - верхний sentinel считается видимым в этой зоне.
	TopThreshold   = 1.0
	DefaultPerPage = 20
)

// OlderFetcher отдает страницу, которая заканчивается прямо перед курсором.
type OlderFetcher interface {
	Older(ctx context.Context, cursor string, limit int) (*domain.MessagePage, error)
}

// MeasureFunc возвращает высоту отрисованного сообщения.
type MeasureFunc func(m *domain.Message) float64

// Viewport - геометрия прокрутки на момент чтения.
type Viewport struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
}

func (v Viewport) NearBottom() bool {
	return v.ScrollHeight-v.ScrollTop-v.ClientHeight <= BottomThreshold
}

// View - клиентская копия живого окна плюс подгруженная история.
// Порядок сообщений всегда серверный, View его не меняет.
type View struct {
	fetcher OlderFetcher
	measure MeasureFunc
	perPage int
	log     logger.Logger

	mu           sync.Mutex
	messages     []*domain.Message
	cursor       string
	hasMore      bool
	loading      bool
	scrollTop    float64
	clientHeight float64
}

func NewView(fetcher OlderFetcher, measure MeasureFunc, perPage int, log logger.Logger) *View {
	if measure == nil {
		measure = func(*domain.Message) float64 { return 1 }
	}
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	return &View{
		fetcher: fetcher,
		measure: measure,
		perPage: perPage,
		hasMore: true,
		log:     log,
	}
}

// ApplySnapshot заменяет список целиком. Возвращает true, если viewport прокручен вниз.
func (v *View) ApplySnapshot(msgs []*domain.Message) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	wasNearBottom := v.viewportLocked().NearBottom()

	v.messages = append([]*domain.Message(nil), msgs...)
	v.cursor = ""
	if len(v.messages) > 0 {
		v.cursor = domain.EncodeCursor(domain.CursorFor(v.messages[0]))
	}
	v.hasMore = true

	if !wasNearBottom {
		v.clampLocked()
		return false
	}
	v.scrollTop = v.heightLocked() - v.clientHeight
	v.clampLocked()
	return true
}

// LoadOlder подгружает страницу перед курсором и сохраняет визуальную позицию.
// Ошибки только логируются; флаг загрузки снимается всегда.
// Страница, запрошенная от уже устаревшего курсора, отбрасывается.
func (v *View) LoadOlder(ctx context.Context) bool {
	v.mu.Lock()
	if v.loading || v.cursor == "" || !v.hasMore {
		v.mu.Unlock()
		return false
	}
	v.loading = true
	cursor := v.cursor
	v.mu.Unlock()

	page, err := v.fetcher.Older(ctx, cursor, v.perPage)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading = false

	if err != nil {
		v.log.Warn("Failed to load older messages", "error", err)
		return false
	}
	// Пока страница грузилась, снимок сдвинул окно: страница кончается перед
	// старым курсором и оставила бы дыру. Следующий вызов пойдет от нового курсора.
	if v.cursor != cursor {
		v.log.Debug("Window moved during older page load, page dropped")
		return false
	}

	known := make(map[uuid.UUID]struct{}, len(v.messages))
	for _, m := range v.messages {
		known[m.ID] = struct{}{}
	}
	fresh := make([]*domain.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		if _, dup := known[m.ID]; dup {
			continue
		}
		known[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}

	before := v.heightLocked()
	v.messages = append(fresh, v.messages...)
	v.scrollTop += v.heightLocked() - before

	v.hasMore = page.HasMore
	if page.NextCursor != "" {
		v.cursor = page.NextCursor
	} else if len(v.messages) > 0 {
		v.cursor = domain.EncodeCursor(domain.CursorFor(v.messages[0]))
	}
	return len(fresh) > 0
}

// Scroll запоминает новую позицию; true - верхний sentinel виден.
func (v *View) Scroll(top float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.scrollTop = top
	v.clampLocked()
	return v.scrollTop <= TopThreshold
}

func (v *View) Resize(clientHeight float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.clientHeight = clientHeight
	v.clampLocked()
}

func (v *View) Viewport() Viewport {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.viewportLocked()
}

func (v *View) Messages() []*domain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*domain.Message(nil), v.messages...)
}

func (v *View) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

func (v *View) Cursor() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursor
}

// Visible - пересекается ли сообщение с видимой областью.
func (v *View) Visible(id uuid.UUID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	offset := 0.0
	for _, m := range v.messages {
		h := v.measure(m)
		if m.ID == id {
			return offset+h > v.scrollTop && offset < v.scrollTop+v.clientHeight
		}
		offset += h
	}
	return false
}

// NewestUnseenFrom ищет самое новое непросмотренное сообщение собеседника.
func (v *View) NewestUnseenFrom(selfID string) *domain.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(v.messages) - 1; i >= 0; i-- {
		m := v.messages[i]
		if m.SenderID != selfID && !m.IsSeen && !m.IsDeleted {
			return m
		}
	}
	return nil
}

func (v *View) UnseenCount(selfID string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, m := range v.messages {
		if m.SenderID != selfID && !m.IsSeen && !m.IsDeleted {
			n++
		}
	}
	return n
}

func (v *View) viewportLocked() Viewport {
	return Viewport{ScrollTop: v.scrollTop, ScrollHeight: v.heightLocked(), ClientHeight: v.clientHeight}
}

func (v *View) heightLocked() float64 {
	total := 0.0
	for _, m := range v.messages {
		total += v.measure(m)
	}
	return total
}

func (v *View) clampLocked() {
	maxTop := v.heightLocked() - v.clientHeight
	if v.scrollTop > maxTop {
		v.scrollTop = maxTop
	}
	if v.scrollTop < 0 {
		v.scrollTop = 0
	}
}

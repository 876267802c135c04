package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"just_us/internal/domain"
	"just_us/internal/metrics"
	"just_us/pkg/logger"
)

const snapshotTimeout = 5 * time.Second

const (
	relayRefresh = "refresh"
	relayEvent   = "event"
)

// SnapshotSource отдает текущее живое окно сообщений.
type SnapshotSource interface {
	ListLatest(ctx context.Context, limit int) ([]*domain.Message, error)
}

// Handler обрабатывает события конкретного подключения.
type Handler interface {
	OnConnect(ctx context.Context, c *Client, connections int)
	OnEnvelope(ctx context.Context, c *Client, env *domain.Envelope)
	OnPong(ctx context.Context, c *Client)
	OnDisconnect(ctx context.Context, c *Client, remaining int)
}

type relayMessage struct {
	Origin   string           `json:"origin"`
	Kind     string           `json:"kind"`
	Envelope *domain.Envelope `json:"envelope,omitempty"`
}

// Hub держит все websocket-подключения инстанса. Любое изменение сообщений
// приводит к рассылке полного снимка живого окна всем подписчикам.
// Через redis pub/sub сигналы доходят до остальных инстансов.
type Hub struct {
	id      string
	source  SnapshotSource
	window  int
	redis   *redis.Client
	channel string
	metrics *metrics.Metrics
	log     logger.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[string]int

	// refresh и joined обслуживает только Run: снимки уходят в порядке загрузки
	refresh chan struct{}
	joined  chan *Client
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewHub(source SnapshotSource, window int, rdb *redis.Client, channel string, m *metrics.Metrics, log logger.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		id:      uuid.NewString(),
		source:  source,
		window:  window,
		redis:   rdb,
		channel: channel,
		metrics: m,
		log:     log.With("component", "hub"),
		clients: make(map[*Client]struct{}),
		users:   make(map[string]int),
		refresh: make(chan struct{}, 1),
		joined:  make(chan *Client, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Run обслуживает обновления снимков до Stop.
func (h *Hub) Run() {
	if h.redis != nil {
		go h.subscribeRedis()
	}

	for {
		select {
		case <-h.refresh:
			h.broadcastSnapshot()
		case c := <-h.joined:
			h.sendSnapshot(c)
		case <-h.ctx.Done():
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	for c := range h.clients {
		c.conn.Close()
	}
	h.mu.Unlock()
}

func (h *Hub) Context() context.Context {
	return h.ctx
}

// NotifyMessagesChanged планирует рассылку нового снимка здесь и на других инстансах.
func (h *Hub) NotifyMessagesChanged(ctx context.Context) {
	h.scheduleRefresh()
	h.publish(ctx, &relayMessage{Origin: h.id, Kind: relayRefresh})
}

// BroadcastEvent отправляет событие всем подключениям всех инстансов.
func (h *Hub) BroadcastEvent(ctx context.Context, env *domain.Envelope) {
	h.broadcastLocal(env)
	h.publish(ctx, &relayMessage{Origin: h.id, Kind: relayEvent, Envelope: env})
}

// IsConnected - есть ли у пользователя открытые подключения на этом инстансе.
func (h *Hub) IsConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.users[userID] > 0
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// welcome ставит первый снимок нового клиента в ту же очередь, что и рассылки.
// Иначе снимок, загруженный до изменения, мог бы прийти после рассылки этого изменения.
func (h *Hub) welcome(c *Client) {
	select {
	case h.joined <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) sendSnapshot(c *Client) {
	env, err := h.loadSnapshot(h.ctx)
	if err != nil {
		c.log.Error("Failed to send initial snapshot", "error", err)
		return
	}
	c.Send(env)
}

func (h *Hub) register(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[c] = struct{}{}
	h.users[c.UserID]++
	h.metrics.Connections.Inc()
	return h.users[c.UserID]
}

func (h *Hub) unregister(c *Client) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return h.users[c.UserID]
	}
	delete(h.clients, c)
	c.closeSend()
	h.metrics.Connections.Dec()

	h.users[c.UserID]--
	remaining := h.users[c.UserID]
	if remaining <= 0 {
		delete(h.users, c.UserID)
		remaining = 0
	}
	return remaining
}

// scheduleRefresh схлопывает серию сигналов в одну загрузку.
func (h *Hub) scheduleRefresh() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

func (h *Hub) loadSnapshot(ctx context.Context) (*domain.Envelope, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()

	messages, err := h.source.ListLatest(ctx, h.window)
	if err != nil {
		return nil, err
	}
	return domain.NewEnvelope(domain.EventSnapshot, "", &domain.SnapshotPayload{Messages: messages})
}

func (h *Hub) broadcastSnapshot() {
	env, err := h.loadSnapshot(h.ctx)
	if err != nil {
		// повторов нет: следующий сигнал принесет свежий снимок
		h.log.Error("Failed to load live window", "error", err)
		return
	}
	h.broadcastLocal(env)
	h.metrics.SnapshotBroadcast.Inc()
}

func (h *Hub) broadcastLocal(env *domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.log.Error("Failed to marshal event", "error", err, "type", env.Type)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.sendRaw(data) {
			// медленный клиент: закрываем соединение, read pump снимет его с учета
			h.log.Warn("Dropping slow client", "user_id", c.UserID, "conn_id", c.ID)
			c.conn.Close()
		}
	}
}

func (h *Hub) publish(ctx context.Context, msg *relayMessage) {
	if h.redis == nil {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := h.redis.Publish(ctx, h.channel, data).Err(); err != nil {
		h.log.Error("Failed to publish relay message", "error", err)
	}
}

// subscribeRedis принимает сигналы других инстансов. Свои сообщения пропускаются.
func (h *Hub) subscribeRedis() {
	pubsub := h.redis.Subscribe(h.ctx, h.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var rm relayMessage
			if err := json.Unmarshal([]byte(msg.Payload), &rm); err != nil {
				h.log.Warn("Malformed relay message", "error", err)
				continue
			}
			if rm.Origin == h.id {
				continue
			}
			switch rm.Kind {
			case relayRefresh:
				h.scheduleRefresh()
			case relayEvent:
				if rm.Envelope != nil {
					h.broadcastLocal(rm.Envelope)
				}
			}
		case <-h.ctx.Done():
			return
		}
	}
}

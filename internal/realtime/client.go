package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
	"just_us/internal/domain"
	"just_us/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 64
)

// Client - одно websocket-подключение пользователя.
type Client struct {
	ID       string
	UserID   string
	Username string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter
	log     logger.Logger

	mu     sync.Mutex
	closed bool
}

func newClient(hub *Hub, conn *websocket.Conn, userID, username string) *Client {
	id := uuid.NewString()
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		limiter:  rate.NewLimiter(rate.Limit(20), 40),
		log:      hub.log.With("conn_id", id, "user_id", userID),
	}
}

// Serve регистрирует подключение и блокируется, пока клиент не отключится.
func (h *Hub) Serve(conn *websocket.Conn, userID, username string, handler Handler) {
	c := newClient(h, conn, userID, username)
	connections := h.register(c)
	c.log.Info("Client connected", "connections", connections)

	go c.writePump()

	handler.OnConnect(h.ctx, c, connections)
	h.welcome(c)

	c.readPump(handler)
}

// Send ставит событие в очередь клиента. false - очередь переполнена или закрыта.
func (c *Client) Send(env *domain.Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		c.log.Error("Failed to marshal event", "error", err, "type", env.Type)
		return false
	}
	return c.sendRaw(data)
}

// Reply отвечает на запрос с тем же request_id.
func (c *Client) Reply(req *domain.Envelope, eventType string, payload interface{}) {
	env, err := domain.NewEnvelope(eventType, req.RequestID, payload)
	if err != nil {
		c.log.Error("Failed to build reply", "error", err)
		return
	}
	c.Send(env)
}

func (c *Client) ReplyError(req *domain.Envelope, message string) {
	c.Reply(req, domain.EventError, &domain.ErrorPayload{Error: message})
}

func (c *Client) sendRaw(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) readPump(handler Handler) {
	ctx := c.hub.ctx
	defer func() {
		remaining := c.hub.unregister(c)
		c.conn.Close()
		c.log.Info("Client disconnected", "remaining", remaining)
		handler.OnDisconnect(ctx, c, remaining)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
		handler.OnPong(ctx, c)
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Unexpected websocket close", "error", err)
			}
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
			c.ReplyError(&env, "malformed frame")
			continue
		}
		if !c.limiter.Allow() {
			c.ReplyError(&env, "rate limit exceeded")
			continue
		}

		handler.OnEnvelope(ctx, c, &env)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

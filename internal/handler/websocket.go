package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"just_us/internal/domain"
	"just_us/internal/realtime"
	"just_us/internal/service"
	"just_us/pkg/logger"
)

// WebSocketHandler поднимает подключение и обрабатывает кадры клиента:
// набор текста, запрос статуса собеседника и heartbeat.
type WebSocketHandler struct {
	hub             *realtime.Hub
	presenceService service.PresenceService
	userService     service.UserService
	upgrader        websocket.Upgrader
	log             logger.Logger
}

func NewWebSocketHandler(
	hub *realtime.Hub,
	presenceService service.PresenceService,
	userService service.UserService,
	allowedOrigins []string,
	log logger.Logger,
) *WebSocketHandler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	_, wildcard := origins["*"]

	return &WebSocketHandler{
		hub:             hub,
		presenceService: presenceService,
		userService:     userService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || wildcard {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		log: log,
	}
}

func (h *WebSocketHandler) HandleChat(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	h.hub.Serve(conn, actor.ID, actor.Username, h)
}

func actorOf(c *realtime.Client) domain.Actor {
	return domain.Actor{ID: c.UserID, Username: c.Username}
}

func (h *WebSocketHandler) OnConnect(ctx context.Context, c *realtime.Client, connections int) {
	if err := h.presenceService.Connect(ctx, actorOf(c), c.ID); err != nil {
		h.log.Error("Failed to mark user online", "error", err, "user_id", c.UserID)
	}

	users, err := h.presenceService.TypingUsers(ctx)
	if err != nil {
		h.log.Warn("Failed to load typing users", "error", err)
		return
	}
	env, err := domain.NewEnvelope(domain.EventTyping, "", &domain.TypingPayload{Users: users})
	if err == nil {
		c.Send(env)
	}
}

func (h *WebSocketHandler) OnEnvelope(ctx context.Context, c *realtime.Client, env *domain.Envelope) {
	switch env.Type {
	case domain.EventTypingSet:
		var payload domain.TypingSetPayload
		if err := decodePayload(env, &payload); err != nil {
			c.ReplyError(env, "invalid typing payload")
			return
		}
		if err := h.presenceService.SetTyping(ctx, actorOf(c), payload.Typing); err != nil {
			h.log.Error("Failed to set typing", "error", err, "user_id", c.UserID)
			c.ReplyError(env, "failed to set typing")
		}

	case domain.EventCheckStatus:
		h.replyStatus(ctx, c, env)

	case domain.EventHeartbeat:
		if err := h.presenceService.Heartbeat(ctx, c.UserID, c.ID); err != nil {
			h.log.Warn("Failed to store heartbeat", "error", err, "user_id", c.UserID)
		}
		c.Reply(env, domain.EventHeartbeat, nil)

	default:
		c.ReplyError(env, "unknown event type")
	}
}

func (h *WebSocketHandler) OnPong(ctx context.Context, c *realtime.Client) {
	if err := h.presenceService.Heartbeat(ctx, c.UserID, c.ID); err != nil {
		h.log.Warn("Failed to store heartbeat", "error", err, "user_id", c.UserID)
	}
}

// OnDisconnect: локальный счетчик не учитывает другие инстансы, считает redis.
func (h *WebSocketHandler) OnDisconnect(ctx context.Context, c *realtime.Client, _ int) {
	if err := h.presenceService.Disconnect(ctx, actorOf(c), c.ID); err != nil {
		h.log.Error("Failed to mark user offline", "error", err, "user_id", c.UserID)
	}
}

// replyStatus отвечает на check:status. Без user_id спрашивается статус собеседника.
func (h *WebSocketHandler) replyStatus(ctx context.Context, c *realtime.Client, env *domain.Envelope) {
	var req domain.StatusRequest
	if err := decodePayload(env, &req); err != nil {
		c.ReplyError(env, "invalid status request")
		return
	}

	userID := req.UserID
	if userID == "" {
		peer, err := h.userService.GetPeer(ctx, c.UserID)
		if err != nil {
			c.ReplyError(env, err.Error())
			return
		}
		userID = peer.ID
	}

	presence, err := h.presenceService.Status(ctx, userID)
	if err != nil {
		h.log.Error("Failed to check status", "error", err, "user_id", userID)
		c.ReplyError(env, "failed to check status")
		return
	}

	payload := &domain.StatusPayload{UserID: presence.UserID, Online: presence.Online}
	if presence.LastOnlineAt != nil {
		ms := presence.LastOnlineAt.UnixMilli()
		payload.LastOnlineAt = &ms
	}
	c.Reply(env, domain.EventStatus, payload)
}

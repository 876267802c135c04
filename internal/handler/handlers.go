package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"just_us/internal/config"
	"just_us/internal/domain"
	"just_us/internal/middleware"
	"just_us/internal/realtime"
	"just_us/internal/service"
	apperrors "just_us/pkg/errors"
	"just_us/pkg/logger"
)

type Handlers struct {
	Health      *HealthHandler
	Auth        *AuthHandler
	User        *UserHandler
	Message     *MessageHandler
	Media       *MediaHandler
	LinkPreview *LinkPreviewHandler
	Gif         *GifHandler
	WebSocket   *WebSocketHandler
}

func NewHandlers(services *service.Services, hub *realtime.Hub, cfg *config.Config, log logger.Logger) *Handlers {
	return &Handlers{
		Health:      NewHealthHandler(cfg),
		Auth:        NewAuthHandler(log),
		User:        NewUserHandler(services.User, services.Presence, log),
		Message:     NewMessageHandler(services.Chat, log),
		Media:       NewMediaHandler(services.Media, log),
		LinkPreview: NewLinkPreviewHandler(services.LinkPreview, log),
		Gif:         NewGifHandler(services.Gif, log),
		WebSocket:   NewWebSocketHandler(hub, services.Presence, services.User, cfg.Server.AllowedOrigins, log),
	}
}

// actorOrAbort достает пользователя, установленного middleware аутентификации.
func actorOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
	}
	return actor, ok
}

func messageIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid message ID"})
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}

// fail отдает ошибку в ErrorHandler.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": apperrors.ErrBadRequest.Error() + ": " + err.Error()})
		return false
	}
	return true
}

func decodePayload(env *domain.Envelope, dst interface{}) error {
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, dst)
}

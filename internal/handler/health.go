package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/config"
)

type HealthHandler struct {
	environment string
	liveWindow  int
}

func NewHealthHandler(cfg *config.Config) *HealthHandler {
	return &HealthHandler{
		environment: cfg.Environment,
		liveWindow:  cfg.Chat.LiveWindow,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "just-us",
	})
}

// ServerInfo возвращает клиенту параметры, зависящие от окружения
func (h *HealthHandler) ServerInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"environment": h.environment,
		"live_window": h.liveWindow,
		"api_base":    "/api/v1",
		"ws_path":     "/ws/chat",
	})
}

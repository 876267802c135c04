package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/middleware"
	"just_us/pkg/logger"
)

type AuthHandler struct {
	log logger.Logger
}

func NewAuthHandler(log logger.Logger) *AuthHandler {
	return &AuthHandler{log: log}
}

// Allowed сообщает клиенту, пропускает ли его список разрешенных адресов.
func (h *AuthHandler) Allowed(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	resp := gin.H{
		"allowed": middleware.AllowedFromContext(c),
		"user":    actor,
	}
	if !middleware.AllowedFromContext(c) {
		resp["redirect"] = "/not-allowed"
	}
	c.JSON(http.StatusOK, resp)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/domain"
	"just_us/internal/service"
	"just_us/pkg/logger"
)

type UserHandler struct {
	userService     service.UserService
	presenceService service.PresenceService
	log             logger.Logger
}

func NewUserHandler(userService service.UserService, presenceService service.PresenceService, log logger.Logger) *UserHandler {
	return &UserHandler{
		userService:     userService,
		presenceService: presenceService,
		log:             log,
	}
}

func (h *UserHandler) GetMe(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	user, err := h.userService.GetByID(c.Request.Context(), actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// GetPeer возвращает собеседника вместе с его статусом.
func (h *UserHandler) GetPeer(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	peer, err := h.userService.GetPeer(c.Request.Context(), actor.ID)
	if err != nil {
		fail(c, err)
		return
	}
	presence, err := h.presenceService.Status(c.Request.Context(), peer.ID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       peer.ID,
		"username": peer.Username,
		"typing":   peer.Typing,
		"presence": presence,
	})
}

type typingRequest struct {
	Typing *bool `json:"typing" binding:"required"`
}

func (h *UserHandler) SetTyping(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req typingRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.presenceService.SetTyping(c.Request.Context(), actor, *req.Typing); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) SavePushSubscription(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var sub domain.PushSubscription
	if !bindJSON(c, &sub) {
		return
	}

	if err := h.userService.SavePushSubscription(c.Request.Context(), actor.ID, sub); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// DeletePushSubscription: с ?endpoint= убирает одно устройство, без него - весь массив.
func (h *UserHandler) DeletePushSubscription(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	var err error
	if endpoint := c.Query("endpoint"); endpoint != "" {
		err = h.userService.RemovePushSubscription(c.Request.Context(), actor.ID, endpoint)
	} else {
		err = h.userService.ResetSubscriptions(c.Request.Context(), actor.ID)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *UserHandler) GetSubscriptions(c *gin.Context) {
	view, err := h.userService.GetSubscriptions(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/domain"
	"just_us/internal/service"
	"just_us/pkg/logger"
)

type MessageHandler struct {
	chatService service.ChatService
	log         logger.Logger
}

func NewMessageHandler(chatService service.ChatService, log logger.Logger) *MessageHandler {
	return &MessageHandler{
		chatService: chatService,
		log:         log,
	}
}

// List - живое окно: последние N сообщений по возрастанию.
func (h *MessageHandler) List(c *gin.Context) {
	messages, err := h.chatService.Latest(c.Request.Context(), queryInt(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}

	page := &domain.MessagePage{Messages: messages}
	if len(messages) > 0 {
		// has_more здесь неизвестен: клиент узнает его из первой страницы older
		page.NextCursor = domain.EncodeCursor(domain.CursorFor(messages[0]))
	}
	c.JSON(http.StatusOK, page)
}

func (h *MessageHandler) Older(c *gin.Context) {
	page, err := h.chatService.Older(c.Request.Context(), c.Query("cursor"), queryInt(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *MessageHandler) Send(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	var req domain.NewMessage
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.chatService.Send(c.Request.Context(), actor, req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *MessageHandler) Edit(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := messageIDParam(c)
	if !ok {
		return
	}
	var req domain.EditMessageRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.chatService.Edit(c.Request.Context(), actor, id, req.Message)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) Unsend(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	message, err := h.chatService.Unsend(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) UndoUnsend(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	message, err := h.chatService.UndoUnsend(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) SetReaction(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := messageIDParam(c)
	if !ok {
		return
	}
	var req domain.ReactionRequest
	if !bindJSON(c, &req) {
		return
	}

	message, err := h.chatService.SetReaction(c.Request.Context(), actor, id, req.Reaction)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) ClearReaction(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}
	id, ok := messageIDParam(c)
	if !ok {
		return
	}

	message, err := h.chatService.ClearReaction(c.Request.Context(), actor, id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (h *MessageHandler) MarkSeen(c *gin.Context) {
	actor, ok := actorOrAbort(c)
	if !ok {
		return
	}

	n, err := h.chatService.MarkSeen(c.Request.Context(), actor)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

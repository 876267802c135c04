package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/domain"
	"just_us/internal/service"
	"just_us/pkg/logger"
)

type MediaHandler struct {
	mediaService service.MediaService
	log          logger.Logger
}

func NewMediaHandler(mediaService service.MediaService, log logger.Logger) *MediaHandler {
	return &MediaHandler{
		mediaService: mediaService,
		log:          log,
	}
}

func (h *MediaHandler) UploadImage(c *gin.Context) {
	var req domain.UploadRequest
	if !bindJSON(c, &req) {
		return
	}

	upload, err := h.mediaService.UploadImage(c.Request.Context(), req.Data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}

func (h *MediaHandler) UploadAudio(c *gin.Context) {
	var req domain.UploadRequest
	if !bindJSON(c, &req) {
		return
	}

	upload, err := h.mediaService.UploadAudio(c.Request.Context(), req.Data)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, upload)
}

func (h *MediaHandler) Gallery(c *gin.Context) {
	page, err := h.mediaService.Gallery(c.Request.Context(), c.Query("cursor"), queryInt(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

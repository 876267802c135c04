package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/service"
	"just_us/pkg/logger"
)

type GifHandler struct {
	gifService service.GifService
	log        logger.Logger
}

func NewGifHandler(gifService service.GifService, log logger.Logger) *GifHandler {
	return &GifHandler{
		gifService: gifService,
		log:        log,
	}
}

func (h *GifHandler) Search(c *gin.Context) {
	page, err := h.gifService.Search(c.Request.Context(), c.Query("q"), c.Query("pos"), queryInt(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *GifHandler) Featured(c *gin.Context) {
	page, err := h.gifService.Featured(c.Request.Context(), c.Query("pos"), queryInt(c, "limit"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

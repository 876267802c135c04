package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"just_us/internal/service"
	"just_us/pkg/logger"
)

const (
	previewCacheControl  = "public, max-age=0, s-maxage=900"
	fallbackCacheControl = "public, max-age=0, s-maxage=300"
)

type LinkPreviewHandler struct {
	previewService service.LinkPreviewService
	log            logger.Logger
}

func NewLinkPreviewHandler(previewService service.LinkPreviewService, log logger.Logger) *LinkPreviewHandler {
	return &LinkPreviewHandler{
		previewService: previewService,
		log:            log,
	}
}

func (h *LinkPreviewHandler) Get(c *gin.Context) {
	preview, err := h.previewService.Preview(c.Request.Context(), c.Query("url"))
	if err != nil {
		fail(c, err)
		return
	}

	if preview.Fallback {
		c.Header("Cache-Control", fallbackCacheControl)
	} else {
		c.Header("Cache-Control", previewCacheControl)
	}
	c.JSON(http.StatusOK, preview)
}

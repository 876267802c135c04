package middleware

import (
	"github.com/gin-gonic/gin"
	"just_us/pkg/errors"
	"just_us/pkg/logger"
)

// ErrorHandler отдает последнюю ошибку из c.Errors в виде {"error": ...}.
func ErrorHandler(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		statusCode := errors.HTTPStatusFromError(err)
		if statusCode >= 500 {
			log.Error("Unhandled error", "error", err, "path", c.Request.URL.Path)
		}

		c.JSON(statusCode, gin.H{
			"error": errors.PublicMessage(err),
		})
	}
}

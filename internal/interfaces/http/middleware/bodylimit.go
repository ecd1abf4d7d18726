package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
)

// BodyLimit caps request bodies at limit bytes. A declared Content-Length
// over the cap is answered with 413 before any byte is read. Bodies of
// unknown length are wrapped so reading past the cap fails in the handler.
func BodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if declared := c.Request.ContentLength; declared > limit {
			tooLarge(c)
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		c.Next()
	}
}

func tooLarge(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponse(
		dto.ErrCodeRequestTooLarge, "Request body exceeds maximum allowed size", GetRequestID(c),
	))
}

// Package handler implements the HTTP endpoints of the webhook gateway.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/middleware"
)

func respondOK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

func respondPage(c *gin.Context, data any, total int64, limit, offset int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, limit, offset))
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponse(code, message, middleware.GetRequestID(c)))
}

func badRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// respondFailure answers with the code and status err maps to. Messages of 5xx
// answers are replaced so store details do not leak.
func respondFailure(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)

	code := dto.ErrorCode(err, errors.Is(err, appwebhook.ErrRateLimited))
	status := dto.GetHTTPStatus(code)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	respondError(c, status, code, message)
}

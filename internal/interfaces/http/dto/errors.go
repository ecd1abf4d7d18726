package dto

import (
	"errors"
	"net/http"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

// Error codes. Format: ERR_<CATEGORY>_<DESCRIPTION>
const (
	ErrCodeInternal         = "ERR_INTERNAL"
	ErrCodeStoreUnavailable = "ERR_STORE_UNAVAILABLE"

	ErrCodeBadRequest     = "ERR_BAD_REQUEST"
	ErrCodeValidation     = "ERR_VALIDATION"
	ErrCodeInvalidPayload = "ERR_INVALID_PAYLOAD"
	ErrCodeUnknownEvent   = "ERR_UNKNOWN_EVENT_TYPE"
	ErrCodeNotSupported   = "ERR_EVENT_NOT_SUPPORTED"

	ErrCodeUnauthorized     = "ERR_UNAUTHORIZED"
	ErrCodeInvalidSignature = "ERR_INVALID_SIGNATURE"
	ErrCodeForbidden        = "ERR_FORBIDDEN"
	ErrCodeTokenExpired     = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid     = "ERR_TOKEN_INVALID"

	ErrCodeNotFound       = "ERR_NOT_FOUND"
	ErrCodeUnknownSender  = "ERR_UNKNOWN_SENDER"
	ErrCodeSenderDisabled = "ERR_SENDER_DISABLED"

	ErrCodeInvalidState = "ERR_INVALID_STATE"
	ErrCodeRetryBudget  = "ERR_RETRY_BUDGET_EXHAUSTED"

	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	ErrCodeRateLimited     = "ERR_RATE_LIMITED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:         http.StatusInternalServerError,
	ErrCodeStoreUnavailable: http.StatusInternalServerError,

	ErrCodeBadRequest:     http.StatusBadRequest,
	ErrCodeValidation:     http.StatusBadRequest,
	ErrCodeInvalidPayload: http.StatusBadRequest,
	ErrCodeUnknownEvent:   http.StatusBadRequest,
	ErrCodeNotSupported:   http.StatusBadRequest,

	ErrCodeUnauthorized:     http.StatusUnauthorized,
	ErrCodeInvalidSignature: http.StatusUnauthorized,
	ErrCodeForbidden:        http.StatusForbidden,
	ErrCodeTokenExpired:     http.StatusUnauthorized,
	ErrCodeTokenInvalid:     http.StatusUnauthorized,

	ErrCodeNotFound:       http.StatusNotFound,
	ErrCodeUnknownSender:  http.StatusNotFound,
	ErrCodeSenderDisabled: http.StatusNotFound,

	ErrCodeInvalidState: http.StatusConflict,
	ErrCodeRetryBudget:  http.StatusConflict,

	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorCode picks the code for err. limited reports the intake rate limit,
// which is defined by the application layer.
func ErrorCode(err error, limited bool) string {
	switch {
	case limited:
		return ErrCodeRateLimited
	case errors.Is(err, webhook.ErrInvalidSignature):
		return ErrCodeInvalidSignature
	case errors.Is(err, webhook.ErrUnknownSender):
		return ErrCodeUnknownSender
	case errors.Is(err, webhook.ErrSenderDisabled):
		return ErrCodeSenderDisabled
	case errors.Is(err, webhook.ErrInvalidPayload):
		return ErrCodeInvalidPayload
	case errors.Is(err, webhook.ErrUnknownEventType):
		return ErrCodeUnknownEvent
	case errors.Is(err, webhook.ErrSenderNotSupported):
		return ErrCodeNotSupported
	case errors.Is(err, webhook.ErrEventNotFound), errors.Is(err, shared.ErrNotFound):
		return ErrCodeNotFound
	case errors.Is(err, webhook.ErrInvalidTransition), errors.Is(err, shared.ErrInvalidState):
		return ErrCodeInvalidState
	case errors.Is(err, webhook.ErrRetryBudgetSpent):
		return ErrCodeRetryBudget
	case errors.Is(err, shared.ErrInvalidInput):
		return ErrCodeValidation
	case errors.Is(err, webhook.ErrStore):
		return ErrCodeStoreUnavailable
	}
	return ErrCodeInternal
}

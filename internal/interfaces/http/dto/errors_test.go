package dto

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/meschain/webhook-gateway/internal/domain/shared"
	"github.com/meschain/webhook-gateway/internal/domain/webhook"
)

func TestErrorCode_Statuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"bad signature", fmt.Errorf("%w from trendyol", webhook.ErrInvalidSignature), http.StatusUnauthorized},
		{"unknown sender", webhook.ErrUnknownSender, http.StatusNotFound},
		{"disabled sender", webhook.ErrSenderDisabled, http.StatusNotFound},
		{"malformed body", fmt.Errorf("%w: not json", webhook.ErrInvalidPayload), http.StatusBadRequest},
		{"unknown event", webhook.ErrUnknownEventType, http.StatusBadRequest},
		{"sender mismatch", webhook.ErrSenderNotSupported, http.StatusBadRequest},
		{"store down", fmt.Errorf("%w: dial tcp", webhook.ErrStore), http.StatusInternalServerError},
		{"event missing", webhook.ErrEventNotFound, http.StatusNotFound},
		{"bad transition", &webhook.TransitionError{From: webhook.StatusCompleted, To: webhook.StatusQueued}, http.StatusConflict},
		{"budget spent", webhook.ErrRetryBudgetSpent, http.StatusConflict},
		{"bad query", fmt.Errorf("%w: period", shared.ErrInvalidInput), http.StatusBadRequest},
		{"anything else", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(ErrorCode(tt.err, false)))
		})
	}
}

func TestErrorCode_RateLimited(t *testing.T) {
	assert.Equal(t, ErrCodeRateLimited, ErrorCode(errors.New("rate limit exceeded"), true))
	assert.Equal(t, http.StatusTooManyRequests, GetHTTPStatus(ErrCodeRateLimited))
}

func TestGetHTTPStatus_Unknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus("ERR_SOMETHING_NEW"))
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse(ErrCodeNotFound, "webhook event not found", "req-1")
	assert.False(t, resp.Success)
	assert.Equal(t, "webhook event not found", resp.Message)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

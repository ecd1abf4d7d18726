package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
)

// DefaultMaxPayloadSize bounds a marketplace delivery (1 MiB).
const DefaultMaxPayloadSize = 1 << 20

// Ingester accepts raw deliveries
type Ingester interface {
	Ingest(ctx context.Context, in appwebhook.InboundRequest) (*appwebhook.IngestResult, error)
}

// WebhookHandler receives marketplace deliveries. The endpoint is called by
// the marketplaces and authenticates each request by its signature, not by
// bearer token.
type WebhookHandler struct {
	ingest     Ingester
	maxPayload int64
	now        func() time.Time
}

// NewWebhookHandler creates a new WebhookHandler. maxPayload <= 0 selects
// DefaultMaxPayloadSize.
func NewWebhookHandler(ingest Ingester, maxPayload int64) *WebhookHandler {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayloadSize
	}
	return &WebhookHandler{ingest: ingest, maxPayload: maxPayload, now: time.Now}
}

// WebhookAck is the data of a successful delivery
type WebhookAck struct {
	EventID   string `json:"event_id,omitempty" example:"7b0c1f3e-2d4a-4c55-9b7e-0a1b2c3d4e5f"`
	Status    string `json:"status,omitempty" example:"queued"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Receive godoc
//
//	@ID				receiveWebhook
//	@Summary		Receive a marketplace webhook
//	@Description	Verifies the sender signature, normalizes the payload and stores the event. Critical events are processed before the response.
//	@Tags			webhooks
//	@Accept			json,xml
//	@Produce		json
//	@Param			sender	path		string	true	"Marketplace"	Enums(trendyol, n11, amazon, ebay, hepsiburada, ozon, pazarama)
//	@Success		200		{object}	dto.Response
//	@Failure		400		{object}	dto.Response	"Malformed payload or unknown event type"
//	@Failure		401		{object}	dto.Response	"Invalid signature or stale timestamp"
//	@Failure		404		{object}	dto.Response	"Unknown or disabled sender"
//	@Failure		413		{object}	dto.Response	"Payload too large"
//	@Failure		429		{object}	dto.Response	"Rate limited"
//	@Failure		500		{object}	dto.Response	"Event store unavailable"
//	@Router			/webhooks/{sender} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	receivedAt := h.now()

	// The raw bytes are needed for signature verification.
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, h.maxPayload+1))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
			return
		}
		badRequest(c, "Failed to read request body")
		return
	}
	if int64(len(payload)) > h.maxPayload {
		respondError(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Payload too large")
		return
	}

	result, err := h.ingest.Ingest(c.Request.Context(), appwebhook.InboundRequest{
		Sender:     c.Param("sender"),
		Body:       payload,
		Header:     c.Request.Header,
		ReceivedAt: receivedAt,
	})
	if err != nil {
		respondFailure(c, err)
		return
	}

	ack := WebhookAck{Duplicate: result.Duplicate, Status: string(result.Status)}
	if !result.Duplicate {
		ack.EventID = result.EventID.String()
	}
	c.JSON(http.StatusOK, dto.NewMessageResponse(result.Message, ack))
}

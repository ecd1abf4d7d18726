package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appwebhook "github.com/meschain/webhook-gateway/internal/application/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/logger"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/dto"
	"github.com/meschain/webhook-gateway/internal/interfaces/http/middleware"
)

// EventAdmin is the operator view of the event log
type EventAdmin interface {
	History(ctx context.Context, q appwebhook.HistoryQuery) (*appwebhook.HistoryResult, error)
	Get(ctx context.Context, id uuid.UUID) (*appwebhook.EventDTO, error)
	Stats(ctx context.Context, period string) (*appwebhook.StatsDTO, error)
	Retry(ctx context.Context, id uuid.UUID, force bool) (*appwebhook.EventDTO, error)
}

// AdminHandler serves the operator API
type AdminHandler struct {
	admin EventAdmin
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(admin EventAdmin) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// ListEvents godoc
//
//	@ID				listWebhookEvents
//	@Summary		List webhook events
//	@Description	Event history, newest first
//	@Tags			admin
//	@Produce		json
//	@Param			sender		query		string	false	"Marketplace"
//	@Param			event_type	query		string	false	"Canonical event type"
//	@Param			status		query		string	false	"Status"	Enums(pending, rejected, queued, processing, completed, failed)
//	@Param			from		query		string	false	"RFC 3339 lower bound on received_at"
//	@Param			to			query		string	false	"RFC 3339 upper bound on received_at"
//	@Param			limit		query		int		false	"Page size"	default(100)	maximum(500)
//	@Param			offset		query		int		false	"Offset"
//	@Success		200			{object}	dto.Response{data=[]appwebhook.EventDTO}
//	@Failure		400			{object}	dto.Response
//	@Failure		401			{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/admin/events [get]
func (h *AdminHandler) ListEvents(c *gin.Context) {
	var q appwebhook.HistoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err.Error())
		return
	}

	result, err := h.admin.History(c.Request.Context(), q)
	if err != nil {
		respondFailure(c, err)
		return
	}
	respondPage(c, result.Events, result.Total, result.Limit, result.Offset)
}

// GetEvent godoc
//
//	@ID				getWebhookEvent
//	@Summary		Get a webhook event
//	@Description	One event including its canonical data
//	@Tags			admin
//	@Produce		json
//	@Param			id	path		string	true	"Event ID"	format(uuid)
//	@Success		200	{object}	dto.Response{data=appwebhook.EventDTO}
//	@Failure		400	{object}	dto.Response
//	@Failure		404	{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/admin/events/{id} [get]
func (h *AdminHandler) GetEvent(c *gin.Context) {
	id, ok := h.eventID(c)
	if !ok {
		return
	}
	event, err := h.admin.Get(c.Request.Context(), id)
	if err != nil {
		respondFailure(c, err)
		return
	}
	respondOK(c, event)
}

// Stats godoc
//
//	@ID				getWebhookStats
//	@Summary		Webhook statistics
//	@Description	Event counts per status and per sender
//	@Tags			admin
//	@Produce		json
//	@Param			period	query		string	false	"Window"	Enums(1h, 24h, 7d, 30d)	default(24h)
//	@Success		200		{object}	dto.Response{data=appwebhook.StatsDTO}
//	@Failure		400		{object}	dto.Response
//	@Security		BearerAuth
//	@Router			/admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.admin.Stats(c.Request.Context(), c.Query("period"))
	if err != nil {
		respondFailure(c, err)
		return
	}
	respondOK(c, stats)
}

// RetryEvent godoc
//
//	@ID				retryWebhookEvent
//	@Summary		Retry a failed webhook event
//	@Description	Requeues a failed event for immediate processing. force resets the attempt budget of a dead-lettered event.
//	@Tags			admin
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Event ID"	format(uuid)
//	@Param			request	body		dto.RetryRequest	false	"Retry options"
//	@Success		200		{object}	dto.Response{data=appwebhook.EventDTO}
//	@Failure		404		{object}	dto.Response
//	@Failure		409		{object}	dto.Response	"Not failed, or retry budget exhausted"
//	@Security		BearerAuth
//	@Router			/admin/events/{id}/retry [post]
func (h *AdminHandler) RetryEvent(c *gin.Context) {
	id, ok := h.eventID(c)
	if !ok {
		return
	}
	var req dto.RetryRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request body")
		return
	}

	event, err := h.admin.Retry(c.Request.Context(), id, req.Force)
	if err != nil {
		respondFailure(c, err)
		return
	}

	operator := ""
	if claims := middleware.GetJWTClaims(c); claims != nil {
		operator = claims.Subject
	}
	logger.FromContext(c.Request.Context()).Info("Webhook event requeued by operator",
		zap.String("event_id", id.String()),
		zap.String("operator", operator),
		zap.Bool("force", req.Force),
	)
	respondOK(c, event)
}

func (h *AdminHandler) eventID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid event ID")
		return uuid.Nil, false
	}
	return id, true
}

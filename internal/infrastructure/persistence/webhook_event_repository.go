package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meschain/webhook-gateway/internal/domain/webhook"
	"github.com/meschain/webhook-gateway/internal/infrastructure/persistence/models"
)

// GormWebhookEventRepository implements webhook.EventStore using GORM
type GormWebhookEventRepository struct {
	db          *gorm.DB
	now         func() time.Time
	maxAttempts int
}

// RepositoryOption configures a GormWebhookEventRepository.
type RepositoryOption func(*GormWebhookEventRepository)

// WithRepositoryClock replaces time.Now for updated_at stamps and stale detection.
func WithRepositoryClock(now func() time.Time) RepositoryOption {
	return func(r *GormWebhookEventRepository) {
		r.now = now
	}
}

// WithMaxAttempts sets the budget Requeue enforces when no reset is asked.
func WithMaxAttempts(n int) RepositoryOption {
	return func(r *GormWebhookEventRepository) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// NewGormWebhookEventRepository creates a new GORM-based event store
func NewGormWebhookEventRepository(db *gorm.DB, opts ...RepositoryOption) *GormWebhookEventRepository {
	r := &GormWebhookEventRepository{db: db, now: time.Now, maxAttempts: webhook.DefaultMaxAttempts}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithTx returns a new repository instance with the given transaction
func (r *GormWebhookEventRepository) WithTx(tx *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: tx, now: r.now, maxAttempts: r.maxAttempts}
}

func (r *GormWebhookEventRepository) clock() time.Time {
	return r.now().UTC()
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, webhook.ErrStore, err)
}

var claimableStatuses = []string{string(webhook.StatusPending), string(webhook.StatusQueued)}

// Insert persists a new event and returns its id
func (r *GormWebhookEventRepository) Insert(ctx context.Context, event *webhook.WebhookEvent) (uuid.UUID, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.UpdatedAt.IsZero() {
		event.UpdatedAt = r.clock()
	}
	model, err := models.WebhookEventModelFromDomain(event)
	if err != nil {
		return uuid.Nil, err
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, storeError("insert webhook event", err)
	}
	return event.ID, nil
}

// UpdateStatus moves an event to status. The row is only written when it
// still holds the status the transition was validated against, so two
// writers cannot both move the same event. A failed event goes back to
// queued only while it has attempts left; Requeue with a reset is the way
// out of the dead letter.
func (r *GormWebhookEventRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status webhook.Status, message string) error {
	event, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !event.Status.CanTransitionTo(status) {
		return &webhook.TransitionError{From: event.Status, To: status}
	}
	retry := event.Status == webhook.StatusFailed && status == webhook.StatusQueued
	if retry && event.AttemptCount >= r.maxAttempts {
		return webhook.ErrRetryBudgetSpent
	}

	now := r.clock()
	updates := map[string]interface{}{
		"status":           string(status),
		"response_message": message,
		"updated_at":       now,
	}
	switch status {
	case webhook.StatusCompleted, webhook.StatusFailed:
		updates["processed_at"] = now
	case webhook.StatusQueued:
		updates["process_at"] = now
	}

	query := r.db.WithContext(ctx).
		Model(&models.WebhookEventModel{}).
		Where("id = ? AND status = ?", id, string(event.Status))
	if retry {
		query = query.Where("attempt_count < ?", r.maxAttempts)
	}
	result := query.Updates(updates)
	if result.Error != nil {
		return storeError("update webhook event status", result.Error)
	}
	if result.RowsAffected == 0 {
		return &webhook.TransitionError{From: event.Status, To: status}
	}
	return nil
}

// ClaimForProcessing atomically moves a pending or queued event to processing
func (r *GormWebhookEventRepository) ClaimForProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEventModel{}).
		Where("id = ? AND status IN ?", id, claimableStatuses).
		Updates(map[string]interface{}{
			"status":        string(webhook.StatusProcessing),
			"attempt_count": gorm.Expr("attempt_count + 1"),
			"updated_at":    r.clock(),
		})
	if result.Error != nil {
		return false, storeError("claim webhook event", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// FindByExternalID returns the latest completed event for sender and externalID
func (r *GormWebhookEventRepository) FindByExternalID(ctx context.Context, sender webhook.Sender, externalID string) (*webhook.WebhookEvent, error) {
	if externalID == "" {
		return nil, nil
	}
	var model models.WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("sender = ? AND external_id = ? AND status = ?", string(sender), externalID, string(webhook.StatusCompleted)).
		Order("received_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storeError("find webhook event by external id", err)
	}
	return model.ToDomain()
}

// ListDue returns queued events whose process_at is not after now, oldest first
func (r *GormWebhookEventRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*webhook.WebhookEvent, error) {
	var rows []models.WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND (process_at IS NULL OR process_at <= ?)", string(webhook.StatusQueued), now.UTC()).
		Order("process_at ASC").
		Order("received_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storeError("list due webhook events", err)
	}
	return models.WebhookEventModelsToDomain(rows)
}

// ReclaimStale resets processing events whose updated_at is older than
// threshold. On PostgreSQL the rows are locked with SKIP LOCKED so concurrent
// reclaimers partition the work.
func (r *GormWebhookEventRepository) ReclaimStale(ctx context.Context, threshold time.Duration, maxAttempts int) ([]*webhook.WebhookEvent, error) {
	now := r.clock()
	cutoff := now.Add(-threshold)
	var reclaimed []*webhook.WebhookEvent

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Where("status = ? AND updated_at < ?", string(webhook.StatusProcessing), cutoff).
			Order("updated_at ASC")
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{
				Strength: "UPDATE",
				Options:  "SKIP LOCKED",
			})
		}

		var rows []models.WebhookEventModel
		if err := query.Find(&rows).Error; err != nil {
			return err
		}

		for i := range rows {
			event, err := rows[i].ToDomain()
			if err != nil {
				return err
			}
			if err := event.Reclaim(now, maxAttempts, now); err != nil {
				return err
			}
			result := tx.Model(&models.WebhookEventModel{}).
				Where("id = ? AND status = ?", event.ID, string(webhook.StatusProcessing)).
				Updates(map[string]interface{}{
					"status":           string(event.Status),
					"process_at":       event.ProcessAt,
					"processed_at":     event.ProcessedAt,
					"response_message": event.ResponseMessage,
					"updated_at":       now,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 1 {
				reclaimed = append(reclaimed, event)
			}
		}
		return nil
	})
	if err != nil {
		return nil, storeError("reclaim stale webhook events", err)
	}
	return reclaimed, nil
}

// ListRetryable returns failed events with attempt budget left, oldest failure first
func (r *GormWebhookEventRepository) ListRetryable(ctx context.Context, maxAttempts int, limit int) ([]*webhook.WebhookEvent, error) {
	var rows []models.WebhookEventModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND attempt_count < ?", string(webhook.StatusFailed), maxAttempts).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, storeError("list retryable webhook events", err)
	}
	return models.WebhookEventModelsToDomain(rows)
}

// Requeue moves a failed event back to queued at processAt. With
// resetAttempts the attempt budget is cleared first, which is the only way a
// dead letter re-enters the queue.
func (r *GormWebhookEventRepository) Requeue(ctx context.Context, id uuid.UUID, processAt time.Time, resetAttempts bool) error {
	event, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if event.Status != webhook.StatusFailed {
		return &webhook.TransitionError{From: event.Status, To: webhook.StatusQueued}
	}
	if !resetAttempts && event.AttemptCount >= r.maxAttempts {
		return webhook.ErrRetryBudgetSpent
	}

	now := r.clock()
	updates := map[string]interface{}{
		"status":     string(webhook.StatusQueued),
		"process_at": processAt.UTC(),
		"updated_at": now,
	}
	query := r.db.WithContext(ctx).
		Model(&models.WebhookEventModel{}).
		Where("id = ? AND status = ?", id, string(webhook.StatusFailed))
	if resetAttempts {
		updates["attempt_count"] = 0
	} else {
		query = query.Where("attempt_count < ?", r.maxAttempts)
	}

	result := query.Updates(updates)
	if result.Error != nil {
		return storeError("requeue webhook event", result.Error)
	}
	if result.RowsAffected == 0 {
		return &webhook.TransitionError{From: event.Status, To: webhook.StatusQueued}
	}
	return nil
}

// FindByID returns one event or webhook.ErrEventNotFound
func (r *GormWebhookEventRepository) FindByID(ctx context.Context, id uuid.UUID) (*webhook.WebhookEvent, error) {
	var model models.WebhookEventModel
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, webhook.ErrEventNotFound
		}
		return nil, storeError("find webhook event", err)
	}
	return model.ToDomain()
}

// History lists events matching filter, newest first, with the total match count
func (r *GormWebhookEventRepository) History(ctx context.Context, filter webhook.HistoryFilter) ([]*webhook.WebhookEvent, int64, error) {
	filter = filter.Normalize()
	query := r.db.WithContext(ctx).Model(&models.WebhookEventModel{})
	if filter.Sender != "" {
		query = query.Where("sender = ?", string(filter.Sender))
	}
	if filter.EventType != "" {
		query = query.Where("event_type = ?", string(filter.EventType))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.From != nil {
		query = query.Where("received_at >= ?", filter.From.UTC())
	}
	if filter.To != nil {
		query = query.Where("received_at <= ?", filter.To.UTC())
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, storeError("count webhook events", err)
	}

	var rows []models.WebhookEventModel
	if err := query.
		Order("received_at DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&rows).Error; err != nil {
		return nil, 0, storeError("list webhook events", err)
	}
	events, err := models.WebhookEventModelsToDomain(rows)
	if err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// Stats counts events received since the given time, by status and by sender
func (r *GormWebhookEventRepository) Stats(ctx context.Context, since time.Time) (*webhook.EventStats, error) {
	type groupCount struct {
		GroupKey string
		Count    int64
	}
	count := func(column string) ([]groupCount, error) {
		var results []groupCount
		err := r.db.WithContext(ctx).
			Model(&models.WebhookEventModel{}).
			Select(column+" AS group_key, count(*) AS count").
			Where("received_at >= ?", since.UTC()).
			Group(column).
			Scan(&results).Error
		return results, err
	}

	stats := &webhook.EventStats{
		Since:    since.UTC(),
		ByStatus: make(map[webhook.Status]int64),
		BySender: make(map[webhook.Sender]int64),
	}

	byStatus, err := count("status")
	if err != nil {
		return nil, storeError("count webhook events by status", err)
	}
	for _, row := range byStatus {
		stats.ByStatus[webhook.Status(row.GroupKey)] = row.Count
		stats.Total += row.Count
	}

	bySender, err := count("sender")
	if err != nil {
		return nil, storeError("count webhook events by sender", err)
	}
	for _, row := range bySender {
		stats.BySender[webhook.Sender(row.GroupKey)] = row.Count
	}
	return stats, nil
}

// Ensure GormWebhookEventRepository implements webhook.EventStore
var _ webhook.EventStore = (*GormWebhookEventRepository)(nil)

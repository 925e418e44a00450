package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const maxDeliveryErrorLength = 1024

// WebhookDeliveryStore records notifications by tts_notification_id so
// redeliveries of processed events are acknowledged without dispatch.
type WebhookDeliveryStore struct {
	db          *bun.DB
	repo        repository.Repository[*webhookDeliveryRecord]
	keepPayload bool
	now         func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB, keepPayload bool) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: bun db is required", nil)
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, core.WrapError(err, core.ErrorConfigInvalid, "sqlstore: invalid webhook delivery repository wiring", nil)
		}
	}
	return &WebhookDeliveryStore{
		db:          db,
		repo:        repo,
		keepPayload: keepPayload,
		now:         func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *WebhookDeliveryStore) Reserve(ctx context.Context, event core.WebhookEvent) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, core.NewError(core.ErrorInternal, "sqlstore: webhook delivery store is not configured", nil)
	}
	notificationID := strings.TrimSpace(event.NotificationID)
	if notificationID == "" {
		return webhooks.DeliveryRecord{}, false, core.NewError(core.ErrorBadInput, "sqlstore: notification id is required", nil)
	}
	now := s.now()
	record := &webhookDeliveryRecord{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		ShopID:         strings.TrimSpace(event.ShopID),
		EventType:      event.Type,
		Status:         string(webhooks.DeliveryStatusPending),
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if s.keepPayload {
		record.Payload = append([]byte(nil), event.RawBody...)
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return webhooks.DeliveryRecord{}, false, err
		}
		if _, updateErr := s.db.NewUpdate().
			Model((*webhookDeliveryRecord)(nil)).
			Set("attempts = attempts + 1").
			Set("updated_at = ?", now).
			Where("notification_id = ?", notificationID).
			Exec(ctx); updateErr != nil {
			return webhooks.DeliveryRecord{}, false, updateErr
		}
		existing, getErr := s.Get(ctx, notificationID)
		if getErr != nil {
			return webhooks.DeliveryRecord{}, false, getErr
		}
		return existing, true, nil
	}
	return webhookDeliveryToDomain(record), false, nil
}

func (s *WebhookDeliveryStore) Get(ctx context.Context, notificationID string) (webhooks.DeliveryRecord, error) {
	if s == nil || s.repo == nil {
		return webhooks.DeliveryRecord{}, core.NewError(core.ErrorInternal, "sqlstore: webhook delivery store is not configured", nil)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("notification_id", "=", strings.TrimSpace(notificationID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	if len(records) == 0 {
		return webhooks.DeliveryRecord{}, core.NewError(core.ErrorBadInput, "sqlstore: webhook delivery not found", map[string]any{
			"notification_id": notificationID,
		})
	}
	return webhookDeliveryToDomain(records[0]), nil
}

func (s *WebhookDeliveryStore) MarkProcessed(ctx context.Context, notificationID string) error {
	return s.mark(ctx, notificationID, webhooks.DeliveryStatusProcessed, "")
}

func (s *WebhookDeliveryStore) MarkFailed(ctx context.Context, notificationID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if len(message) > maxDeliveryErrorLength {
		message = message[:maxDeliveryErrorLength]
	}
	return s.mark(ctx, notificationID, webhooks.DeliveryStatusFailed, message)
}

func (s *WebhookDeliveryStore) mark(ctx context.Context, notificationID string, status webhooks.DeliveryStatus, lastError string) error {
	if s == nil || s.db == nil {
		return core.NewError(core.ErrorInternal, "sqlstore: webhook delivery store is not configured", nil)
	}
	result, err := s.db.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", string(status)).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now()).
		Where("notification_id = ?", strings.TrimSpace(notificationID)).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return core.NewError(core.ErrorBadInput, "sqlstore: webhook delivery not found", map[string]any{
			"notification_id": notificationID,
		})
	}
	return nil
}

// Prune deletes processed deliveries last touched before cutoff.
func (s *WebhookDeliveryStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, core.NewError(core.ErrorInternal, "sqlstore: webhook delivery store is not configured", nil)
	}
	result, err := s.db.NewDelete().
		Model((*webhookDeliveryRecord)(nil)).
		Where("status = ?", string(webhooks.DeliveryStatusProcessed)).
		Where("updated_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return result.RowsAffected()
}

func webhookDeliveryToDomain(record *webhookDeliveryRecord) webhooks.DeliveryRecord {
	if record == nil {
		return webhooks.DeliveryRecord{}
	}
	return webhooks.DeliveryRecord{
		NotificationID: record.NotificationID,
		ShopID:         record.ShopID,
		Type:           record.EventType,
		Status:         webhooks.DeliveryStatus(record.Status),
		Attempts:       record.Attempts,
		LastError:      record.LastError,
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
}

package webhooks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
)

type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusProcessed DeliveryStatus = "processed"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DeliveryRecord tracks one notification across redeliveries.
type DeliveryRecord struct {
	NotificationID string
	ShopID         string
	Type           int
	Status         DeliveryStatus
	Attempts       int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DeliveryLedger remembers notifications by ID. Reserve reports existed=true
// when the notification was seen before; the returned record then carries
// the stored status with Attempts already incremented.
type DeliveryLedger interface {
	Reserve(ctx context.Context, event core.WebhookEvent) (record DeliveryRecord, existed bool, err error)
	MarkProcessed(ctx context.Context, notificationID string) error
	MarkFailed(ctx context.Context, notificationID string, cause error) error
}

// MemoryDeliveryLedger is a process-local DeliveryLedger.
type MemoryDeliveryLedger struct {
	mu      sync.Mutex
	records map[string]DeliveryRecord
	now     func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		records: map[string]DeliveryRecord{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryDeliveryLedger) Reserve(_ context.Context, event core.WebhookEvent) (DeliveryRecord, bool, error) {
	id := strings.TrimSpace(event.NotificationID)
	if id == "" {
		return DeliveryRecord{}, false, core.NewError(core.ErrorBadInput, "tiktokshop: notification id is required", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if existing, ok := l.records[id]; ok {
		existing.Attempts++
		existing.UpdatedAt = now
		l.records[id] = existing
		return existing, true, nil
	}
	record := DeliveryRecord{
		NotificationID: id,
		ShopID:         event.ShopID,
		Type:           event.Type,
		Status:         DeliveryStatusPending,
		Attempts:       1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.records[id] = record
	return record, false, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, notificationID string) (DeliveryRecord, error) {
	id := strings.TrimSpace(notificationID)
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return DeliveryRecord{}, core.NewError(core.ErrorBadInput, "tiktokshop: webhook delivery not found", map[string]any{
			"notification_id": id,
		})
	}
	return record, nil
}

func (l *MemoryDeliveryLedger) MarkProcessed(_ context.Context, notificationID string) error {
	return l.mark(notificationID, DeliveryStatusProcessed, "")
}

func (l *MemoryDeliveryLedger) MarkFailed(_ context.Context, notificationID string, cause error) error {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	return l.mark(notificationID, DeliveryStatusFailed, message)
}

func (l *MemoryDeliveryLedger) mark(notificationID string, status DeliveryStatus, lastError string) error {
	id := strings.TrimSpace(notificationID)
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.records[id]
	if !ok {
		return core.NewError(core.ErrorBadInput, "tiktokshop: webhook delivery not found", map[string]any{
			"notification_id": id,
		})
	}
	record.Status = status
	record.LastError = lastError
	record.UpdatedAt = l.now()
	l.records[id] = record
	return nil
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)

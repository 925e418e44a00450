package query

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
)

type CredentialReader interface {
	Credential(ctx context.Context, tenantID string) (core.Credential, error)
}

type WebhookDeliveryReader interface {
	Get(ctx context.Context, notificationID string) (webhooks.DeliveryRecord, error)
}

type GetConnectionQuery struct {
	reader CredentialReader
}

func NewGetConnectionQuery(reader CredentialReader) *GetConnectionQuery {
	return &GetConnectionQuery{reader: reader}
}

func (q *GetConnectionQuery) Query(ctx context.Context, msg GetConnectionMessage) (ConnectionSummary, error) {
	if q == nil || q.reader == nil {
		return ConnectionSummary{}, queryDependencyError("query: credential reader is required")
	}
	credential, err := q.reader.Credential(ctx, msg.TenantID)
	if err != nil {
		return ConnectionSummary{}, err
	}
	return SummarizeCredential(credential), nil
}

type GetWebhookDeliveryQuery struct {
	reader WebhookDeliveryReader
}

func NewGetWebhookDeliveryQuery(reader WebhookDeliveryReader) *GetWebhookDeliveryQuery {
	return &GetWebhookDeliveryQuery{reader: reader}
}

func (q *GetWebhookDeliveryQuery) Query(
	ctx context.Context,
	msg GetWebhookDeliveryMessage,
) (webhooks.DeliveryRecord, error) {
	if q == nil || q.reader == nil {
		return webhooks.DeliveryRecord{}, queryDependencyError("query: webhook delivery reader is required")
	}
	return q.reader.Get(ctx, msg.NotificationID)
}

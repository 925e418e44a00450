package query

import (
	"strings"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
)

const (
	TypeGetConnection      = "tiktokshop.query.connection.get"
	TypeGetWebhookDelivery = "tiktokshop.query.webhook_delivery.get"
)

type GetConnectionMessage struct {
	TenantID string
}

func (GetConnectionMessage) Type() string { return TypeGetConnection }

func (m GetConnectionMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "is required")
	}
	return nil
}

type GetWebhookDeliveryMessage struct {
	NotificationID string
}

func (GetWebhookDeliveryMessage) Type() string { return TypeGetWebhookDelivery }

func (m GetWebhookDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.NotificationID) == "" {
		return queryValidationError("notification_id", "is required")
	}
	return nil
}

// ConnectionSummary is the token-free view of a stored credential.
type ConnectionSummary struct {
	TenantID    string            `json:"tenant_id"`
	Shop        core.ShopMetadata `json:"shop"`
	OpenID      string            `json:"open_id,omitempty"`
	SellerName  string            `json:"seller_name,omitempty"`
	Scopes      []string          `json:"scopes,omitempty"`
	ExpiresAt   time.Time         `json:"expires_at"`
	Refreshable bool              `json:"refreshable"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func SummarizeCredential(credential core.Credential) ConnectionSummary {
	return ConnectionSummary{
		TenantID:    credential.TenantID,
		Shop:        credential.Shop(),
		OpenID:      credential.OpenID,
		SellerName:  credential.SellerName,
		Scopes:      append([]string(nil), credential.Scopes...),
		ExpiresAt:   credential.AccessTokenExpiresAt,
		Refreshable: credential.CanRefresh(),
		UpdatedAt:   credential.UpdatedAt,
	}
}

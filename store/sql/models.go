package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:tiktokshop_credentials,alias:tc"`

	ID                   string     `bun:"id,pk"`
	TenantID             string     `bun:"tenant_id,notnull"`
	ShopCipher           string     `bun:"shop_cipher,notnull"`
	ShopID               string     `bun:"shop_id,notnull"`
	ShopCode             string     `bun:"shop_code,notnull"`
	ShopName             string     `bun:"shop_name,notnull"`
	ShopRegion           string     `bun:"shop_region,notnull"`
	ShopSellerType       string     `bun:"shop_seller_type,notnull"`
	AppKey               string     `bun:"app_key,notnull"`
	AppSecret            string     `bun:"app_secret,notnull"`
	AccessToken          string     `bun:"access_token,notnull"`
	RefreshToken         string     `bun:"refresh_token,notnull"`
	AccessTokenExpiresAt *time.Time `bun:"access_token_expires_at,nullzero"`
	Scopes               []string   `bun:"scopes,type:jsonb,notnull"`
	OpenID               string     `bun:"open_id,notnull"`
	SellerName           string     `bun:"seller_name,notnull"`
	EncryptionKeyID      string     `bun:"encryption_key_id,notnull"`
	Version              int64      `bun:"version,notnull"`
	CreatedAt            time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt            time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type authStateRecord struct {
	bun.BaseModel `bun:"table:tiktokshop_auth_states,alias:tas"`

	State     string    `bun:"state,pk"`
	TenantID  string    `bun:"tenant_id,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
	CreatedAt time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:tiktokshop_webhook_deliveries,alias:twd"`

	ID             string    `bun:"id,pk"`
	NotificationID string    `bun:"notification_id,notnull"`
	ShopID         string    `bun:"shop_id,notnull"`
	EventType      int       `bun:"event_type,notnull"`
	Status         string    `bun:"status,notnull"`
	Attempts       int       `bun:"attempts,notnull"`
	LastError      string    `bun:"last_error,notnull"`
	Payload        []byte    `bun:"payload"`
	CreatedAt      time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

package core

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"
)

// ShopMetadata identifies the shop a tenant authorized. The cipher scopes
// most API calls.
type ShopMetadata struct {
	Cipher     string `json:"cipher"`
	ID         string `json:"id"`
	Code       string `json:"code"`
	Name       string `json:"name"`
	Region     string `json:"region"`
	SellerType string `json:"seller_type"`
}

// Credential is the durable record of one tenant connection. There is at
// most one Credential per TenantID.
type Credential struct {
	TenantID             string
	ShopCipher           string
	ShopID               string
	ShopCode             string
	ShopName             string
	ShopRegion           string
	ShopSellerType       string
	AppKey               string
	AppSecret            string
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	Scopes               []string
	OpenID               string
	SellerName           string
	Version              int64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

func (c Credential) Shop() ShopMetadata {
	return ShopMetadata{
		Cipher:     c.ShopCipher,
		ID:         c.ShopID,
		Code:       c.ShopCode,
		Name:       c.ShopName,
		Region:     c.ShopRegion,
		SellerType: c.ShopSellerType,
	}
}

func (c *Credential) ApplyShop(shop ShopMetadata) {
	if c == nil {
		return
	}
	c.ShopCipher = strings.TrimSpace(shop.Cipher)
	c.ShopID = strings.TrimSpace(shop.ID)
	c.ShopCode = strings.TrimSpace(shop.Code)
	c.ShopName = strings.TrimSpace(shop.Name)
	c.ShopRegion = strings.TrimSpace(shop.Region)
	c.ShopSellerType = strings.TrimSpace(shop.SellerType)
}

func (c Credential) CanRefresh() bool {
	return strings.TrimSpace(c.RefreshToken) != ""
}

func (c Credential) Clone() Credential {
	out := c
	out.Scopes = append([]string(nil), c.Scopes...)
	return out
}

// TokenGrant is the normalized payload of a token exchange or refresh.
type TokenGrant struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	OpenID               string
	SellerName           string
	SellerBaseRegion     string
	UserType             int
	Scopes               []string
}

// TokenUpdate is the set of fields a refresh overwrites. It is applied as a
// single unit.
type TokenUpdate struct {
	AccessToken          string
	RefreshToken         string
	AccessTokenExpiresAt time.Time
	Scopes               []string
}

type CallbackStatus string

const (
	CallbackAuthorized        CallbackStatus = "authorized"
	CallbackAlreadyAuthorized CallbackStatus = "already_authorized"
)

// CallbackResult is returned by a completed authorization callback. Hard
// failures are reported as errors instead.
type CallbackResult struct {
	Status    CallbackStatus `json:"status"`
	TenantID  string         `json:"tenant_id"`
	OpenID    string         `json:"open_id,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
	Shop      ShopMetadata   `json:"shop"`
}

// ExchangeResult is the tagged outcome of an OAuth code exchange.
type ExchangeResult struct {
	Status     CallbackStatus
	Credential Credential
}

// Upload describes a multipart file part. Uploads are never included in the
// request signature.
type Upload struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     []byte
	Fields      map[string]string
}

// Request is the transient context of one signed call.
type Request struct {
	Method         string
	Path           string
	Query          map[string]any
	Body           any
	Upload         *Upload
	OmitShopCipher bool
	Catalog        bool
	Timeout        time.Duration
}

func (r Request) IsMultipart() bool {
	return r.Upload != nil
}

func (r Request) method() string {
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		if r.Body != nil || r.Upload != nil {
			return http.MethodPost
		}
		return http.MethodGet
	}
	return method
}

func (r Request) cloneQuery() map[string]any {
	out := make(map[string]any, len(r.Query)+4)
	for key, value := range r.Query {
		out[key] = value
	}
	return out
}

// Response is the decoded API envelope.
type Response struct {
	StatusCode int             `json:"-"`
	Header     http.Header     `json:"-"`
	Code       int             `json:"code"`
	Message    string          `json:"message"`
	RequestID  string          `json:"request_id"`
	Data       json.RawMessage `json:"data,omitempty"`
}

func (r Response) Success() bool {
	return r.Code == 0 && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r Response) Decode(target any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(r.Data, target); err != nil {
		return WrapError(err, ErrorUpstream, "tiktokshop: decode response data", map[string]any{
			"request_id": r.RequestID,
		})
	}
	return nil
}

// ResponseSummary is the flattened shape handed to presentation layers.
type ResponseSummary struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (r Response) Summary() ResponseSummary {
	return ResponseSummary{
		Success: r.Code == 0,
		Code:    r.Code,
		Message: r.Message,
		Data:    r.Data,
	}
}

// WebhookEvent is an accepted inbound notification, ready for dispatch.
type WebhookEvent struct {
	Type           int             `json:"type"`
	NotificationID string          `json:"tts_notification_id"`
	ShopID         string          `json:"shop_id"`
	Timestamp      int64           `json:"timestamp"`
	Data           json.RawMessage `json:"data,omitempty"`
	RequestID      string          `json:"-"`
	RawBody        []byte          `json:"-"`
	ReceivedAt     time.Time       `json:"-"`
}

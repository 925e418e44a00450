package command

import (
	"strings"
	"time"
)

const (
	TypeAuthorize        = "tiktokshop.command.authorize"
	TypeCompleteCallback = "tiktokshop.command.callback.complete"
	TypeRefresh          = "tiktokshop.command.refresh"
	TypeAcceptWebhook    = "tiktokshop.command.webhook.accept"
)

// AuthorizeMessage starts the consent flow for a tenant. A blank tenant
// falls back to the configured default.
type AuthorizeMessage struct {
	TenantID string
}

func (AuthorizeMessage) Type() string { return TypeAuthorize }

type CompleteCallbackMessage struct {
	Code  string
	State string
}

func (CompleteCallbackMessage) Type() string { return TypeCompleteCallback }

func (m CompleteCallbackMessage) Validate() error {
	if strings.TrimSpace(m.Code) == "" {
		return commandValidationError("code", "is required")
	}
	return nil
}

type RefreshMessage struct {
	TenantID string
}

func (RefreshMessage) Type() string { return TypeRefresh }

func (m RefreshMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "is required")
	}
	return nil
}

// AcceptWebhookMessage carries one raw delivery. Body must be the exact
// bytes received.
type AcceptWebhookMessage struct {
	Body      []byte
	Signature string
}

func (AcceptWebhookMessage) Type() string { return TypeAcceptWebhook }

func (m AcceptWebhookMessage) Validate() error {
	if strings.TrimSpace(m.Signature) == "" {
		return commandValidationError("signature", "is required")
	}
	return nil
}

type AuthorizationURL struct {
	TenantID string `json:"tenant_id"`
	URL      string `json:"url"`
}

type RefreshResult struct {
	TenantID  string    `json:"tenant_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Scopes    []string  `json:"scopes,omitempty"`
}

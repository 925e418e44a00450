package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
)

// Service is the mutating surface the commands drive.
type Service interface {
	GenerateAuthorizationURL(ctx context.Context, tenantID string) (string, error)
	HandleAuthorizationCallback(ctx context.Context, code string, state string) (core.CallbackResult, error)
	Refresh(ctx context.Context, tenantID string) (core.Credential, error)
	AcceptWebhook(ctx context.Context, body []byte, signature string) (webhooks.Result, error)
}

type AuthorizeCommand struct {
	service Service
}

func NewAuthorizeCommand(service Service) *AuthorizeCommand {
	return &AuthorizeCommand{service: service}
}

func (c *AuthorizeCommand) Execute(ctx context.Context, msg AuthorizeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: authorization service is required")
	}
	url, err := c.service.GenerateAuthorizationURL(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, AuthorizationURL{TenantID: strings.TrimSpace(msg.TenantID), URL: url})
	return nil
}

type CompleteCallbackCommand struct {
	service Service
}

func NewCompleteCallbackCommand(service Service) *CompleteCallbackCommand {
	return &CompleteCallbackCommand{service: service}
}

func (c *CompleteCallbackCommand) Execute(ctx context.Context, msg CompleteCallbackMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: callback service is required")
	}
	out, err := c.service.HandleAuthorizationCallback(ctx, msg.Code, msg.State)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RefreshCommand struct {
	service Service
}

func NewRefreshCommand(service Service) *RefreshCommand {
	return &RefreshCommand{service: service}
}

func (c *RefreshCommand) Execute(ctx context.Context, msg RefreshMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refresh service is required")
	}
	credential, err := c.service.Refresh(ctx, msg.TenantID)
	if err != nil {
		return err
	}
	storeResult(ctx, RefreshResult{
		TenantID:  credential.TenantID,
		ExpiresAt: credential.AccessTokenExpiresAt,
		Scopes:    append([]string(nil), credential.Scopes...),
	})
	return nil
}

// AcceptWebhookCommand verifies and dispatches one delivery. Rejections
// surface as errors so queue runners do not ack them.
type AcceptWebhookCommand struct {
	service Service
}

func NewAcceptWebhookCommand(service Service) *AcceptWebhookCommand {
	return &AcceptWebhookCommand{service: service}
}

func (c *AcceptWebhookCommand) Execute(ctx context.Context, msg AcceptWebhookMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: webhook service is required")
	}
	out, err := c.service.AcceptWebhook(ctx, msg.Body, msg.Signature)
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

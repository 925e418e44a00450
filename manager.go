package tiktokshop

import (
	"context"
	"net/http"
	"strings"

	"github.com/goliatone/go-tiktokshop/api"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
)

// Manager resolves tenants to ready API clients and accepts signed
// webhook deliveries.
type Manager struct {
	service   *core.Service
	processor *webhooks.Processor
	catalog   *api.CatalogCache
}

type ManagerOption func(*managerOptions)

type managerOptions struct {
	catalog    *api.CatalogCache
	catalogSet bool
	ledger     webhooks.DeliveryLedger
	burst      webhooks.BurstController
}

// WithCatalogCache replaces the cache built from Config.Cache. A nil cache
// disables catalog caching.
func WithCatalogCache(cache *api.CatalogCache) ManagerOption {
	return func(o *managerOptions) {
		o.catalog = cache
		o.catalogSet = true
	}
}

// WithDeliveryLedger records webhook deliveries so redeliveries of a
// processed notification are not dispatched twice.
func WithDeliveryLedger(ledger webhooks.DeliveryLedger) ManagerOption {
	return func(o *managerOptions) {
		o.ledger = ledger
	}
}

func WithBurstController(controller webhooks.BurstController) ManagerOption {
	return func(o *managerOptions) {
		o.burst = controller
	}
}

// New builds the core service from cfg and wraps it in a Manager.
func New(cfg Config, opts ...Option) (*Manager, error) {
	service, err := core.NewService(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return NewManager(service)
}

func NewManager(service *core.Service, opts ...ManagerOption) (*Manager, error) {
	if service == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "tiktokshop: service is required", nil)
	}
	options := managerOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	cfg := service.Config()
	catalog := options.catalog
	if !options.catalogSet {
		built, err := api.NewCatalogCacheFromConfig(cfg.Cache)
		if err != nil {
			return nil, err
		}
		catalog = built
	}

	deps := service.Dependencies()
	processor := webhooks.NewProcessor(webhooks.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Header), deps.WebhookDispatcher)
	processor.Ledger = options.ledger
	processor.Burst = options.burst
	if deps.Logger != nil {
		processor.Logger = deps.Logger
	}
	if deps.MetricsRecorder != nil {
		processor.Metrics = deps.MetricsRecorder
	}

	return &Manager{service: service, processor: processor, catalog: catalog}, nil
}

func (m *Manager) Service() *core.Service {
	if m == nil {
		return nil
	}
	return m.service
}

func (m *Manager) Webhooks() *webhooks.Processor {
	if m == nil {
		return nil
	}
	return m.processor
}

func (m *Manager) GenerateAuthorizationURL(ctx context.Context, tenantID string) (string, error) {
	if m == nil {
		return "", errNilManager()
	}
	return m.service.GenerateAuthorizationURL(ctx, tenantID)
}

// HandleAuthorizationCallback completes the consent flow. An already
// authorized shop is reported through CallbackResult.Status, not an error.
func (m *Manager) HandleAuthorizationCallback(ctx context.Context, code string, state string) (core.CallbackResult, error) {
	if m == nil {
		return core.CallbackResult{}, errNilManager()
	}
	return m.service.HandleAuthorizationCallback(ctx, code, state)
}

// Connection returns an API client bound to tenantID. Unknown tenants fail
// with ErrorCredentialNotFound.
func (m *Manager) Connection(ctx context.Context, tenantID string) (*api.Client, error) {
	if m == nil {
		return nil, errNilManager()
	}
	executor, err := m.service.Executor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return api.New(executor, api.WithCatalogCache(m.catalog, executor.TenantID())), nil
}

// Refresh renews the tenant's tokens now, regardless of expiry.
func (m *Manager) Refresh(ctx context.Context, tenantID string) (core.Credential, error) {
	if m == nil {
		return core.Credential{}, errNilManager()
	}
	return m.service.Tokens().ForceRefresh(ctx, m.tenant(tenantID), "")
}

func (m *Manager) Credential(ctx context.Context, tenantID string) (core.Credential, error) {
	if m == nil {
		return core.Credential{}, errNilManager()
	}
	return m.service.Dependencies().CredentialStore.Get(ctx, m.tenant(tenantID))
}

// VerifyAndAcceptWebhook checks signature against the raw body and, when it
// matches, dispatches the event. Rejections carry a 401 status code.
func (m *Manager) VerifyAndAcceptWebhook(ctx context.Context, body []byte, signature string) (webhooks.Result, error) {
	if m == nil {
		return webhooks.Result{StatusCode: http.StatusUnauthorized}, errNilManager()
	}
	return m.processor.AcceptSignature(ctx, body, signature)
}

func (m *Manager) AcceptWebhook(ctx context.Context, body []byte, signature string) (webhooks.Result, error) {
	return m.VerifyAndAcceptWebhook(ctx, body, signature)
}

// AcceptWebhookRequest reads the signature from the configured header.
func (m *Manager) AcceptWebhookRequest(ctx context.Context, body []byte, headers http.Header) (webhooks.Result, error) {
	if m == nil {
		return webhooks.Result{StatusCode: http.StatusUnauthorized}, errNilManager()
	}
	return m.processor.Accept(ctx, body, headers)
}

func (m *Manager) tenant(tenantID string) string {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return m.service.Config().DefaultTenant
	}
	return tenantID
}

func errNilManager() error {
	return core.NewError(core.ErrorInternal, "tiktokshop: manager is nil", nil)
}

package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	glog "github.com/goliatone/go-logger/glog"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type serviceBuilder struct {
	runtimeConfig     Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	configProvider    ConfigProvider
	optionsResolver   OptionsResolver
	httpClient        HTTPDoer
	credentialStore   CredentialStore
	authStateStore    AuthStateStore
	webhookDispatcher WebhookDispatcher
	tenantGuard       *TenantGuard
	now               func() time.Time
}

type Option func(*serviceBuilder)

func WithLogger(logger Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(b *serviceBuilder) {
		b.metricsRecorder = recorder
	}
}

func WithConfigProvider(provider ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithHTTPClient(client HTTPDoer) Option {
	return func(b *serviceBuilder) {
		b.httpClient = client
	}
}

func WithCredentialStore(store CredentialStore) Option {
	return func(b *serviceBuilder) {
		b.credentialStore = store
	}
}

func WithAuthStateStore(store AuthStateStore) Option {
	return func(b *serviceBuilder) {
		b.authStateStore = store
	}
}

func WithWebhookDispatcher(dispatcher WebhookDispatcher) Option {
	return func(b *serviceBuilder) {
		b.webhookDispatcher = dispatcher
	}
}

func WithTenantGuard(guard *TenantGuard) Option {
	return func(b *serviceBuilder) {
		b.tenantGuard = guard
	}
}

// WithClock overrides the time source used for timestamps and expiry.
func WithClock(now func() time.Time) Option {
	return func(b *serviceBuilder) {
		b.now = now
	}
}

func defaultServiceBuilder(runtime Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("tiktokshop", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		metricsRecorder: NopMetricsRecorder{},
		configProvider:  NewCfgxConfigProvider(nil),
		optionsResolver: GoOptionsResolver{},
		now:             time.Now,
	}
}

type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver layers defaults, loaded config and runtime overrides, in
// that order of precedence. Zero runtime values never override.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			ConfigLayer(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			ConfigLayer(loaded, false),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			ConfigLayer(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ConfigLayer flattens cfg into the nested map shape used by option layers.
// Unless includeZero is set, zero values are left out so they do not mask
// lower layers.
func ConfigLayer(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	setString(layer, "service_name", cfg.ServiceName, includeZero)
	setString(layer, "base_url", cfg.BaseURL, includeZero)
	setString(layer, "api_version", cfg.APIVersion, includeZero)
	setString(layer, "default_tenant", cfg.DefaultTenant, includeZero)
	setInt(layer, "timeout_seconds", cfg.TimeoutSeconds, includeZero)
	setInt(layer, "catalog_timeout_seconds", cfg.CatalogTimeoutSeconds, includeZero)
	setInt(layer, "refresh_skew_seconds", cfg.RefreshSkewSeconds, includeZero)
	if includeZero || len(cfg.AuthFailureCodes) > 0 {
		layer["auth_failure_codes"] = append([]int(nil), cfg.AuthFailureCodes...)
	}

	auth := map[string]any{}
	setString(auth, "app_key", cfg.Auth.AppKey, includeZero)
	setString(auth, "app_secret", cfg.Auth.AppSecret, includeZero)
	setString(auth, "base_url", cfg.Auth.BaseURL, includeZero)
	setString(auth, "redirect_uri", cfg.Auth.RedirectURI, includeZero)
	setInt(auth, "state_ttl_seconds", cfg.Auth.StateTTLSeconds, includeZero)
	if includeZero || len(cfg.Auth.AlreadyAuthorizedCodes) > 0 {
		auth["already_authorized_codes"] = append([]int(nil), cfg.Auth.AlreadyAuthorizedCodes...)
	}
	setSection(layer, "auth", auth)

	retry := map[string]any{}
	setInt(retry, "max_attempts", cfg.Retry.MaxAttempts, includeZero)
	setInt(retry, "delay_ms", cfg.Retry.DelayMillis, includeZero)
	setSection(layer, "retry", retry)

	webhook := map[string]any{}
	setString(webhook, "secret", cfg.Webhook.Secret, includeZero)
	setString(webhook, "header", cfg.Webhook.Header, includeZero)
	setString(webhook, "path", cfg.Webhook.Path, includeZero)
	setString(webhook, "queue", cfg.Webhook.Queue, includeZero)
	setSection(layer, "webhook", webhook)

	rateLimit := map[string]any{}
	if includeZero || cfg.RateLimit.RequestsPerSecond > 0 {
		rateLimit["requests_per_second"] = cfg.RateLimit.RequestsPerSecond
	}
	setInt(rateLimit, "burst", cfg.RateLimit.Burst, includeZero)
	setSection(layer, "rate_limit", rateLimit)

	cache := map[string]any{}
	if includeZero || cfg.Cache.Disabled {
		cache["disabled"] = cfg.Cache.Disabled
	}
	setInt(cache, "ttl_seconds", cfg.Cache.TTLSeconds, includeZero)
	setSection(layer, "cache", cache)
	return layer
}

func setString(target map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		target[key] = value
	}
}

func setInt(target map[string]any, key string, value int, includeZero bool) {
	if includeZero || value != 0 {
		target[key] = value
	}
}

func setSection(target map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		target[key] = section
	}
}

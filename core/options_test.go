package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
	err error
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, p.err
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewService_DefaultDependencies(t *testing.T) {
	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.Logger == nil || deps.LoggerProvider == nil {
		t.Fatalf("expected default logger and provider")
	}
	if deps.CredentialStore == nil || deps.AuthStateStore == nil || deps.TenantGuard == nil {
		t.Fatalf("expected in-memory defaults, got %#v", deps)
	}
	if deps.MetricsRecorder == nil {
		t.Fatalf("expected nop metrics recorder")
	}
	cfg := svc.Config()
	if cfg.ServiceName != "tiktokshop" || cfg.BaseURL != DefaultBaseURL || cfg.DefaultTenant != DefaultTenantID {
		t.Fatalf("expected default config, got %#v", cfg)
	}
	if cfg.RefreshSkew().Seconds() != 120 {
		t.Fatalf("expected 120s refresh skew, got %s", cfg.RefreshSkew())
	}
}

func TestNewService_WithOverrides(t *testing.T) {
	logger := newCaptureLogger()
	store := NewMemoryCredentialStore()
	states := NewMemoryAuthStateStore()
	guard := NewTenantGuard()
	dispatcher := WebhookDispatcherFunc(func(context.Context, WebhookEvent) error { return nil })
	resolver := &fixedOptionsResolver{cfg: func() Config {
		cfg := DefaultConfig()
		cfg.ServiceName = "resolved"
		return cfg
	}()}

	svc, err := NewService(Config{ServiceName: "runtime"},
		WithLogger(logger),
		WithLoggerProvider(stubLoggerProvider{logger: logger}),
		WithCredentialStore(store),
		WithAuthStateStore(states),
		WithTenantGuard(guard),
		WithWebhookDispatcher(dispatcher),
		WithOptionsResolver(resolver),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	deps := svc.Dependencies()
	if deps.CredentialStore != store || deps.AuthStateStore != states || deps.TenantGuard != guard {
		t.Fatalf("expected store overrides to be used")
	}
	if deps.WebhookDispatcher == nil {
		t.Fatalf("expected webhook dispatcher override")
	}
	if deps.LoggerProvider.GetLogger("tiktokshop.test") != logger {
		t.Fatalf("expected logger provider override")
	}
	if got := svc.Config().ServiceName; got != "resolved" {
		t.Fatalf("expected resolver output, got %q", got)
	}
}

func TestNewService_ConfigLayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name":   "from-config",
		"default_tenant": "config-tenant",
		"auth": map[string]any{
			"app_key":    "config-key",
			"app_secret": "config-secret",
		},
		"retry": map[string]any{"max_attempts": 5},
	}})

	runtime := Config{ServiceName: "from-runtime", Auth: AuthConfig{AppKey: "runtime-key"}}
	svc, err := NewService(runtime, WithConfigProvider(provider))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cfg := svc.Config()
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime to win, got %q", cfg.ServiceName)
	}
	if cfg.DefaultTenant != "config-tenant" {
		t.Fatalf("expected config layer value, got %q", cfg.DefaultTenant)
	}
	if cfg.Auth.AppKey != "runtime-key" || cfg.Auth.AppSecret != "config-secret" {
		t.Fatalf("expected nested layering, got %#v", cfg.Auth)
	}
	if cfg.Retry.MaxAttempts != 5 || cfg.Retry.DelayMillis != 200 {
		t.Fatalf("expected retry merge with defaults, got %#v", cfg.Retry)
	}
	if cfg.Auth.BaseURL != DefaultAuthBaseURL {
		t.Fatalf("expected default auth base url, got %q", cfg.Auth.BaseURL)
	}
}

func TestNewService_ConfigProviderErrorIsMapped(t *testing.T) {
	_, err := NewService(Config{}, WithConfigProvider(&fixedConfigProvider{err: errors.New("boom")}))
	if err == nil {
		t.Fatalf("expected config provider error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
}

func TestNewService_InvalidConfigRejected(t *testing.T) {
	_, err := NewService(Config{BaseURL: "not a url"})
	if err == nil {
		t.Fatalf("expected invalid base_url to be rejected")
	}
}

func TestConfigLayer_SkipsZeroValues(t *testing.T) {
	layer := ConfigLayer(Config{ServiceName: "svc", Cache: CacheConfig{Disabled: true}}, false)
	if layer["service_name"] != "svc" {
		t.Fatalf("expected service_name in layer")
	}
	if _, ok := layer["base_url"]; ok {
		t.Fatalf("expected empty base_url to be skipped")
	}
	if _, ok := layer["auth"]; ok {
		t.Fatalf("expected empty auth section to be skipped")
	}
	cache, ok := layer["cache"].(map[string]any)
	if !ok || cache["disabled"] != true {
		t.Fatalf("expected cache.disabled in layer, got %#v", layer["cache"])
	}

	full := ConfigLayer(DefaultConfig(), true)
	auth, ok := full["auth"].(map[string]any)
	if !ok || auth["base_url"] != DefaultAuthBaseURL {
		t.Fatalf("expected full defaults layer, got %#v", full["auth"])
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("expected defaults to be valid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Retry.MaxAttempts = -1
	cfg.DefaultTenant = ""
	err := cfg.Validate()
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if richErr.TextCode != ErrorConfigInvalid {
		t.Fatalf("expected %s, got %q", ErrorConfigInvalid, richErr.TextCode)
	}
}

func TestConfig_DurationAccessors(t *testing.T) {
	cfg := Config{}
	if cfg.Timeout().Seconds() != 30 || cfg.CatalogTimeout().Seconds() != 120 {
		t.Fatalf("expected fallback timeouts, got %s/%s", cfg.Timeout(), cfg.CatalogTimeout())
	}
	if cfg.StateTTL().Minutes() != 10 {
		t.Fatalf("expected 10 minute state ttl, got %s", cfg.StateTTL())
	}
	if cfg.RefreshSkew() != 0 || cfg.RetryDelay() != 0 {
		t.Fatalf("expected zero skew and delay")
	}
}

package core

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultBaseURL        = "https://open-api.tiktokglobalshop.com"
	DefaultAuthBaseURL    = "https://auth.tiktok-shops.com"
	DefaultRedirectURI    = "http://localhost/tiktok/callback"
	DefaultAPIVersion     = "202309"
	DefaultTenantID       = "default"
	DefaultWebhookHeader  = "X-Tt-Signature"
	DefaultWebhookPath    = "/webhooks/tiktok-shop"
	DefaultWebhookQueue   = "tiktok-webhooks"
	AccessTokenHeader     = "x-tts-access-token"
	RequestIDHeader       = "X-Request-Id"
	DefaultStateTTL       = 10 * time.Minute
	defaultTokenExpiresIn = 7200
)

type AuthConfig struct {
	AppKey                 string `koanf:"app_key" mapstructure:"app_key" yaml:"app_key"`
	AppSecret              string `koanf:"app_secret" mapstructure:"app_secret" yaml:"app_secret"`
	BaseURL                string `koanf:"base_url" mapstructure:"base_url" yaml:"base_url"`
	RedirectURI            string `koanf:"redirect_uri" mapstructure:"redirect_uri" yaml:"redirect_uri"`
	StateTTLSeconds        int    `koanf:"state_ttl_seconds" mapstructure:"state_ttl_seconds" yaml:"state_ttl_seconds"`
	AlreadyAuthorizedCodes []int  `koanf:"already_authorized_codes" mapstructure:"already_authorized_codes" yaml:"already_authorized_codes"`
}

type RetryConfig struct {
	MaxAttempts int `koanf:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`
	DelayMillis int `koanf:"delay_ms" mapstructure:"delay_ms" yaml:"delay_ms"`
}

type WebhookConfig struct {
	Secret string `koanf:"secret" mapstructure:"secret" yaml:"secret"`
	Header string `koanf:"header" mapstructure:"header" yaml:"header"`
	Path   string `koanf:"path" mapstructure:"path" yaml:"path"`
	Queue  string `koanf:"queue" mapstructure:"queue" yaml:"queue"`
}

// RateLimitConfig throttles outbound API calls per process. A zero rate
// disables the limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `koanf:"requests_per_second" mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `koanf:"burst" mapstructure:"burst" yaml:"burst"`
}

// CacheConfig controls catalog lookups caching. Caching is on unless
// Disabled is set.
type CacheConfig struct {
	Disabled   bool `koanf:"disabled" mapstructure:"disabled" yaml:"disabled"`
	TTLSeconds int  `koanf:"ttl_seconds" mapstructure:"ttl_seconds" yaml:"ttl_seconds"`
}

type Config struct {
	ServiceName           string          `koanf:"service_name" mapstructure:"service_name" yaml:"service_name"`
	BaseURL               string          `koanf:"base_url" mapstructure:"base_url" yaml:"base_url"`
	APIVersion            string          `koanf:"api_version" mapstructure:"api_version" yaml:"api_version"`
	DefaultTenant         string          `koanf:"default_tenant" mapstructure:"default_tenant" yaml:"default_tenant"`
	TimeoutSeconds        int             `koanf:"timeout_seconds" mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	CatalogTimeoutSeconds int             `koanf:"catalog_timeout_seconds" mapstructure:"catalog_timeout_seconds" yaml:"catalog_timeout_seconds"`
	RefreshSkewSeconds    int             `koanf:"refresh_skew_seconds" mapstructure:"refresh_skew_seconds" yaml:"refresh_skew_seconds"`
	AuthFailureCodes      []int           `koanf:"auth_failure_codes" mapstructure:"auth_failure_codes" yaml:"auth_failure_codes"`
	Auth                  AuthConfig      `koanf:"auth" mapstructure:"auth" yaml:"auth"`
	Retry                 RetryConfig     `koanf:"retry" mapstructure:"retry" yaml:"retry"`
	Webhook               WebhookConfig   `koanf:"webhook" mapstructure:"webhook" yaml:"webhook"`
	RateLimit             RateLimitConfig `koanf:"rate_limit" mapstructure:"rate_limit" yaml:"rate_limit"`
	Cache                 CacheConfig     `koanf:"cache" mapstructure:"cache" yaml:"cache"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:           "tiktokshop",
		BaseURL:               DefaultBaseURL,
		APIVersion:            DefaultAPIVersion,
		DefaultTenant:         DefaultTenantID,
		TimeoutSeconds:        30,
		CatalogTimeoutSeconds: 120,
		RefreshSkewSeconds:    120,
		AuthFailureCodes:      []int{105001, 105002},
		Auth: AuthConfig{
			BaseURL:                DefaultAuthBaseURL,
			RedirectURI:            DefaultRedirectURI,
			StateTTLSeconds:        int(DefaultStateTTL / time.Second),
			AlreadyAuthorizedCodes: []int{36004004},
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			DelayMillis: 200,
		},
		Webhook: WebhookConfig{
			Header: DefaultWebhookHeader,
			Path:   DefaultWebhookPath,
			Queue:  DefaultWebhookQueue,
		},
		Cache: CacheConfig{
			TTLSeconds: 3600,
		},
	}
}

func (c Config) Validate() error {
	var fieldErrors []goerrors.FieldError
	if strings.TrimSpace(c.ServiceName) == "" {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "service_name", Message: "is required"})
	}
	if !isAbsoluteURL(c.BaseURL) {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "base_url", Message: "must be an absolute url"})
	}
	if !isAbsoluteURL(c.Auth.BaseURL) {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "auth.base_url", Message: "must be an absolute url"})
	}
	if strings.TrimSpace(c.APIVersion) == "" {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "api_version", Message: "is required"})
	}
	if strings.TrimSpace(c.DefaultTenant) == "" {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "default_tenant", Message: "is required"})
	}
	if c.TimeoutSeconds < 0 || c.CatalogTimeoutSeconds < 0 || c.RefreshSkewSeconds < 0 {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "timeouts", Message: "must not be negative"})
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.DelayMillis < 0 {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "retry", Message: "must not be negative"})
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		fieldErrors = append(fieldErrors, goerrors.FieldError{Field: "rate_limit", Message: "must not be negative"})
	}
	if len(fieldErrors) == 0 {
		return nil
	}
	return goerrors.NewValidation("tiktokshop: invalid configuration", fieldErrors...).
		WithCode(http.StatusBadRequest).
		WithTextCode(ErrorConfigInvalid).
		WithSeverity(goerrors.SeverityError)
}

func (c Config) Timeout() time.Duration {
	return secondsOr(c.TimeoutSeconds, 30)
}

func (c Config) CatalogTimeout() time.Duration {
	return secondsOr(c.CatalogTimeoutSeconds, 120)
}

func (c Config) RefreshSkew() time.Duration {
	if c.RefreshSkewSeconds <= 0 {
		return 0
	}
	return time.Duration(c.RefreshSkewSeconds) * time.Second
}

func (c Config) StateTTL() time.Duration {
	return secondsOr(c.Auth.StateTTLSeconds, int(DefaultStateTTL/time.Second))
}

func (c Config) RetryDelay() time.Duration {
	if c.Retry.DelayMillis <= 0 {
		return 0
	}
	return time.Duration(c.Retry.DelayMillis) * time.Millisecond
}

func (c Config) CacheTTL() time.Duration {
	return secondsOr(c.Cache.TTLSeconds, 3600)
}

func secondsOr(value int, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}

func isAbsoluteURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return parsed.Scheme != "" && parsed.Host != ""
}

package core

import (
	"context"
	"net/http"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// Service wires the credential lifecycle, the authorization flow and the
// per-tenant executors.
type Service struct {
	config            Config
	logger            Logger
	loggerProvider    LoggerProvider
	metricsRecorder   MetricsRecorder
	credentialStore   CredentialStore
	authStateStore    AuthStateStore
	webhookDispatcher WebhookDispatcher
	guard             *TenantGuard
	client            *signedClient
	tokens            *TokenManager
	authorization     *AuthorizationService
	now               func() time.Time
}

type ServiceDependencies struct {
	Logger            Logger
	LoggerProvider    LoggerProvider
	MetricsRecorder   MetricsRecorder
	CredentialStore   CredentialStore
	AuthStateStore    AuthStateStore
	WebhookDispatcher WebhookDispatcher
	TenantGuard       *TenantGuard
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("tiktokshop", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("tiktokshop"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.credentialStore == nil {
		builder.credentialStore = NewMemoryCredentialStore()
	}
	if builder.authStateStore == nil {
		builder.authStateStore = NewMemoryAuthStateStore()
	}
	if builder.tenantGuard == nil {
		builder.tenantGuard = NewTenantGuard()
	}
	if builder.httpClient == nil {
		builder.httpClient = &http.Client{}
	}
	if builder.now == nil {
		builder.now = time.Now
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, MapError(err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, MapError(err)
	}

	obs := observer{logger: logger, metrics: builder.metricsRecorder}
	transport := newHTTPTransport(builder.httpClient)
	client := newSignedClient(finalConfig, transport, newRateLimiter(finalConfig.RateLimit), builder.now)
	tokens := &TokenManager{
		cfg:       finalConfig,
		store:     builder.credentialStore,
		transport: transport,
		client:    client,
		guard:     builder.tenantGuard,
		now:       builder.now,
		observer:  obs,
	}

	return &Service{
		config:            finalConfig,
		logger:            logger,
		loggerProvider:    provider,
		metricsRecorder:   builder.metricsRecorder,
		credentialStore:   builder.credentialStore,
		authStateStore:    builder.authStateStore,
		webhookDispatcher: builder.webhookDispatcher,
		guard:             builder.tenantGuard,
		client:            client,
		tokens:            tokens,
		authorization: &AuthorizationService{
			cfg:      finalConfig,
			states:   builder.authStateStore,
			tokens:   tokens,
			observer: obs,
		},
		now: builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		MetricsRecorder:   s.metricsRecorder,
		CredentialStore:   s.credentialStore,
		AuthStateStore:    s.authStateStore,
		WebhookDispatcher: s.webhookDispatcher,
		TenantGuard:       s.guard,
	}
}

func (s *Service) Tokens() *TokenManager {
	if s == nil {
		return nil
	}
	return s.tokens
}

func (s *Service) Authorization() *AuthorizationService {
	if s == nil {
		return nil
	}
	return s.authorization
}

func (s *Service) GenerateAuthorizationURL(ctx context.Context, tenantID string) (string, error) {
	if s == nil {
		return "", NewError(ErrorInternal, "tiktokshop: service is nil", nil)
	}
	return s.authorization.GenerateAuthorizationURL(ctx, tenantID)
}

func (s *Service) HandleAuthorizationCallback(ctx context.Context, code string, state string) (CallbackResult, error) {
	if s == nil {
		return CallbackResult{}, NewError(ErrorInternal, "tiktokshop: service is nil", nil)
	}
	return s.authorization.HandleAuthorizationCallback(ctx, code, state)
}

// Executor resolves the tenant credential and returns an executor scoped to
// it. Unknown tenants fail with ErrorCredentialNotFound.
func (s *Service) Executor(ctx context.Context, tenantID string) (*Executor, error) {
	if s == nil {
		return nil, NewError(ErrorInternal, "tiktokshop: service is nil", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = s.config.DefaultTenant
	}
	if _, err := s.credentialStore.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	return &Executor{
		tenantID: tenantID,
		cfg:      s.config,
		tokens:   s.tokens,
		client:   s.client,
		observer: observer{logger: s.logger, metrics: s.metricsRecorder},
	}, nil
}

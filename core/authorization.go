package core

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// AuthorizationService drives the consent redirect and the callback that
// completes it.
type AuthorizationService struct {
	cfg      Config
	states   AuthStateStore
	tokens   *TokenManager
	observer observer
}

// GenerateAuthorizationURL creates a state nonce bound to tenantID and
// returns the consent URL. A blank tenant maps to the default tenant.
func (a *AuthorizationService) GenerateAuthorizationURL(ctx context.Context, tenantID string) (string, error) {
	if a == nil || a.states == nil {
		return "", NewError(ErrorInternal, "tiktokshop: authorization service is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		tenantID = a.cfg.DefaultTenant
	}
	if strings.TrimSpace(a.cfg.Auth.AppKey) == "" {
		return "", NewError(ErrorConfigInvalid, "tiktokshop: auth.app_key is required to authorize", nil)
	}

	state, err := generateAuthState()
	if err != nil {
		return "", WrapError(err, ErrorInternal, "tiktokshop: generate authorization state", nil)
	}
	if err := a.states.Save(ctx, state, tenantID, a.cfg.StateTTL()); err != nil {
		return "", WrapError(err, ErrorInternal, "tiktokshop: store authorization state", map[string]any{"tenant_id": tenantID})
	}

	query := url.Values{}
	query.Set("app_key", a.cfg.Auth.AppKey)
	query.Set("state", state)
	query.Set("redirect_uri", a.cfg.Auth.RedirectURI)
	query.Set("response_type", "code")
	return strings.TrimRight(a.cfg.Auth.BaseURL, "/") + "/oauth/authorize?" + query.Encode(), nil
}

// HandleAuthorizationCallback resolves the tenant bound to state, exchanges
// code and persists the credential. Unknown or expired states fall back to
// the default tenant.
func (a *AuthorizationService) HandleAuthorizationCallback(ctx context.Context, code string, state string) (result CallbackResult, err error) {
	if a == nil || a.tokens == nil {
		return CallbackResult{}, NewError(ErrorInternal, "tiktokshop: authorization service is not configured", nil)
	}
	startedAt := time.Now()
	defer func() {
		a.observer.observeOperation(ctx, startedAt, "authorization_callback", err, map[string]any{
			"tenant_id": result.TenantID,
			"result":    string(result.Status),
		})
	}()

	if strings.TrimSpace(code) == "" {
		return CallbackResult{}, NewError(ErrorBadInput, "tiktokshop: missing authorization code", nil)
	}
	tenantID := a.resolveTenant(ctx, state)

	exchanged, err := a.tokens.Exchange(ctx, tenantID, code)
	if err != nil {
		return CallbackResult{TenantID: tenantID}, err
	}
	credential := exchanged.Credential
	result = CallbackResult{
		Status:   exchanged.Status,
		TenantID: tenantID,
		OpenID:   credential.OpenID,
		Shop:     credential.Shop(),
	}
	if !credential.AccessTokenExpiresAt.IsZero() {
		expiresAt := credential.AccessTokenExpiresAt.UTC()
		result.ExpiresAt = &expiresAt
	}
	return result, nil
}

func (a *AuthorizationService) resolveTenant(ctx context.Context, state string) string {
	state = strings.TrimSpace(state)
	if state == "" || a.states == nil {
		return a.cfg.DefaultTenant
	}
	tenantID, ok, err := a.states.Consume(ctx, state)
	if err != nil {
		a.observer.logWarn(ctx, "authorization state lookup failed", map[string]any{"error": err.Error()})
		return a.cfg.DefaultTenant
	}
	if !ok || strings.TrimSpace(tenantID) == "" {
		return a.cfg.DefaultTenant
	}
	return tenantID
}

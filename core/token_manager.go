package core

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	tokenExchangePath = "/api/v2/token/get"
	tokenRefreshPath  = "/api/v2/token/refresh"
	absoluteExpiryMin = int64(1_000_000_000)
)

// TokenManager owns the credential lifecycle: code exchange, proactive
// refresh before expiry, and forced refresh after an auth failure.
type TokenManager struct {
	cfg       Config
	store     CredentialStore
	transport *httpTransport
	client    *signedClient
	guard     *TenantGuard
	now       func() time.Time
	observer  observer
}

type tokenPayload struct {
	AccessToken          string   `json:"access_token"`
	AccessTokenExpireIn  int64    `json:"access_token_expire_in"`
	RefreshToken         string   `json:"refresh_token"`
	RefreshTokenExpireIn int64    `json:"refresh_token_expire_in"`
	OpenID               string   `json:"open_id"`
	SellerName           string   `json:"seller_name"`
	SellerBaseRegion     string   `json:"seller_base_region"`
	UserType             int      `json:"user_type"`
	GrantedScopes        []string `json:"granted_scopes"`
}

type authorizedShopsPayload struct {
	Shops []struct {
		Cipher     string `json:"cipher"`
		Code       string `json:"code"`
		ID         string `json:"id"`
		Name       string `json:"name"`
		Region     string `json:"region"`
		SellerType string `json:"seller_type"`
	} `json:"shops"`
}

func (m *TokenManager) Store() CredentialStore {
	if m == nil {
		return nil
	}
	return m.store
}

// Exchange trades an authorization code for tokens, resolves the shop the
// tokens belong to, and persists the tenant credential. A provider response
// meaning the shop is already authorized yields CallbackAlreadyAuthorized
// with the stored credential.
func (m *TokenManager) Exchange(ctx context.Context, tenantID string, code string) (result ExchangeResult, err error) {
	if m == nil || m.store == nil {
		return ExchangeResult{}, NewError(ErrorInternal, "tiktokshop: token manager is not configured", nil)
	}
	startedAt := time.Now()
	tenantID = strings.TrimSpace(tenantID)
	defer func() {
		m.observer.observeOperation(ctx, startedAt, "exchange", err, map[string]any{
			"tenant_id": tenantID,
			"result":    string(result.Status),
		})
	}()

	if tenantID == "" {
		return ExchangeResult{}, NewError(ErrorBadInput, "tiktokshop: tenant id is required", nil)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return ExchangeResult{}, NewError(ErrorBadInput, "tiktokshop: authorization code is required", nil)
	}

	app := appIdentity{Key: m.cfg.Auth.AppKey, Secret: m.cfg.Auth.AppSecret}
	resp, err := m.tokenCall(ctx, tokenExchangePath, map[string]any{
		"app_key":    app.Key,
		"app_secret": app.Secret,
		"auth_code":  code,
		"grant_type": "authorized_code",
	})
	if err != nil {
		return ExchangeResult{}, WrapError(err, ErrorAuthExchangeFailed, "tiktokshop: token exchange request failed", map[string]any{
			"tenant_id": tenantID,
		})
	}
	if m.isAlreadyAuthorized(resp) {
		existing, getErr := m.store.Get(ctx, tenantID)
		if getErr != nil {
			return ExchangeResult{}, WrapError(getErr, ErrorAuthExchangeFailed, "tiktokshop: shop already authorized but no credential is stored", map[string]any{
				"tenant_id":     tenantID,
				"upstream_code": resp.Code,
			})
		}
		return ExchangeResult{Status: CallbackAlreadyAuthorized, Credential: existing}, nil
	}
	grant, err := m.decodeGrant(resp)
	if err != nil {
		return ExchangeResult{}, WrapError(err, ErrorAuthExchangeFailed, "tiktokshop: token exchange rejected", map[string]any{
			"tenant_id":     tenantID,
			"upstream_code": resp.Code,
		})
	}

	shop, err := m.resolveShop(ctx, app, grant.AccessToken)
	if err != nil {
		return ExchangeResult{}, WrapError(err, ErrorAuthExchangeFailed, "tiktokshop: resolve authorized shop", map[string]any{
			"tenant_id": tenantID,
		})
	}

	release, err := m.guard.Acquire(ctx, tenantID)
	if err != nil {
		return ExchangeResult{}, WrapError(err, ErrorTransport, "tiktokshop: acquire tenant lock", map[string]any{"tenant_id": tenantID})
	}
	defer release()

	credential := Credential{
		TenantID:             tenantID,
		AppKey:               app.Key,
		AppSecret:            app.Secret,
		AccessToken:          grant.AccessToken,
		RefreshToken:         grant.RefreshToken,
		AccessTokenExpiresAt: grant.AccessTokenExpiresAt,
		Scopes:               append([]string(nil), grant.Scopes...),
		OpenID:               grant.OpenID,
		SellerName:           grant.SellerName,
	}
	credential.ApplyShop(shop)
	saved, err := m.store.Upsert(context.WithoutCancel(ctx), credential)
	if err != nil {
		return ExchangeResult{}, err
	}
	return ExchangeResult{Status: CallbackAuthorized, Credential: saved}, nil
}

// EnsureFresh returns the tenant credential, refreshing it first when the
// access token is within the refresh skew of expiry. Concurrent callers for
// one tenant share a single refresh.
func (m *TokenManager) EnsureFresh(ctx context.Context, tenantID string) (Credential, error) {
	if m == nil || m.store == nil {
		return Credential{}, NewError(ErrorInternal, "tiktokshop: token manager is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	current, err := m.store.Get(ctx, tenantID)
	if err != nil {
		return Credential{}, err
	}
	if !ShouldRefresh(m.now(), current, m.cfg.RefreshSkew()) {
		return current, nil
	}

	refreshed, _, err := m.guard.Share(ctx, tenantID, "refresh", func(ctx context.Context) (Credential, error) {
		latest, err := m.latest(ctx, tenantID)
		if err != nil {
			return Credential{}, err
		}
		if !ShouldRefresh(m.now(), latest, m.cfg.RefreshSkew()) {
			return latest, nil
		}
		return m.refreshLocked(ctx, latest, "refresh")
	})
	return refreshed, err
}

// ForceRefresh refreshes the tenant credential after staleAccessToken was
// rejected upstream. If the stored token already differs from the stale one
// another caller refreshed it and the stored credential is returned as is.
func (m *TokenManager) ForceRefresh(ctx context.Context, tenantID string, staleAccessToken string) (Credential, error) {
	if m == nil || m.store == nil {
		return Credential{}, NewError(ErrorInternal, "tiktokshop: token manager is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	stale := strings.TrimSpace(staleAccessToken)

	refreshed, _, err := m.guard.Share(ctx, tenantID, "force:"+stale, func(ctx context.Context) (Credential, error) {
		latest, err := m.latest(ctx, tenantID)
		if err != nil {
			return Credential{}, err
		}
		if stale != "" && strings.TrimSpace(latest.AccessToken) != stale {
			return latest, nil
		}
		return m.refreshLocked(ctx, latest, "force_refresh")
	})
	return refreshed, err
}

func (m *TokenManager) latest(ctx context.Context, tenantID string) (Credential, error) {
	if source, ok := m.store.(SourceCredentialReader); ok {
		return source.GetFromSource(ctx, tenantID)
	}
	return m.store.Get(ctx, tenantID)
}

// refreshLocked runs with the tenant lock held. On any failure the stored
// credential is left untouched.
func (m *TokenManager) refreshLocked(ctx context.Context, current Credential, operation string) (refreshed Credential, err error) {
	startedAt := time.Now()
	defer func() {
		m.observer.observeOperation(ctx, startedAt, operation, err, map[string]any{
			"tenant_id": current.TenantID,
		})
	}()

	if !current.CanRefresh() {
		return Credential{}, NewError(ErrorRefreshFailed, "tiktokshop: credential has no refresh token", map[string]any{
			"tenant_id": current.TenantID,
		})
	}
	app := m.appFor(current)
	resp, err := m.tokenCall(ctx, tokenRefreshPath, map[string]any{
		"app_key":       app.Key,
		"app_secret":    app.Secret,
		"refresh_token": current.RefreshToken,
		"grant_type":    "refresh_token",
	})
	if err != nil {
		return Credential{}, WrapError(err, ErrorRefreshFailed, "tiktokshop: refresh request failed", map[string]any{
			"tenant_id": current.TenantID,
		})
	}
	grant, err := m.decodeGrant(resp)
	if err != nil {
		return Credential{}, WrapError(err, ErrorRefreshFailed, "tiktokshop: refresh rejected", map[string]any{
			"tenant_id":     current.TenantID,
			"upstream_code": resp.Code,
		})
	}

	update := TokenUpdate{
		AccessToken:          grant.AccessToken,
		RefreshToken:         grant.RefreshToken,
		AccessTokenExpiresAt: grant.AccessTokenExpiresAt,
		Scopes:               grant.Scopes,
	}
	if strings.TrimSpace(update.RefreshToken) == "" {
		update.RefreshToken = current.RefreshToken
	}
	if len(update.Scopes) == 0 {
		update.Scopes = append([]string(nil), current.Scopes...)
	}
	saved, err := m.store.UpdateTokens(ctx, current.TenantID, update)
	if err != nil {
		return Credential{}, WrapError(err, ErrorRefreshFailed, "tiktokshop: persist refreshed tokens", map[string]any{
			"tenant_id": current.TenantID,
		})
	}
	return saved, nil
}

func (m *TokenManager) tokenCall(ctx context.Context, path string, query map[string]any) (Response, error) {
	base := strings.TrimRight(m.cfg.Auth.BaseURL, "/")
	return m.transport.do(ctx, outboundCall{
		Method:  http.MethodGet,
		URL:     base + path,
		Query:   query,
		Timeout: m.cfg.Timeout(),
	})
}

func (m *TokenManager) decodeGrant(resp Response) (TokenGrant, error) {
	if resp.StatusCode >= http.StatusBadRequest || resp.Code != 0 {
		return TokenGrant{}, upstreamError(resp, "token")
	}
	var payload tokenPayload
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &payload); err != nil {
			return TokenGrant{}, WrapError(err, ErrorUpstream, "tiktokshop: decode token payload", nil)
		}
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return TokenGrant{}, NewError(ErrorUpstream, "tiktokshop: token response missing access token", nil)
	}
	now := m.now().UTC()
	return TokenGrant{
		AccessToken:          strings.TrimSpace(payload.AccessToken),
		RefreshToken:         strings.TrimSpace(payload.RefreshToken),
		AccessTokenExpiresAt: resolveExpiresAt(now, payload.AccessTokenExpireIn),
		OpenID:               strings.TrimSpace(payload.OpenID),
		SellerName:           strings.TrimSpace(payload.SellerName),
		SellerBaseRegion:     strings.TrimSpace(payload.SellerBaseRegion),
		UserType:             payload.UserType,
		Scopes:               normalizeScopes(payload.GrantedScopes),
	}, nil
}

func (m *TokenManager) resolveShop(ctx context.Context, app appIdentity, accessToken string) (ShopMetadata, error) {
	resp, err := m.client.call(ctx, app, accessToken, "", Request{
		Method:         http.MethodGet,
		Path:           fmt.Sprintf("/authorization/%s/shops", m.cfg.APIVersion),
		OmitShopCipher: true,
	})
	if err != nil {
		return ShopMetadata{}, err
	}
	if resp.StatusCode >= http.StatusBadRequest || resp.Code != 0 {
		return ShopMetadata{}, upstreamError(resp, "authorized_shops")
	}
	var payload authorizedShopsPayload
	if err := resp.Decode(&payload); err != nil {
		return ShopMetadata{}, err
	}
	if len(payload.Shops) == 0 || strings.TrimSpace(payload.Shops[0].Cipher) == "" {
		return ShopMetadata{}, NewError(ErrorUpstream, "tiktokshop: no authorized shop returned", nil)
	}
	first := payload.Shops[0]
	return ShopMetadata{
		Cipher:     first.Cipher,
		ID:         first.ID,
		Code:       first.Code,
		Name:       first.Name,
		Region:     first.Region,
		SellerType: first.SellerType,
	}, nil
}

func (m *TokenManager) isAlreadyAuthorized(resp Response) bool {
	if resp.Code == 0 {
		return false
	}
	for _, code := range m.cfg.Auth.AlreadyAuthorizedCodes {
		if resp.Code == code {
			return true
		}
	}
	return strings.Contains(strings.ToLower(resp.Message), "already authorized")
}

func (m *TokenManager) appFor(credential Credential) appIdentity {
	app := appIdentity{Key: strings.TrimSpace(credential.AppKey), Secret: credential.AppSecret}
	if app.Key == "" {
		app.Key = m.cfg.Auth.AppKey
	}
	if app.Secret == "" {
		app.Secret = m.cfg.Auth.AppSecret
	}
	return app
}

// resolveExpiresAt accepts either a relative lifetime in seconds or an
// absolute unix timestamp.
func resolveExpiresAt(now time.Time, expireIn int64) time.Time {
	switch {
	case expireIn <= 0:
		return now.Add(defaultTokenExpiresIn * time.Second)
	case expireIn >= absoluteExpiryMin:
		return time.Unix(expireIn, 0).UTC()
	default:
		return now.Add(time.Duration(expireIn) * time.Second)
	}
}

func normalizeScopes(scopes []string) []string {
	if len(scopes) == 0 {
		return nil
	}
	out := make([]string, 0, len(scopes))
	seen := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, ok := seen[scope]; ok {
			continue
		}
		seen[scope] = struct{}{}
		out = append(out, scope)
	}
	return out
}

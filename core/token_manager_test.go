package core

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTokenManager_ExchangePersistsCredentialWithShop(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	result, err := h.service.Tokens().Exchange(ctx, "tenant_1", "code_1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if result.Status != CallbackAuthorized {
		t.Fatalf("expected authorized status, got %q", result.Status)
	}
	stored, err := h.store.Get(ctx, "tenant_1")
	if err != nil {
		t.Fatalf("get stored credential: %v", err)
	}
	if stored.AccessToken != "access-1" || stored.RefreshToken != "refresh-1" {
		t.Fatalf("unexpected tokens %q/%q", stored.AccessToken, stored.RefreshToken)
	}
	if stored.ShopCipher != testCipher || stored.ShopRegion != "GB" {
		t.Fatalf("expected shop metadata to be resolved, got %#v", stored.Shop())
	}
	if stored.OpenID != "open_1" || len(stored.Scopes) != 2 {
		t.Fatalf("expected grant details to be stored, got open_id=%q scopes=%v", stored.OpenID, stored.Scopes)
	}
	if stored.AppKey != testAppKey || stored.AppSecret != testAppSecret {
		t.Fatalf("expected app identity to be stored with the credential")
	}
	remaining := time.Until(stored.AccessTokenExpiresAt)
	if remaining < 7100*time.Second || remaining > 7200*time.Second {
		t.Fatalf("expected relative expiry of ~7200s, got %s", remaining)
	}
	if h.platform.badSignatures.Load() != 0 {
		t.Fatalf("shop lookup was not signed correctly")
	}
}

func TestTokenManager_ExchangeAlreadyAuthorizedIsIdempotent(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	first, err := h.service.Tokens().Exchange(ctx, "tenant_1", "code_1")
	if err != nil {
		t.Fatalf("first exchange: %v", err)
	}

	h.platform.mu.Lock()
	h.platform.exchangeCode = 36004004
	h.platform.exchangeMsg = "shop is already authorized"
	h.platform.mu.Unlock()

	second, err := h.service.Tokens().Exchange(ctx, "tenant_1", "code_2")
	if err != nil {
		t.Fatalf("second exchange: %v", err)
	}
	if second.Status != CallbackAlreadyAuthorized {
		t.Fatalf("expected already_authorized status, got %q", second.Status)
	}
	if second.Credential.AccessToken != first.Credential.AccessToken {
		t.Fatalf("expected stored credential to be returned unchanged")
	}
	stored, _ := h.store.Get(ctx, "tenant_1")
	if stored.Version != first.Credential.Version {
		t.Fatalf("expected no write on already authorized, version %d -> %d", first.Credential.Version, stored.Version)
	}
}

func TestTokenManager_ExchangeAlreadyAuthorizedByMessage(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))

	h.platform.mu.Lock()
	h.platform.exchangeCode = 36009999
	h.platform.exchangeMsg = "This shop is Already Authorized for the app"
	h.platform.mu.Unlock()

	result, err := h.service.Tokens().Exchange(ctx, "tenant_1", "code_1")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if result.Status != CallbackAlreadyAuthorized {
		t.Fatalf("expected already_authorized status, got %q", result.Status)
	}
}

func TestTokenManager_ExchangeAlreadyAuthorizedWithoutStoredCredential(t *testing.T) {
	h := newTestHarness(t)
	h.platform.mu.Lock()
	h.platform.exchangeCode = 36004004
	h.platform.mu.Unlock()

	_, err := h.service.Tokens().Exchange(context.Background(), "tenant_1", "code_1")
	if !IsKind(err, ErrorAuthExchangeFailed) {
		t.Fatalf("expected %s, got %v", ErrorAuthExchangeFailed, err)
	}
}

func TestTokenManager_ExchangeRejectedLeavesStoreEmpty(t *testing.T) {
	h := newTestHarness(t)
	h.platform.mu.Lock()
	h.platform.exchangeCode = 36004001
	h.platform.exchangeMsg = "invalid auth code"
	h.platform.mu.Unlock()

	_, err := h.service.Tokens().Exchange(context.Background(), "tenant_1", "bad")
	if !IsKind(err, ErrorAuthExchangeFailed) {
		t.Fatalf("expected %s, got %v", ErrorAuthExchangeFailed, err)
	}
	if _, err := h.store.Get(context.Background(), "tenant_1"); !IsKind(err, ErrorCredentialNotFound) {
		t.Fatalf("expected no credential after failed exchange, got %v", err)
	}
}

func TestTokenManager_ExchangeFailsWithoutAuthorizedShop(t *testing.T) {
	h := newTestHarness(t)
	h.platform.mu.Lock()
	h.platform.shops = nil
	h.platform.mu.Unlock()

	_, err := h.service.Tokens().Exchange(context.Background(), "tenant_1", "code_1")
	if !IsKind(err, ErrorAuthExchangeFailed) {
		t.Fatalf("expected %s, got %v", ErrorAuthExchangeFailed, err)
	}
}

func TestTokenManager_ExchangeRequiresCode(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.service.Tokens().Exchange(context.Background(), "tenant_1", "  ")
	if !IsKind(err, ErrorBadInput) {
		t.Fatalf("expected %s, got %v", ErrorBadInput, err)
	}
	if h.platform.exchangeCalls.Load() != 0 {
		t.Fatalf("expected no upstream call for a blank code")
	}
}

func TestTokenManager_EnsureFreshSkipsRefreshOutsideSkew(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))

	got, err := h.service.Tokens().EnsureFresh(context.Background(), "tenant_1")
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if got.AccessToken != seeded.AccessToken {
		t.Fatalf("expected unchanged token, got %q", got.AccessToken)
	}
	if calls := h.platform.refreshCalls.Load(); calls != 0 {
		t.Fatalf("expected no refresh, got %d", calls)
	}
}

func TestTokenManager_EnsureFreshRefreshesInsideSkew(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(60*time.Second))

	got, err := h.service.Tokens().EnsureFresh(context.Background(), "tenant_1")
	if err != nil {
		t.Fatalf("ensure fresh: %v", err)
	}
	if got.AccessToken == seeded.AccessToken {
		t.Fatalf("expected a refreshed access token")
	}
	if got.RefreshToken == seeded.RefreshToken {
		t.Fatalf("expected rotated refresh token to be persisted")
	}
	stored, _ := h.store.Get(context.Background(), "tenant_1")
	if stored.AccessToken != got.AccessToken || stored.Version != seeded.Version+1 {
		t.Fatalf("expected refreshed tokens in store, got %#v", stored)
	}
	if stored.ShopCipher != testCipher {
		t.Fatalf("expected shop metadata to survive refresh")
	}
	if len(h.metrics.countersNamed(MetricRefreshTotal)) != 1 {
		t.Fatalf("expected one refresh metric")
	}
}

func TestTokenManager_ConcurrentEnsureFreshSharesOneRefresh(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(-time.Minute))
	h.platform.mu.Lock()
	h.platform.refreshDelay = 50 * time.Millisecond
	h.platform.mu.Unlock()

	const callers = 20
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	start := make(chan struct{})
	for index := 0; index < callers; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			<-start
			cred, err := h.service.Tokens().EnsureFresh(context.Background(), "tenant_1")
			tokens[index] = cred.AccessToken
			errs[index] = err
		}(index)
	}
	close(start)
	wg.Wait()

	for index, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", index, err)
		}
		if tokens[index] != tokens[0] {
			t.Fatalf("caller %d observed %q, want %q", index, tokens[index], tokens[0])
		}
	}
	if calls := h.platform.refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly one upstream refresh, got %d", calls)
	}
}

func TestTokenManager_RefreshRejectionLeavesStoreUntouched(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(-time.Minute))
	h.platform.mu.Lock()
	h.platform.refreshCode = 36004005
	h.platform.mu.Unlock()

	_, err := h.service.Tokens().EnsureFresh(context.Background(), "tenant_1")
	if !IsKind(err, ErrorRefreshFailed) {
		t.Fatalf("expected %s, got %v", ErrorRefreshFailed, err)
	}
	stored, _ := h.store.Get(context.Background(), "tenant_1")
	if stored.AccessToken != seeded.AccessToken || stored.RefreshToken != seeded.RefreshToken || stored.Version != seeded.Version {
		t.Fatalf("expected store to be untouched after failed refresh")
	}
}

type failingRefreshDoer struct {
	next HTTPDoer
}

func (d failingRefreshDoer) Do(req *http.Request) (*http.Response, error) {
	if strings.HasSuffix(req.URL.Path, tokenRefreshPath) {
		return nil, context.DeadlineExceeded
	}
	return d.next.Do(req)
}

func TestTokenManager_RefreshTimeoutLeavesStoreUntouched(t *testing.T) {
	platform := newFakePlatform(t)
	store := NewMemoryCredentialStore()
	svc, err := NewService(testConfig(platform.URL()),
		WithCredentialStore(store),
		WithHTTPClient(failingRefreshDoer{next: platform.server.Client()}),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	access, refresh := platform.seed()
	seeded, _ := store.Upsert(context.Background(), Credential{
		TenantID:             "tenant_1",
		AccessToken:          access,
		RefreshToken:         refresh,
		AccessTokenExpiresAt: time.Now().Add(-time.Minute),
	})

	_, err = svc.Tokens().EnsureFresh(context.Background(), "tenant_1")
	if !IsKind(err, ErrorRefreshFailed) {
		t.Fatalf("expected %s, got %v", ErrorRefreshFailed, err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error to be preserved in chain, got %v", err)
	}
	stored, _ := store.Get(context.Background(), "tenant_1")
	if stored.Version != seeded.Version || stored.AccessToken != access {
		t.Fatalf("expected store to be untouched after timed out refresh")
	}
}

func TestTokenManager_RefreshRequiresRefreshToken(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.store.Upsert(context.Background(), Credential{
		TenantID:    "tenant_1",
		AccessToken: "access-x",
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, err = h.service.Tokens().ForceRefresh(context.Background(), "tenant_1", "access-x")
	if !IsKind(err, ErrorRefreshFailed) {
		t.Fatalf("expected %s, got %v", ErrorRefreshFailed, err)
	}
	if h.platform.refreshCalls.Load() != 0 {
		t.Fatalf("expected no upstream refresh without a refresh token")
	}
}

func TestTokenManager_ForceRefreshSkipsWhenTokenAlreadyRotated(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))

	got, err := h.service.Tokens().ForceRefresh(context.Background(), "tenant_1", "access-stale")
	if err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if got.AccessToken != seeded.AccessToken {
		t.Fatalf("expected stored credential, got %q", got.AccessToken)
	}
	if h.platform.refreshCalls.Load() != 0 {
		t.Fatalf("expected no upstream refresh when stored token already differs")
	}
}

func TestTokenManager_EnsureFreshUnknownTenant(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.service.Tokens().EnsureFresh(context.Background(), "missing")
	if !IsKind(err, ErrorCredentialNotFound) {
		t.Fatalf("expected %s, got %v", ErrorCredentialNotFound, err)
	}
}

func TestResolveExpiresAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := resolveExpiresAt(now, 3600); !got.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected relative expiry, got %s", got)
	}
	if got := resolveExpiresAt(now, 1772330400); !got.Equal(time.Unix(1772330400, 0).UTC()) {
		t.Fatalf("expected absolute expiry, got %s", got)
	}
	if got := resolveExpiresAt(now, 0); !got.Equal(now.Add(defaultTokenExpiresIn * time.Second)) {
		t.Fatalf("expected default lifetime, got %s", got)
	}
}

// laggingCredentialStore answers Get from an old snapshot, the way a cache
// does while a write is still propagating.
type laggingCredentialStore struct {
	*MemoryCredentialStore
	snapshot Credential
}

func (s *laggingCredentialStore) Get(context.Context, string) (Credential, error) {
	return s.snapshot.Clone(), nil
}

func (s *laggingCredentialStore) GetFromSource(ctx context.Context, tenantID string) (Credential, error) {
	return s.MemoryCredentialStore.Get(ctx, tenantID)
}

func TestTokenManager_ForceRefreshRechecksSourceUnderLock(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	stale := seeded.Clone()
	stale.AccessToken = "access-stale"
	stale.RefreshToken = "refresh-stale"
	lagging := &laggingCredentialStore{MemoryCredentialStore: h.store, snapshot: stale}

	svc, err := NewService(testConfig(h.platform.URL()),
		WithCredentialStore(lagging),
		WithHTTPClient(h.platform.server.Client()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	got, err := svc.Tokens().ForceRefresh(context.Background(), "tenant_1", "access-stale")
	if err != nil {
		t.Fatalf("force refresh: %v", err)
	}
	if got.AccessToken != seeded.AccessToken {
		t.Fatalf("expected the source credential, got %q", got.AccessToken)
	}
	if h.platform.refreshCalls.Load() != 0 {
		t.Fatalf("expected no upstream refresh with a rotated refresh token")
	}
}

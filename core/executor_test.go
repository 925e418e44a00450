package core

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

func newTenantExecutor(t *testing.T, h *testHarness, tenantID string) *Executor {
	t.Helper()
	executor, err := h.service.Executor(context.Background(), tenantID)
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	return executor
}

func TestExecutor_SignsAndInjectsCommonParameters(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")

	resp, err := executor.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/product/202309/products/search",
		Query:  map[string]any{"page_size": 20, "sign": "forged", "access_token": "leak"},
		Body:   map[string]any{"status": "ACTIVATE"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !resp.Success() {
		t.Fatalf("expected success, got %#v", resp)
	}
	if h.platform.badSignatures.Load() != 0 {
		t.Fatalf("expected request to verify against the platform signature")
	}

	query, header, body := h.platform.snapshotLast()
	if query["app_key"] != testAppKey || query["shop_cipher"] != testCipher || query["page_size"] != "20" {
		t.Fatalf("unexpected injected query %#v", query)
	}
	if query["timestamp"] == "" || query["sign"] == "" || query["sign"] == "forged" {
		t.Fatalf("expected fresh timestamp and signature, got %#v", query)
	}
	if _, ok := query["access_token"]; ok {
		t.Fatalf("access token must never travel in the query string")
	}
	if header.Get(AccessTokenHeader) != seeded.AccessToken {
		t.Fatalf("expected access token header, got %q", header.Get(AccessTokenHeader))
	}
	if header.Get(RequestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
	if string(body) != `{"status":"ACTIVATE"}` {
		t.Fatalf("expected compact json body, got %s", body)
	}
}

func TestExecutor_OmitShopCipher(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")

	_, err := executor.Do(context.Background(), Request{
		Path:           "/authorization/202309/shops",
		OmitShopCipher: true,
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	query, _, _ := h.platform.snapshotLast()
	if _, ok := query["shop_cipher"]; ok {
		t.Fatalf("expected shop_cipher to be omitted, got %#v", query)
	}
}

func TestExecutor_MultipartUploadSignsWithoutBody(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")

	_, err := executor.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/product/202309/images/upload",
		Upload: &Upload{
			FileName:    "shirt.png",
			ContentType: "image/png",
			Content:     []byte("png-bytes"),
			Fields:      map[string]string{"use_case": "MAIN_IMAGE"},
		},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if h.platform.badSignatures.Load() != 0 {
		t.Fatalf("expected multipart request to be signed without body")
	}
	h.platform.mu.Lock()
	multipart := h.platform.lastMultipart
	h.platform.mu.Unlock()
	if !multipart {
		t.Fatalf("expected multipart content type")
	}
}

func TestExecutor_RefreshesOnceAndReplaysOnAuthFailure(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")
	h.platform.revoke()

	resp, err := executor.Do(context.Background(), Request{Path: "/order/202309/orders/search", Method: http.MethodPost})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !resp.Success() {
		t.Fatalf("expected replay to succeed, got %#v", resp)
	}
	if calls := h.platform.refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected one forced refresh, got %d", calls)
	}
	if calls := h.platform.apiCalls.Load(); calls != 2 {
		t.Fatalf("expected original call plus one replay, got %d", calls)
	}
	stored, _ := h.store.Get(context.Background(), "tenant_1")
	if stored.AccessToken == seeded.AccessToken {
		t.Fatalf("expected refreshed token to be persisted")
	}
}

func TestExecutor_StopsAfterOneReplay(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")
	h.platform.mu.Lock()
	h.platform.rejectAPI = true
	h.platform.mu.Unlock()

	_, err := executor.Do(context.Background(), Request{Path: "/order/202309/orders/search", Method: http.MethodPost})
	if !IsKind(err, ErrorUpstreamUnauthorized) {
		t.Fatalf("expected %s, got %v", ErrorUpstreamUnauthorized, err)
	}
	if calls := h.platform.refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected exactly one refresh, got %d", calls)
	}
	if calls := h.platform.apiCalls.Load(); calls != 2 {
		t.Fatalf("expected exactly one replay, got %d calls", calls)
	}
}

func TestExecutor_ConcurrentAuthFailuresShareOneRefresh(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")
	h.platform.revoke()
	h.platform.mu.Lock()
	h.platform.refreshDelay = 30 * time.Millisecond
	h.platform.mu.Unlock()

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for index := 0; index < callers; index++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			_, errs[index] = executor.Do(context.Background(), Request{Path: "/product/202309/products/search", Method: http.MethodPost})
		}(index)
	}
	wg.Wait()

	for index, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", index, err)
		}
	}
	if calls := h.platform.refreshCalls.Load(); calls != 1 {
		t.Fatalf("expected one shared refresh, got %d", calls)
	}
}

func TestExecutor_RetriesTransientTransportFailures(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")
	h.platform.mu.Lock()
	h.platform.apiStatus = []int{http.StatusServiceUnavailable}
	h.platform.mu.Unlock()

	resp, err := executor.Do(context.Background(), Request{Path: "/product/202309/brands"})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if !resp.Success() || h.platform.apiCalls.Load() != 2 {
		t.Fatalf("expected one transport retry, got %d calls", h.platform.apiCalls.Load())
	}
}

func TestExecutor_TransportFailureAfterRetriesIsTransportError(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")
	h.platform.mu.Lock()
	h.platform.apiStatus = []int{http.StatusBadGateway, http.StatusBadGateway, http.StatusBadGateway}
	h.platform.mu.Unlock()

	_, err := executor.Do(context.Background(), Request{Path: "/product/202309/brands"})
	if !IsKind(err, ErrorTransport) {
		t.Fatalf("expected %s, got %v", ErrorTransport, err)
	}
	if calls := h.platform.apiCalls.Load(); calls != 2 {
		t.Fatalf("expected retries capped at max attempts, got %d", calls)
	}
	if h.platform.refreshCalls.Load() != 0 {
		t.Fatalf("transport failures must not trigger a refresh")
	}
}

func TestExecutor_UpstreamErrorsAreNotRetried(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")
	h.platform.mu.Lock()
	h.platform.apiStatus = []int{http.StatusBadRequest}
	h.platform.mu.Unlock()

	_, err := executor.Do(context.Background(), Request{Path: "/product/202309/brands"})
	if !IsKind(err, ErrorUpstream) {
		t.Fatalf("expected %s, got %v", ErrorUpstream, err)
	}
	if calls := h.platform.apiCalls.Load(); calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
}

func TestExecutor_ProactiveRefreshBeforeCall(t *testing.T) {
	h := newTestHarness(t)
	seeded := h.seedCredential(t, "tenant_1", time.Now().Add(30*time.Second))
	executor := newTenantExecutor(t, h, "tenant_1")

	if _, err := executor.Do(context.Background(), Request{Path: "/seller/202309/shops"}); err != nil {
		t.Fatalf("do: %v", err)
	}
	_, header, _ := h.platform.snapshotLast()
	if header.Get(AccessTokenHeader) == seeded.AccessToken {
		t.Fatalf("expected call to use the refreshed token")
	}
	if h.platform.apiCalls.Load() != 1 {
		t.Fatalf("expected no replay after proactive refresh")
	}
}

func TestExecutor_RecordsRequestMetrics(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, "tenant_1", time.Now().Add(time.Hour))
	executor := newTenantExecutor(t, h, "tenant_1")

	if _, err := executor.Do(context.Background(), Request{Path: "/product/202309/brands"}); err != nil {
		t.Fatalf("do: %v", err)
	}
	counters := h.metrics.countersNamed(MetricRequestsTotal)
	if len(counters) != 1 {
		t.Fatalf("expected one request counter, got %d", len(counters))
	}
	if counters[0].tags["tenant_id"] != "tenant_1" || counters[0].tags["status"] != "success" {
		t.Fatalf("unexpected tags %#v", counters[0].tags)
	}
	for _, record := range h.logger.snapshot() {
		for key, value := range record.fields {
			if value == testAppSecret {
				t.Fatalf("secret leaked into log field %q", key)
			}
		}
	}
}

func TestService_ExecutorUnknownTenant(t *testing.T) {
	h := newTestHarness(t)
	_, err := h.service.Executor(context.Background(), "missing")
	if !IsKind(err, ErrorCredentialNotFound) {
		t.Fatalf("expected %s, got %v", ErrorCredentialNotFound, err)
	}
}

func TestService_ExecutorDefaultsTenant(t *testing.T) {
	h := newTestHarness(t)
	h.seedCredential(t, DefaultTenantID, time.Now().Add(time.Hour))
	executor, err := h.service.Executor(context.Background(), "")
	if err != nil {
		t.Fatalf("executor: %v", err)
	}
	if executor.TenantID() != DefaultTenantID {
		t.Fatalf("expected default tenant, got %q", executor.TenantID())
	}
}

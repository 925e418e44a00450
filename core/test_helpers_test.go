package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

const (
	testAppKey    = "ak_test"
	testAppSecret = "as_test"
	testCipher    = "ROW_cipher_1"
)

type capturedCounter struct {
	name  string
	value int64
	tags  map[string]string
}

type capturedHistogram struct {
	name  string
	value float64
	tags  map[string]string
}

type captureMetricsRecorder struct {
	mu         sync.Mutex
	counters   []capturedCounter
	histograms []capturedHistogram
}

func (m *captureMetricsRecorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters = append(m.counters, capturedCounter{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histograms = append(m.histograms, capturedHistogram{name: name, value: value, tags: cloneTags(tags)})
}

func (m *captureMetricsRecorder) countersNamed(name string) []capturedCounter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []capturedCounter{}
	for _, item := range m.counters {
		if item.name == name {
			out = append(out, item)
		}
	}
	return out
}

type capturedLog struct {
	level  string
	msg    string
	fields map[string]any
}

type captureLogger struct {
	mu       *sync.Mutex
	records  *[]capturedLog
	defaults map[string]any
}

func newCaptureLogger() *captureLogger {
	records := []capturedLog{}
	return &captureLogger{mu: &sync.Mutex{}, records: &records, defaults: map[string]any{}}
}

func (l *captureLogger) WithFields(fields map[string]any) Logger {
	merged := cloneFields(l.defaults)
	for key, value := range fields {
		merged[key] = value
	}
	return &captureLogger{mu: l.mu, records: l.records, defaults: merged}
}

func (l *captureLogger) Trace(msg string, args ...any) { l.record("trace", msg, args...) }
func (l *captureLogger) Debug(msg string, args ...any) { l.record("debug", msg, args...) }
func (l *captureLogger) Info(msg string, args ...any)  { l.record("info", msg, args...) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.record("warn", msg, args...) }
func (l *captureLogger) Error(msg string, args ...any) { l.record("error", msg, args...) }
func (l *captureLogger) Fatal(msg string, args ...any) { l.record("fatal", msg, args...) }

func (l *captureLogger) WithContext(context.Context) Logger {
	return &captureLogger{mu: l.mu, records: l.records, defaults: cloneFields(l.defaults)}
}

func (l *captureLogger) record(level string, msg string, args ...any) {
	fields := cloneFields(l.defaults)
	for index := 0; index+1 < len(args); index += 2 {
		key, ok := args[index].(string)
		if !ok {
			continue
		}
		fields[key] = args[index+1]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	*l.records = append(*l.records, capturedLog{level: level, msg: msg, fields: fields})
}

func (l *captureLogger) snapshot() []capturedLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]capturedLog, len(*l.records))
	copy(out, *l.records)
	return out
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

// fakePlatform emulates the token, shop and API endpoints. API calls are
// rejected unless correctly signed with the current access token.
type fakePlatform struct {
	t      *testing.T
	server *httptest.Server
	secret string

	mu            sync.Mutex
	issued        int
	validTokens   map[string]bool
	refreshToken  string
	expireIn      int64
	exchangeCode  int
	exchangeMsg   string
	refreshCode   int
	refreshDelay  time.Duration
	rejectAPI     bool
	apiStatus     []int
	shops         []map[string]any
	lastQuery     map[string]string
	lastHeader    http.Header
	lastBody      []byte
	lastMultipart bool

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
	apiCalls      atomic.Int32
	badSignatures atomic.Int32
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{
		t:           t,
		secret:      testAppSecret,
		validTokens: map[string]bool{},
		expireIn:    7200,
		shops: []map[string]any{{
			"cipher":      testCipher,
			"code":        "CNGBCBA4LLU8",
			"id":          "7000714532876273420",
			"name":        "Maomao beauty shop",
			"region":      "GB",
			"seller_type": "CROSS_BORDER",
		}},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakePlatform) URL() string {
	return p.server.URL
}

// issueLocked mints a new token pair. The previous access token stops
// working, matching refresh token rotation upstream.
func (p *fakePlatform) issueLocked() (string, string) {
	p.issued++
	p.validTokens = map[string]bool{}
	access := fmt.Sprintf("access-%d", p.issued)
	refresh := fmt.Sprintf("refresh-%d", p.issued)
	p.validTokens[access] = true
	p.refreshToken = refresh
	return access, refresh
}

// seed installs a valid token pair without going through the exchange.
func (p *fakePlatform) seed() (string, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issueLocked()
}

// revoke invalidates every access token while keeping the refresh token.
func (p *fakePlatform) revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validTokens = map[string]bool{}
}

func (p *fakePlatform) handle(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == tokenExchangePath:
		p.handleExchange(w, r)
	case r.URL.Path == tokenRefreshPath:
		p.handleRefresh(w, r)
	default:
		p.handleAPI(w, r)
	}
}

func (p *fakePlatform) handleExchange(w http.ResponseWriter, r *http.Request) {
	p.exchangeCalls.Add(1)
	query := r.URL.Query()
	if query.Get("grant_type") != "authorized_code" || query.Get("auth_code") == "" {
		writeEnvelope(w, http.StatusOK, 36004001, "invalid auth code", nil)
		return
	}
	p.mu.Lock()
	if p.exchangeCode != 0 {
		code, msg := p.exchangeCode, p.exchangeMsg
		p.mu.Unlock()
		writeEnvelope(w, http.StatusOK, code, msg, nil)
		return
	}
	access, refresh := p.issueLocked()
	expireIn := p.expireIn
	p.mu.Unlock()
	writeEnvelope(w, http.StatusOK, 0, "success", map[string]any{
		"access_token":            access,
		"access_token_expire_in":  expireIn,
		"refresh_token":           refresh,
		"refresh_token_expire_in": expireIn * 10,
		"open_id":                 "open_1",
		"seller_name":             "Maomao",
		"seller_base_region":      "GB",
		"granted_scopes":          []string{"seller.product.basic", "seller.order.info"},
	})
}

func (p *fakePlatform) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p.refreshCalls.Add(1)
	p.mu.Lock()
	delay := p.refreshDelay
	failCode := p.refreshCode
	p.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if failCode != 0 {
		writeEnvelope(w, http.StatusOK, failCode, "refresh token is invalid", nil)
		return
	}

	p.mu.Lock()
	if r.URL.Query().Get("refresh_token") != p.refreshToken {
		p.mu.Unlock()
		writeEnvelope(w, http.StatusOK, 36004005, "refresh token mismatch", nil)
		return
	}
	access, refresh := p.issueLocked()
	expireIn := p.expireIn
	p.mu.Unlock()
	writeEnvelope(w, http.StatusOK, 0, "success", map[string]any{
		"access_token":           access,
		"access_token_expire_in": expireIn,
		"refresh_token":          refresh,
	})
}

func (p *fakePlatform) handleAPI(w http.ResponseWriter, r *http.Request) {
	p.apiCalls.Add(1)
	body, _ := io.ReadAll(r.Body)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	multipart := strings.HasPrefix(mediaType, "multipart/")

	query := map[string]any{}
	flat := map[string]string{}
	for key, values := range r.URL.Query() {
		flat[key] = values[0]
		if key != "sign" {
			query[key] = values[0]
		}
	}
	input := SignInput{Path: r.URL.Path, Query: query, Multipart: multipart}
	if !multipart && len(body) > 0 {
		input.Body = json.RawMessage(body)
	}
	expected, err := Sign(p.secret, input)
	if err != nil || expected != flat["sign"] {
		p.badSignatures.Add(1)
		writeEnvelope(w, http.StatusOK, 106001, "invalid signature", nil)
		return
	}

	p.mu.Lock()
	p.lastQuery = flat
	p.lastHeader = r.Header.Clone()
	p.lastBody = body
	p.lastMultipart = multipart
	token := r.Header.Get(AccessTokenHeader)
	valid := p.validTokens[token] && !p.rejectAPI
	status := 0
	if len(p.apiStatus) > 0 {
		status = p.apiStatus[0]
		p.apiStatus = p.apiStatus[1:]
	}
	shops := p.shops
	p.mu.Unlock()

	if status != 0 {
		writeEnvelope(w, status, 0, http.StatusText(status), nil)
		return
	}
	if !valid {
		writeEnvelope(w, http.StatusUnauthorized, 105002, "access token is expired", nil)
		return
	}
	if strings.HasPrefix(r.URL.Path, "/authorization/") {
		writeEnvelope(w, http.StatusOK, 0, "success", map[string]any{"shops": shops})
		return
	}
	writeEnvelope(w, http.StatusOK, 0, "success", map[string]any{"path": r.URL.Path, "token": token})
}

func (p *fakePlatform) snapshotLast() (map[string]string, http.Header, []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastQuery, p.lastHeader, p.lastBody
}

func writeEnvelope(w http.ResponseWriter, status int, code int, message string, data any) {
	payload := map[string]any{
		"code":       code,
		"message":    message,
		"request_id": "req_fake",
	}
	if data != nil {
		payload["data"] = data
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func testConfig(platformURL string) Config {
	cfg := DefaultConfig()
	cfg.BaseURL = platformURL
	cfg.Auth.BaseURL = platformURL
	cfg.Auth.AppKey = testAppKey
	cfg.Auth.AppSecret = testAppSecret
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.DelayMillis = 1
	return cfg
}

type testHarness struct {
	platform *fakePlatform
	service  *Service
	store    *MemoryCredentialStore
	metrics  *captureMetricsRecorder
	logger   *captureLogger
	now      time.Time
}

func newTestHarness(t *testing.T, opts ...Option) *testHarness {
	t.Helper()
	platform := newFakePlatform(t)
	h := &testHarness{
		platform: platform,
		store:    NewMemoryCredentialStore(),
		metrics:  &captureMetricsRecorder{},
		logger:   newCaptureLogger(),
		now:      time.Now().UTC(),
	}
	base := []Option{
		WithCredentialStore(h.store),
		WithMetricsRecorder(h.metrics),
		WithLogger(h.logger),
		WithLoggerProvider(stubLoggerProvider{logger: h.logger}),
		WithHTTPClient(platform.server.Client()),
	}
	svc, err := NewService(testConfig(platform.URL()), append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h.service = svc
	return h
}

// seedCredential stores a credential holding a token pair the fake platform
// accepts, expiring at expiresAt.
func (h *testHarness) seedCredential(t *testing.T, tenantID string, expiresAt time.Time) Credential {
	t.Helper()
	access, refresh := h.platform.seed()
	saved, err := h.store.Upsert(context.Background(), Credential{
		TenantID:             tenantID,
		ShopCipher:           testCipher,
		ShopID:               "7000714532876273420",
		AppKey:               testAppKey,
		AppSecret:            testAppSecret,
		AccessToken:          access,
		RefreshToken:         refresh,
		AccessTokenExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("seed credential: %v", err)
	}
	return saved
}

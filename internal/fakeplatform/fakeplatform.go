// Package fakeplatform is an httptest stand-in for the TikTok Shop token,
// authorization and Open API endpoints. API calls must carry a valid
// signature and a live access token.
package fakeplatform

import (
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

	"github.com/goliatone/go-tiktokshop/core"
)

const (
	AppKey    = "ak_fake"
	AppSecret = "as_fake"
	Cipher    = "ROW_fake_cipher"
	ShopID    = "7000714532876273420"
	ShopName  = "Fake shop"

	AlreadyAuthorizedCode = 36004004
)

type Platform struct {
	server *httptest.Server
	secret string

	mu           sync.Mutex
	issued       int
	validTokens  map[string]bool
	refreshToken string
	usedCodes    map[string]bool

	ExchangeCalls atomic.Int32
	RefreshCalls  atomic.Int32
	APICalls      atomic.Int32
	BadSignatures atomic.Int32
}

func New(t testing.TB) *Platform {
	t.Helper()
	p := &Platform{
		secret:      AppSecret,
		validTokens: map[string]bool{},
		usedCodes:   map[string]bool{},
	}
	p.server = httptest.NewServer(http.HandlerFunc(p.handle))
	t.Cleanup(p.server.Close)
	return p
}

func (p *Platform) URL() string {
	return p.server.URL
}

// Config points a default configuration at the fake.
func (p *Platform) Config() core.Config {
	cfg := core.DefaultConfig()
	cfg.BaseURL = p.server.URL
	cfg.Auth.BaseURL = p.server.URL
	cfg.Auth.AppKey = AppKey
	cfg.Auth.AppSecret = AppSecret
	cfg.Retry.MaxAttempts = 1
	return cfg
}

// Revoke invalidates every live access token. The refresh token stays
// usable.
func (p *Platform) Revoke() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.validTokens = map[string]bool{}
}

func (p *Platform) issueLocked() (string, string) {
	p.issued++
	p.validTokens = map[string]bool{}
	access := fmt.Sprintf("access-%d", p.issued)
	refresh := fmt.Sprintf("refresh-%d", p.issued)
	p.validTokens[access] = true
	p.refreshToken = refresh
	return access, refresh
}

func (p *Platform) handle(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/v2/token/get":
		p.handleExchange(w, r)
	case "/api/v2/token/refresh":
		p.handleRefresh(w, r)
	default:
		p.handleAPI(w, r)
	}
}

// handleExchange accepts each auth code once. Reusing a code answers with
// the already-authorized code.
func (p *Platform) handleExchange(w http.ResponseWriter, r *http.Request) {
	p.ExchangeCalls.Add(1)
	code := r.URL.Query().Get("auth_code")
	if code == "" || r.URL.Query().Get("grant_type") != "authorized_code" {
		WriteEnvelope(w, http.StatusOK, 36004001, "invalid auth code", nil)
		return
	}
	p.mu.Lock()
	if p.usedCodes[code] {
		p.mu.Unlock()
		WriteEnvelope(w, http.StatusOK, AlreadyAuthorizedCode, "shop is already authorized", nil)
		return
	}
	p.usedCodes[code] = true
	access, refresh := p.issueLocked()
	p.mu.Unlock()
	WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{
		"access_token":           access,
		"access_token_expire_in": 7200,
		"refresh_token":          refresh,
		"open_id":                "open_fake",
		"seller_name":            "Fake seller",
		"granted_scopes":         []string{"seller.product.basic", "seller.order.info"},
	})
}

func (p *Platform) handleRefresh(w http.ResponseWriter, r *http.Request) {
	p.RefreshCalls.Add(1)
	p.mu.Lock()
	if r.URL.Query().Get("refresh_token") != p.refreshToken {
		p.mu.Unlock()
		WriteEnvelope(w, http.StatusOK, 36004005, "refresh token mismatch", nil)
		return
	}
	access, refresh := p.issueLocked()
	p.mu.Unlock()
	WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{
		"access_token":           access,
		"access_token_expire_in": 7200,
		"refresh_token":          refresh,
	})
}

func (p *Platform) handleAPI(w http.ResponseWriter, r *http.Request) {
	p.APICalls.Add(1)
	body, _ := io.ReadAll(r.Body)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	multipart := strings.HasPrefix(mediaType, "multipart/")

	query := map[string]any{}
	sign := ""
	for key, values := range r.URL.Query() {
		if key == "sign" {
			sign = values[0]
			continue
		}
		query[key] = values[0]
	}
	input := core.SignInput{Path: r.URL.Path, Query: query, Multipart: multipart}
	if !multipart && len(body) > 0 {
		input.Body = json.RawMessage(body)
	}
	expected, err := core.Sign(p.secret, input)
	if err != nil || expected != sign {
		p.BadSignatures.Add(1)
		WriteEnvelope(w, http.StatusOK, 106001, "invalid signature", nil)
		return
	}

	p.mu.Lock()
	valid := p.validTokens[r.Header.Get(core.AccessTokenHeader)]
	p.mu.Unlock()
	if !valid {
		WriteEnvelope(w, http.StatusUnauthorized, 105002, "access token is expired", nil)
		return
	}

	if strings.HasPrefix(r.URL.Path, "/authorization/") {
		WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{"shops": []map[string]any{{
			"cipher":      Cipher,
			"code":        "FAKE01",
			"id":          ShopID,
			"name":        ShopName,
			"region":      "GB",
			"seller_type": "LOCAL",
		}}})
		return
	}
	WriteEnvelope(w, http.StatusOK, 0, "success", map[string]any{
		"path":        r.URL.Path,
		"shop_cipher": r.URL.Query().Get("shop_cipher"),
	})
}

func WriteEnvelope(w http.ResponseWriter, status int, code int, message string, data any) {
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

package core

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// appIdentity is the application key/secret pair used to sign a call.
type appIdentity struct {
	Key    string
	Secret string
}

// signedClient turns a Request into a signed outbound call. It injects the
// shop cipher, app key and timestamp, signs, and attaches the access token
// as a header.
type signedClient struct {
	cfg       Config
	transport *httpTransport
	limiter   *rate.Limiter
	now       func() time.Time
	newID     func() string
}

func newSignedClient(cfg Config, transport *httpTransport, limiter *rate.Limiter, now func() time.Time) *signedClient {
	if now == nil {
		now = time.Now
	}
	return &signedClient{
		cfg:       cfg,
		transport: transport,
		limiter:   limiter,
		now:       now,
		newID:     uuid.NewString,
	}
}

func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

func (c *signedClient) call(
	ctx context.Context,
	app appIdentity,
	accessToken string,
	shopCipher string,
	req Request,
) (Response, error) {
	if c == nil || c.transport == nil {
		return Response{}, NewError(ErrorInternal, "tiktokshop: signed client is not configured", nil)
	}
	path := "/" + strings.TrimLeft(strings.TrimSpace(req.Path), "/")
	if path == "/" {
		return Response{}, NewError(ErrorSigningInputInvalid, "tiktokshop: request path is required", nil)
	}
	if strings.TrimSpace(app.Key) == "" {
		return Response{}, NewError(ErrorSigningInputInvalid, "tiktokshop: app key is required", nil)
	}

	query := req.cloneQuery()
	delete(query, "sign")
	delete(query, "access_token")
	if req.OmitShopCipher {
		delete(query, "shop_cipher")
	} else if existing, ok, _ := FormatQueryValue(query["shop_cipher"]); !ok || existing == "" {
		if cipher := strings.TrimSpace(shopCipher); cipher != "" {
			query["shop_cipher"] = cipher
		}
	}
	query["app_key"] = strings.TrimSpace(app.Key)
	query["timestamp"] = strconv.FormatInt(c.now().Unix(), 10)

	var body []byte
	if !req.IsMultipart() {
		encoded, err := EncodeBody(req.Body)
		if err != nil {
			return Response{}, err
		}
		body = encoded
	}

	signature, err := Sign(app.Secret, SignInput{
		Path:      path,
		Query:     query,
		Body:      body,
		Multipart: req.IsMultipart(),
	})
	if err != nil {
		return Response{}, err
	}
	query["sign"] = signature

	headers := http.Header{}
	if token := strings.TrimSpace(accessToken); token != "" {
		headers.Set(AccessTokenHeader, token)
	}
	if c.newID != nil {
		headers.Set(RequestIDHeader, c.newID())
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, WrapError(err, ErrorTransport, "tiktokshop: rate limiter wait", map[string]any{"path": path})
		}
	}

	return c.transport.do(ctx, outboundCall{
		Method:  req.method(),
		URL:     strings.TrimRight(c.cfg.BaseURL, "/") + path,
		Query:   query,
		Body:    body,
		Upload:  req.Upload,
		Headers: headers,
		Timeout: c.timeoutFor(req),
	})
}

func (c *signedClient) timeoutFor(req Request) time.Duration {
	if req.Timeout > 0 {
		return req.Timeout
	}
	if req.Catalog {
		return c.cfg.CatalogTimeout()
	}
	return c.cfg.Timeout()
}

// isAuthFailure reports whether resp means the access token was rejected.
func isAuthFailure(cfg Config, resp Response) bool {
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return true
	}
	for _, code := range cfg.AuthFailureCodes {
		if resp.Code != 0 && resp.Code == code {
			return true
		}
	}
	return false
}

func upstreamError(resp Response, path string) error {
	message := strings.TrimSpace(resp.Message)
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return NewError(ErrorUpstream, "tiktokshop: api error: "+message, map[string]any{
		"path":          path,
		"status":        resp.StatusCode,
		"upstream_code": resp.Code,
		"request_id":    resp.RequestID,
	})
}

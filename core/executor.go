package core

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

// Caller performs signed API calls for one tenant.
type Caller interface {
	Do(ctx context.Context, req Request) (Response, error)
}

// Executor sends authenticated requests for a single tenant. An auth failure
// triggers exactly one forced refresh and one replay.
type Executor struct {
	tenantID string
	cfg      Config
	tokens   *TokenManager
	client   *signedClient
	observer observer
}

func (e *Executor) TenantID() string {
	if e == nil {
		return ""
	}
	return e.tenantID
}

// Do ensures the credential is fresh, signs and sends req. Non-zero platform
// codes are returned as ErrorUpstream alongside the decoded response.
func (e *Executor) Do(ctx context.Context, req Request) (resp Response, err error) {
	if e == nil || e.tokens == nil || e.client == nil {
		return Response{}, NewError(ErrorInternal, "tiktokshop: executor is not configured", nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	path := strings.TrimSpace(req.Path)
	replayed := false
	defer func() {
		e.observer.observeOperation(ctx, startedAt, "request", err, map[string]any{
			"tenant_id":     e.tenantID,
			"path":          path,
			"replayed":      replayed,
			"upstream_code": resp.Code,
			"request_id":    resp.RequestID,
		})
	}()

	credential, err := e.tokens.EnsureFresh(ctx, e.tenantID)
	if err != nil {
		return Response{}, err
	}

	resp, err = e.send(ctx, credential, req)
	if err != nil {
		return resp, err
	}
	if !isAuthFailure(e.cfg, resp) {
		return resp, e.checkResponse(resp, path)
	}

	if !credential.CanRefresh() {
		return resp, e.unauthorized(resp, path, "tiktokshop: access token rejected and no refresh path available")
	}
	refreshed, err := e.tokens.ForceRefresh(ctx, e.tenantID, credential.AccessToken)
	if err != nil {
		return resp, err
	}

	replayed = true
	resp, err = e.send(ctx, refreshed, req)
	if err != nil {
		return resp, err
	}
	if isAuthFailure(e.cfg, resp) {
		return resp, e.unauthorized(resp, path, "tiktokshop: access token rejected after refresh")
	}
	return resp, e.checkResponse(resp, path)
}

// send performs one signed call, retrying transport failures only.
func (e *Executor) send(ctx context.Context, credential Credential, req Request) (Response, error) {
	app := e.tokens.appFor(credential)
	attempts := e.cfg.Retry.MaxAttempts
	if attempts <= 1 {
		return e.client.call(ctx, app, credential.AccessToken, credential.ShopCipher, req)
	}
	delay := e.cfg.RetryDelay()
	if delay <= 0 {
		delay = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	var resp Response
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		out, callErr := e.client.call(ctx, app, credential.AccessToken, credential.ShopCipher, req)
		resp = out
		if callErr != nil && IsRetryable(callErr) && ctx.Err() == nil {
			return retry.RetryableError(callErr)
		}
		return callErr
	})
	if err != nil && ErrorKind(err) == "" {
		err = WrapError(err, ErrorTransport, "tiktokshop: request aborted", map[string]any{"path": req.Path})
	}
	return resp, err
}

func (e *Executor) checkResponse(resp Response, path string) error {
	if resp.Code != 0 || resp.StatusCode >= 400 {
		return upstreamError(resp, path)
	}
	return nil
}

func (e *Executor) unauthorized(resp Response, path string, message string) error {
	return NewError(ErrorUpstreamUnauthorized, message, map[string]any{
		"tenant_id":     e.tenantID,
		"path":          path,
		"status":        resp.StatusCode,
		"upstream_code": resp.Code,
		"request_id":    resp.RequestID,
	})
}

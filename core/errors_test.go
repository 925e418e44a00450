package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewError_CarriesKindAndStatus(t *testing.T) {
	cases := []struct {
		kind   string
		status int
	}{
		{ErrorCredentialNotFound, http.StatusNotFound},
		{ErrorUpstreamUnauthorized, http.StatusUnauthorized},
		{ErrorWebhookSignatureInvalid, http.StatusUnauthorized},
		{ErrorTransport, http.StatusServiceUnavailable},
		{ErrorUpstream, http.StatusBadGateway},
		{ErrorAuthExchangeFailed, http.StatusBadGateway},
		{ErrorBadInput, http.StatusBadRequest},
	}
	for _, tc := range cases {
		err := NewError(tc.kind, "message", map[string]any{"tenant_id": "t1"})
		if ErrorKind(err) != tc.kind {
			t.Fatalf("expected kind %s, got %s", tc.kind, ErrorKind(err))
		}
		if err.Code != tc.status {
			t.Fatalf("%s: expected status %d, got %d", tc.kind, tc.status, err.Code)
		}
		if err.Metadata["tenant_id"] != "t1" {
			t.Fatalf("%s: expected metadata to be attached", tc.kind)
		}
	}
}

func TestWrapError_PreservesCauseAndOuterKind(t *testing.T) {
	cause := stderrors.New("connection reset")
	inner := WrapError(cause, ErrorTransport, "request failed", nil)
	outer := WrapError(inner, ErrorRefreshFailed, "refresh failed", nil)

	if ErrorKind(outer) != ErrorRefreshFailed {
		t.Fatalf("expected outer kind, got %s", ErrorKind(outer))
	}
	if !stderrors.Is(outer, cause) {
		t.Fatalf("expected cause in chain")
	}
	if IsRetryable(outer) {
		t.Fatalf("refresh failures are not retryable")
	}
	if !IsRetryable(inner) {
		t.Fatalf("transport failures are retryable")
	}
}

func TestErrorKind_PlainErrors(t *testing.T) {
	if ErrorKind(nil) != "" || ErrorKind(stderrors.New("plain")) != "" {
		t.Fatalf("expected empty kind for non envelope errors")
	}
	if IsKind(nil, ErrorTransport) {
		t.Fatalf("nil is never a kind")
	}
}

func TestMapError_NormalizesPlainErrors(t *testing.T) {
	mapped := MapError(stderrors.New("unexpected"))
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.Code == 0 || mapped.TextCode == "" {
		t.Fatalf("expected code and text code, got %d %q", mapped.Code, mapped.TextCode)
	}

	original := NewError(ErrorUpstream, "api error", nil)
	if MapError(original) != original {
		t.Fatalf("expected envelope to pass through")
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
	var richErr *goerrors.Error
	if !goerrors.As(MapError(stderrors.New("x")), &richErr) {
		t.Fatalf("expected go-errors envelope")
	}
}

package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

// Verifier checks the signature header TikTok Shop attaches to webhook
// deliveries: base64(HMAC-SHA256(secret, raw body)).
type Verifier struct {
	Secret string
	Header string
}

func NewVerifier(secret string, header string) *Verifier {
	header = strings.TrimSpace(header)
	if header == "" {
		header = core.DefaultWebhookHeader
	}
	return &Verifier{Secret: secret, Header: header}
}

// Signature returns the header value expected for body.
func Signature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify compares signature with the expected value for the raw, unparsed
// body. A missing secret or signature is a rejection.
func (v *Verifier) Verify(body []byte, signature string) error {
	if v == nil || v.Secret == "" {
		return core.NewError(core.ErrorWebhookSignatureInvalid, "tiktokshop: webhook secret is not configured", nil)
	}
	signature = strings.TrimSpace(signature)
	if signature == "" {
		return core.NewError(core.ErrorWebhookSignatureInvalid, "tiktokshop: webhook signature header is missing", map[string]any{
			"header": v.headerName(),
		})
	}
	expected := Signature(v.Secret, body)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return core.NewError(core.ErrorWebhookSignatureInvalid, "tiktokshop: webhook signature mismatch", nil)
	}
	return nil
}

// VerifyRequest looks the signature header up case-insensitively and
// verifies body against it.
func (v *Verifier) VerifyRequest(body []byte, headers http.Header) error {
	return v.Verify(body, HeaderValue(headers, v.headerName()))
}

func (v *Verifier) headerName() string {
	if v == nil || strings.TrimSpace(v.Header) == "" {
		return core.DefaultWebhookHeader
	}
	return strings.TrimSpace(v.Header)
}

// HeaderValue returns the first value of key, matching names
// case-insensitively even when headers were not canonicalized.
func HeaderValue(headers http.Header, key string) string {
	if len(headers) == 0 {
		return ""
	}
	key = strings.TrimSpace(key)
	if value := headers.Get(key); value != "" {
		return strings.TrimSpace(value)
	}
	for existing, values := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), key) && len(values) > 0 {
			return strings.TrimSpace(values[0])
		}
	}
	return ""
}

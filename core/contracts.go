package core

import (
	"context"
	"net/http"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// CredentialStore persists one Credential per tenant. Get returns an error of
// kind ErrorCredentialNotFound for unknown tenants. Writes must be atomic:
// a concurrent Get observes either the previous or the new record.
//
// App key and secret are stored on each record so tenants may use distinct
// applications; blank values fall back to the configured application.
type CredentialStore interface {
	Get(ctx context.Context, tenantID string) (Credential, error)
	Upsert(ctx context.Context, credential Credential) (Credential, error)
	UpdateTokens(ctx context.Context, tenantID string, update TokenUpdate) (Credential, error)
}

// SourceCredentialReader is implemented by stores that front another store
// with a cache. GetFromSource skips the cache; the token manager uses it for
// the re-check it makes under the tenant lock.
type SourceCredentialReader interface {
	GetFromSource(ctx context.Context, tenantID string) (Credential, error)
}

// AuthStateStore maps authorization state nonces to tenants for a bounded
// time. Consume deletes the entry; expired or unknown states report ok=false.
type AuthStateStore interface {
	Save(ctx context.Context, state string, tenantID string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (tenantID string, ok bool, err error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// WebhookDispatcher hands accepted webhook events to application logic.
type WebhookDispatcher interface {
	Dispatch(ctx context.Context, event WebhookEvent) error
}

type WebhookDispatcherFunc func(ctx context.Context, event WebhookEvent) error

func (f WebhookDispatcherFunc) Dispatch(ctx context.Context, event WebhookEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

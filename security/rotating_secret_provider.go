package security

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
)

// SecretProviderDiagnostic reports a decrypt served by a retired key or a
// refused one.
type SecretProviderDiagnostic struct {
	OccurredAt time.Time
	Operation  string
	Outcome    string
	KeyID      string
	Version    int
	Error      string
}

type SecretProviderDiagnosticHook func(event SecretProviderDiagnostic)

type RotationOption func(*RotatingSecretProvider)

type retiredKey struct {
	provider *AppKeySecretProvider
	window   KeyRotationWindow
}

// RotatingSecretProvider encrypts with the active key and decrypts with
// whichever key sealed the value, as named by the envelope. Retired keys
// only decrypt inside their rotation window.
type RotatingSecretProvider struct {
	active  *AppKeySecretProvider
	retired map[string]retiredKey
	hook    SecretProviderDiagnosticHook
	now     func() time.Time
}

func NewRotatingSecretProvider(active *AppKeySecretProvider, opts ...RotationOption) (*RotatingSecretProvider, error) {
	if active == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "security: active secret provider is required", nil)
	}
	provider := &RotatingSecretProvider{
		active:  active,
		retired: map[string]retiredKey{},
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func WithRetiredKey(provider *AppKeySecretProvider, window KeyRotationWindow) RotationOption {
	return func(r *RotatingSecretProvider) {
		if provider == nil {
			return
		}
		r.retired[keyLabel(provider.KeyID(), provider.Version())] = retiredKey{provider: provider, window: window}
	}
}

func WithSecretProviderDiagnostics(hook SecretProviderDiagnosticHook) RotationOption {
	return func(r *RotatingSecretProvider) {
		r.hook = hook
	}
}

func WithRotationClock(now func() time.Time) RotationOption {
	return func(r *RotatingSecretProvider) {
		if now != nil {
			r.now = now
		}
	}
}

func (p *RotatingSecretProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, core.NewError(core.ErrorInternal, "security: secret provider is nil", nil)
	}
	return p.active.Encrypt(ctx, plaintext)
}

func (p *RotatingSecretProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, core.NewError(core.ErrorInternal, "security: secret provider is nil", nil)
	}
	meta, err := ParseEnvelopeMetadata(ciphertext)
	if err != nil {
		return nil, err
	}
	label := keyLabel(meta.KeyID, meta.Version)
	if label == keyLabel(p.active.KeyID(), p.active.Version()) || meta.KeyID == "" {
		return p.active.Decrypt(ctx, ciphertext)
	}
	retired, ok := p.retired[label]
	if !ok {
		p.emit("decrypt", "unknown_key", meta, nil)
		return nil, core.NewError(core.ErrorConfigInvalid, "security: no key configured for envelope", map[string]any{
			"key_id":  meta.KeyID,
			"version": meta.Version,
		})
	}
	if !retired.window.Allows(p.now()) {
		p.emit("decrypt", "window_closed", meta, nil)
		return nil, core.NewError(core.ErrorConfigInvalid, "security: retired key is outside its rotation window", map[string]any{
			"key_id":  meta.KeyID,
			"version": meta.Version,
		})
	}
	plaintext, err := retired.provider.Decrypt(ctx, ciphertext)
	if err != nil {
		p.emit("decrypt", "retired_failed", meta, err)
		return nil, err
	}
	p.emit("decrypt", "retired_key", meta, nil)
	return plaintext, nil
}

// KeyID names the active key and version, so stores can tell when a value
// was sealed under an older key.
func (p *RotatingSecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return keyLabel(p.active.KeyID(), p.active.Version())
}

func (p *RotatingSecretProvider) emit(operation string, outcome string, meta EnvelopeMetadata, err error) {
	if p.hook == nil {
		return
	}
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.hook(SecretProviderDiagnostic{
		OccurredAt: p.now().UTC(),
		Operation:  operation,
		Outcome:    outcome,
		KeyID:      meta.KeyID,
		Version:    meta.Version,
		Error:      msg,
	})
}

func keyLabel(keyID string, version int) string {
	return fmt.Sprintf("%s@v%d", keyID, version)
}

var _ core.SecretProvider = (*RotatingSecretProvider)(nil)

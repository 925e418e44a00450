package security

import (
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/goliatone/go-tiktokshop/core"
)

const (
	envelopePrefix    = "tiktokshop.secret.v1:"
	envelopeAlgorithm = "aes-256-gcm"
)

type envelope struct {
	KeyID      string `json:"kid"`
	Version    int    `json:"ver"`
	Algorithm  string `json:"alg"`
	Nonce      string `json:"nonce,omitempty"`
	Ciphertext string `json:"ciphertext"`
}

// EnvelopeMetadata describes a sealed value without opening it.
type EnvelopeMetadata struct {
	HasPrefix bool
	KeyID     string
	Version   int
	Algorithm string
}

func ParseEnvelopeMetadata(ciphertext []byte) (EnvelopeMetadata, error) {
	env, hasPrefix, err := decodeEnvelope(ciphertext)
	if err != nil {
		return EnvelopeMetadata{}, err
	}
	return EnvelopeMetadata{
		HasPrefix: hasPrefix,
		KeyID:     env.KeyID,
		Version:   env.Version,
		Algorithm: env.Algorithm,
	}, nil
}

func encodeEnvelope(env envelope) ([]byte, error) {
	data, err := json.Marshal(normalizeEnvelope(env))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorInternal, "security: encode envelope", nil)
	}
	return append([]byte(envelopePrefix), data...), nil
}

// decodeEnvelope accepts payloads with or without the prefix.
func decodeEnvelope(ciphertext []byte) (envelope, bool, error) {
	if len(ciphertext) == 0 {
		return envelope{}, false, core.NewError(core.ErrorBadInput, "security: ciphertext is required", nil)
	}
	payload := string(ciphertext)
	hasPrefix := strings.HasPrefix(payload, envelopePrefix)
	payload = strings.TrimPrefix(payload, envelopePrefix)

	parsed := envelope{}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return envelope{}, false, core.WrapError(err, core.ErrorBadInput, "security: decode envelope", nil)
	}
	parsed = normalizeEnvelope(parsed)
	if parsed.Ciphertext == "" {
		return envelope{}, false, core.NewError(core.ErrorBadInput, "security: envelope ciphertext is required", nil)
	}
	return parsed, hasPrefix, nil
}

func normalizeEnvelope(in envelope) envelope {
	in.KeyID = strings.TrimSpace(in.KeyID)
	in.Algorithm = strings.ToLower(strings.TrimSpace(in.Algorithm))
	return in
}

func encodePayload(value []byte) string {
	if len(value) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(value)
}

func decodePayload(field string, value string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorBadInput, "security: decode "+field, nil)
	}
	return decoded, nil
}

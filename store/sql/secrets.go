package sqlstore

import (
	"context"

	"github.com/goliatone/go-tiktokshop/core"
)

// secretCodec seals token and app secret columns. Without a provider values
// are stored as given.
type secretCodec struct {
	provider core.SecretProvider
}

func (c secretCodec) keyID() string {
	if identified, ok := c.provider.(interface{ KeyID() string }); ok {
		return identified.KeyID()
	}
	if c.provider != nil {
		return "sealed"
	}
	return ""
}

func (c secretCodec) seal(ctx context.Context, value string) (string, error) {
	if value == "" || c.provider == nil {
		return value, nil
	}
	sealed, err := c.provider.Encrypt(ctx, []byte(value))
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "tiktokshop: seal credential secret", nil)
	}
	return string(sealed), nil
}

func (c secretCodec) open(ctx context.Context, value string, keyID string) (string, error) {
	if value == "" || keyID == "" {
		return value, nil
	}
	if c.provider == nil {
		return "", core.NewError(core.ErrorConfigInvalid, "tiktokshop: credential is sealed but no secret provider is configured", map[string]any{
			"encryption_key_id": keyID,
		})
	}
	opened, err := c.provider.Decrypt(ctx, []byte(value))
	if err != nil {
		return "", core.WrapError(err, core.ErrorInternal, "tiktokshop: open credential secret", map[string]any{
			"encryption_key_id": keyID,
		})
	}
	return string(opened), nil
}

package sqlstore

import (
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/goliatone/go-tiktokshop/webhooks"
	"github.com/uptrace/bun"
)

var (
	_ core.CredentialStore      = (*CredentialStore)(nil)
	_ core.CredentialStore      = (*CachedCredentialStore)(nil)
	_ core.AuthStateStore       = (*AuthStateStore)(nil)
	_ webhooks.DeliveryLedger   = (*WebhookDeliveryStore)(nil)
	_ interface{ DB() *bun.DB } = (*RepositoryFactory)(nil)
)

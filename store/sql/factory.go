package sqlstore

import (
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the SQL stores over one bun database.
type RepositoryFactory struct {
	db *bun.DB

	credentialOptions []CredentialStoreOption
	keepPayloads      bool

	credentialStore      *CredentialStore
	authStateStore       *AuthStateStore
	webhookDeliveryStore *WebhookDeliveryStore
}

type FactoryOption func(*RepositoryFactory)

// WithCredentialOptions forwards options to the credential store.
func WithCredentialOptions(opts ...CredentialStoreOption) FactoryOption {
	return func(f *RepositoryFactory) {
		f.credentialOptions = append(f.credentialOptions, opts...)
	}
}

// WithWebhookPayloads keeps raw webhook bodies on delivery records.
func WithWebhookPayloads(enabled bool) FactoryOption {
	return func(f *RepositoryFactory) {
		f.keepPayloads = enabled
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as
// a go-persistence-bun client.
func (f *RepositoryFactory) BuildStores(persistenceClient any) error {
	if f == nil {
		return core.NewError(core.ErrorInternal, "sqlstore: repository factory is nil", nil)
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return err
		}
		f.db = db
	}
	if f.credentialStore != nil {
		return nil
	}
	return f.initStores()
}

func (f *RepositoryFactory) CredentialStore() *CredentialStore {
	if f == nil {
		return nil
	}
	return f.credentialStore
}

func (f *RepositoryFactory) AuthStateStore() *AuthStateStore {
	if f == nil {
		return nil
	}
	return f.authStateStore
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.webhookDeliveryStore
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) initStores() error {
	credentialStore, err := NewCredentialStore(f.db, f.credentialOptions...)
	if err != nil {
		return err
	}
	authStateStore, err := NewAuthStateStore(f.db)
	if err != nil {
		return err
	}
	webhookDeliveryStore, err := NewWebhookDeliveryStore(f.db, f.keepPayloads)
	if err != nil {
		return err
	}
	f.credentialStore = credentialStore
	f.authStateStore = authStateStore
	f.webhookDeliveryStore = webhookDeliveryStore
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: persistence client is required", nil)
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: persistence client returned nil bun db", nil)
		}
		return db, nil
	default:
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: unsupported persistence client type", map[string]any{
			"type": typeName(candidate),
		})
	}
}

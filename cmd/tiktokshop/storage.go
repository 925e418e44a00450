package main

import (
	"context"
	"database/sql"
	"strings"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tiktokshop/core"
	tiktokmigrations "github.com/goliatone/go-tiktokshop/migrations"
	"github.com/goliatone/go-tiktokshop/security"
	redisstore "github.com/goliatone/go-tiktokshop/store/redis"
	sqlstore "github.com/goliatone/go-tiktokshop/store/sql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type persistenceConfig struct {
	driver string
	server string
}

func (c persistenceConfig) GetDebug() bool                { return false }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c persistenceConfig) GetOtelIdentifier() string     { return "tiktokshop" }

// databaseDriver picks postgres for postgres URLs and sqlite otherwise.
func databaseDriver(databaseURL string) (driver string, dialect string) {
	lower := strings.ToLower(strings.TrimSpace(databaseURL))
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres", tiktokmigrations.DialectPostgres
	}
	return "sqlite3", tiktokmigrations.DialectSQLite
}

func openPersistence(ctx context.Context, databaseURL string) (*persistence.Client, error) {
	driver, dialectName := databaseDriver(databaseURL)
	sqlDB, err := sql.Open(driver, databaseURL)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorConfigInvalid, "tiktokshop: open database", map[string]any{"driver": driver})
	}
	var dialect schema.Dialect = pgdialect.New()
	if dialectName == tiktokmigrations.DialectSQLite {
		sqlDB.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	}

	client, err := persistence.New(persistenceConfig{driver: driver, server: databaseURL}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	err = tiktokmigrations.Register(client, dialectName)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

type stores struct {
	factory     *sqlstore.RepositoryFactory
	credentials core.CredentialStore
	states      core.AuthStateStore
}

func buildStores(client *persistence.Client, s settings) (stores, error) {
	var credentialOpts []sqlstore.CredentialStoreOption
	if key := strings.TrimSpace(s.SecretKey); key != "" {
		provider, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			return stores{}, err
		}
		credentialOpts = append(credentialOpts, sqlstore.WithSecretProvider(provider))
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithCredentialOptions(credentialOpts...))
	if err != nil {
		return stores{}, err
	}

	cacheConfig := repositorycache.DefaultConfig()
	cacheConfig.TTL = time.Minute
	cacheService, err := repositorycache.NewCacheService(cacheConfig)
	if err != nil {
		return stores{}, err
	}
	credentials, err := sqlstore.NewCachedCredentialStore(factory.CredentialStore(), cacheService)
	if err != nil {
		return stores{}, err
	}

	out := stores{factory: factory, credentials: credentials, states: factory.AuthStateStore()}
	if redisURL := strings.TrimSpace(s.RedisURL); redisURL != "" {
		redisClient, err := redisstore.NewClient(redisURL)
		if err != nil {
			return stores{}, err
		}
		states, err := redisstore.NewAuthStateStore(redisClient)
		if err != nil {
			return stores{}, err
		}
		out.states = states
	}
	return out, nil
}

package sqlstore

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"sync"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tiktokshop/core"
)

const credentialCacheKeyPrefix = "tiktokshop::credential::v1"

// CachedCredentialStore serves Get from a read-through cache. Writes go
// straight to base and then move the tenant to a new cache generation, so a
// read that fetched the row before the write can only fill a key no later
// Get consults.
type CachedCredentialStore struct {
	base  core.CredentialStore
	cache repositorycache.CacheService

	mu          sync.Mutex
	generations map[string]uint64
}

func NewCachedCredentialStore(
	base core.CredentialStore,
	cacheService repositorycache.CacheService,
) (*CachedCredentialStore, error) {
	if base == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: base credential store is required", nil)
	}
	if cacheService == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: credential cache service is required", nil)
	}
	return &CachedCredentialStore{
		base:        base,
		cache:       cacheService,
		generations: map[string]uint64{},
	}, nil
}

// CredentialCacheKey is tiktokshop::credential::v1::<tenant_id>, the tenant
// segment URL-path escaped. Entries live under it with a ::g<generation>
// suffix.
func CredentialCacheKey(tenantID string) string {
	return credentialCacheKeyPrefix + "::" + url.PathEscape(strings.TrimSpace(tenantID))
}

func generationKey(tenantID string, generation uint64) string {
	return CredentialCacheKey(tenantID) + "::g" + strconv.FormatUint(generation, 10)
}

func (s *CachedCredentialStore) generation(tenantID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generations[tenantID]
}

// advance moves tenantID to a new generation and returns the key of the one
// it replaced.
func (s *CachedCredentialStore) advance(tenantID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous := s.generations[tenantID]
	s.generations[tenantID] = previous + 1
	return generationKey(tenantID, previous)
}

func (s *CachedCredentialStore) Get(ctx context.Context, tenantID string) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: cached credential store is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	key := generationKey(tenantID, s.generation(tenantID))
	credential, err := repositorycache.GetOrFetch(ctx, s.cache, key, func(ctx context.Context) (core.Credential, error) {
		fetched, fetchErr := s.base.Get(ctx, tenantID)
		if fetchErr != nil {
			return core.Credential{}, fetchErr
		}
		return fetched.Clone(), nil
	})
	if err != nil {
		return core.Credential{}, err
	}
	return credential.Clone(), nil
}

// GetFromSource reads base without touching the cache.
func (s *CachedCredentialStore) GetFromSource(ctx context.Context, tenantID string) (core.Credential, error) {
	if s == nil || s.base == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: cached credential store is not configured", nil)
	}
	return s.base.Get(ctx, strings.TrimSpace(tenantID))
}

func (s *CachedCredentialStore) Upsert(ctx context.Context, credential core.Credential) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: cached credential store is not configured", nil)
	}
	saved, err := s.base.Upsert(ctx, credential)
	if err != nil {
		return core.Credential{}, err
	}
	if err := s.invalidate(ctx, saved.TenantID); err != nil {
		return core.Credential{}, err
	}
	return saved, nil
}

func (s *CachedCredentialStore) UpdateTokens(ctx context.Context, tenantID string, update core.TokenUpdate) (core.Credential, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: cached credential store is not configured", nil)
	}
	saved, err := s.base.UpdateTokens(ctx, tenantID, update)
	if err != nil {
		return core.Credential{}, err
	}
	if err := s.invalidate(ctx, tenantID); err != nil {
		return core.Credential{}, err
	}
	return saved, nil
}

// invalidate runs after the write committed. The old generation key is
// deleted only to free memory; correctness rests on the generation bump.
func (s *CachedCredentialStore) invalidate(ctx context.Context, tenantID string) error {
	return s.cache.Delete(ctx, s.advance(strings.TrimSpace(tenantID)))
}

var _ core.SourceCredentialReader = (*CachedCredentialStore)(nil)

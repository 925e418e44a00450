package api

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-tiktokshop/core"
)

const catalogCacheKeyPrefix = "tiktokshop::catalog::v1"

// CatalogCache memoizes slow-changing catalog reads (category trees,
// attributes, rules, brands). Only successful responses are cached.
type CatalogCache struct {
	cache repositorycache.CacheService
}

func NewCatalogCache(cacheService repositorycache.CacheService) *CatalogCache {
	if cacheService == nil {
		return nil
	}
	return &CatalogCache{cache: cacheService}
}

// NewCatalogCacheFromConfig builds the default in-process cache service, or
// returns nil when caching is disabled.
func NewCatalogCacheFromConfig(cfg core.CacheConfig) (*CatalogCache, error) {
	if cfg.Disabled {
		return nil, nil
	}
	config := repositorycache.DefaultConfig()
	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	config.TTL = ttl
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		return nil, core.WrapError(err, core.ErrorConfigInvalid, "tiktokshop: build catalog cache", nil)
	}
	return NewCatalogCache(service), nil
}

// CatalogCacheKey is tiktokshop::catalog::v1::<scope>::<path>::<query>, each
// segment path-escaped and the query rendered with sorted keys.
func CatalogCacheKey(scope string, req core.Request) string {
	keys := make([]string, 0, len(req.Query))
	for key := range req.Query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	values := url.Values{}
	for _, key := range keys {
		formatted, ok, err := core.FormatQueryValue(req.Query[key])
		if err != nil || !ok {
			continue
		}
		values.Set(key, formatted)
	}
	segments := []string{
		catalogCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(scope)),
		url.PathEscape(strings.ToUpper(strings.TrimSpace(req.Method))),
		url.PathEscape(strings.TrimSpace(req.Path)),
		url.PathEscape(values.Encode()),
	}
	return strings.Join(segments, "::")
}

func (c *CatalogCache) Fetch(
	ctx context.Context,
	scope string,
	req core.Request,
	fetch func(ctx context.Context) (core.Response, error),
) (core.Response, error) {
	if c == nil || c.cache == nil {
		return fetch(ctx)
	}
	return repositorycache.GetOrFetch(ctx, c.cache, CatalogCacheKey(scope, req), func(ctx context.Context) (core.Response, error) {
		resp, err := fetch(ctx)
		if err != nil {
			return core.Response{}, err
		}
		resp.Header = nil
		return resp, nil
	})
}

// Invalidate drops one cached lookup.
func (c *CatalogCache) Invalidate(ctx context.Context, scope string, req core.Request) error {
	if c == nil || c.cache == nil {
		return nil
	}
	return c.cache.Delete(ctx, CatalogCacheKey(scope, req))
}

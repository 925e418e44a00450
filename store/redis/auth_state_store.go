package redisstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
	"github.com/redis/go-redis/v9"
)

// Client is the subset of go-redis used by the state store. *redis.Client
// and *redis.ClusterClient satisfy it.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	GetDel(ctx context.Context, key string) *redis.StringCmd
}

// AuthStateStore keeps authorization state nonces in Redis with a native
// TTL. Consume uses GETDEL so a state can be redeemed once across instances.
type AuthStateStore struct {
	client Client
	prefix string
}

type Option func(*AuthStateStore)

// WithKeyPrefix replaces core.StateKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(s *AuthStateStore) {
		if prefix = strings.TrimSpace(prefix); prefix != "" {
			s.prefix = prefix
		}
	}
}

func NewAuthStateStore(client Client, opts ...Option) (*AuthStateStore, error) {
	if client == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "redisstore: redis client is required", nil)
	}
	store := &AuthStateStore{client: client, prefix: core.StateKeyPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

// NewClient parses a redis:// URL into a client.
func NewClient(rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, core.WrapError(err, core.ErrorConfigInvalid, "redisstore: invalid redis url", nil)
	}
	return redis.NewClient(options), nil
}

func (s *AuthStateStore) Key(state string) string {
	return s.prefix + strings.TrimSpace(state)
}

func (s *AuthStateStore) Save(ctx context.Context, state string, tenantID string, ttl time.Duration) error {
	if s == nil || s.client == nil {
		return core.NewError(core.ErrorInternal, "redisstore: auth state store is not configured", nil)
	}
	if strings.TrimSpace(state) == "" {
		return core.NewError(core.ErrorBadInput, "redisstore: state is required", nil)
	}
	if ttl <= 0 {
		ttl = core.DefaultStateTTL
	}
	if err := s.client.Set(ctx, s.Key(state), strings.TrimSpace(tenantID), ttl).Err(); err != nil {
		return core.WrapError(err, core.ErrorInternal, "redisstore: save auth state", nil)
	}
	return nil
}

func (s *AuthStateStore) Consume(ctx context.Context, state string) (string, bool, error) {
	if s == nil || s.client == nil {
		return "", false, core.NewError(core.ErrorInternal, "redisstore: auth state store is not configured", nil)
	}
	if strings.TrimSpace(state) == "" {
		return "", false, nil
	}
	tenantID, err := s.client.GetDel(ctx, s.Key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, core.WrapError(err, core.ErrorInternal, "redisstore: consume auth state", nil)
	}
	return tenantID, true, nil
}

var _ core.AuthStateStore = (*AuthStateStore)(nil)

package redisstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
	"github.com/redis/go-redis/v9"
)

type fakeEntry struct {
	value     string
	expiresAt time.Time
}

type fakeClient struct {
	mu      sync.Mutex
	entries map[string]fakeEntry
	now     time.Time
	ttls    map[string]time.Duration
	failSet error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		entries: map[string]fakeEntry{},
		ttls:    map[string]time.Duration{},
		now:     time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	if f.failSet != nil {
		return redis.NewStatusResult("", f.failSet)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key] = fakeEntry{value: value.(string), expiresAt: f.now.Add(expiration)}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) GetDel(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	entry, ok := f.entries[key]
	delete(f.entries, key)
	if !ok || !f.now.Before(entry.expiresAt) {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(entry.value, nil)
}

func (f *fakeClient) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestAuthStateStoreConsumesOnce(t *testing.T) {
	client := newFakeClient()
	store, err := NewAuthStateStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	if err := store.Save(ctx, "abc", "tenant-1", 0); err != nil {
		t.Fatalf("save: %v", err)
	}
	if got := client.ttls[core.StateKeyPrefix+"abc"]; got != core.DefaultStateTTL {
		t.Fatalf("expected default ttl, got %s", got)
	}

	tenantID, ok, err := store.Consume(ctx, "abc")
	if err != nil || !ok || tenantID != "tenant-1" {
		t.Fatalf("expected tenant-1, got %q ok=%v err=%v", tenantID, ok, err)
	}
	if _, ok, err := store.Consume(ctx, "abc"); err != nil || ok {
		t.Fatalf("expected second consume to miss, ok=%v err=%v", ok, err)
	}
}

func TestAuthStateStoreExpiredStateMisses(t *testing.T) {
	client := newFakeClient()
	store, _ := NewAuthStateStore(client, WithKeyPrefix("custom:"))
	ctx := context.Background()

	if err := store.Save(ctx, "s1", "tenant-1", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, ok := client.entries["custom:s1"]; !ok {
		t.Fatalf("expected custom key prefix")
	}
	client.advance(2 * time.Minute)
	if _, ok, err := store.Consume(ctx, "s1"); err != nil || ok {
		t.Fatalf("expected expired state to miss, ok=%v err=%v", ok, err)
	}
}

func TestAuthStateStoreErrors(t *testing.T) {
	if _, err := NewAuthStateStore(nil); !core.IsKind(err, core.ErrorConfigInvalid) {
		t.Fatalf("expected config error, got %v", err)
	}

	client := newFakeClient()
	client.failSet = errors.New("connection refused")
	store, _ := NewAuthStateStore(client)
	if err := store.Save(context.Background(), "s", "t", time.Minute); !core.IsKind(err, core.ErrorInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if err := store.Save(context.Background(), " ", "t", time.Minute); !core.IsKind(err, core.ErrorBadInput) {
		t.Fatalf("expected bad input, got %v", err)
	}
	if _, ok, err := store.Consume(context.Background(), ""); ok || err != nil {
		t.Fatalf("expected blank state to miss quietly")
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
	client, err := NewClient("redis://localhost:6379/2")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	defer client.Close()
	if client.Options().DB != 2 {
		t.Fatalf("expected db 2, got %d", client.Options().DB)
	}
}

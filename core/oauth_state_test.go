package core

import (
	"context"
	"testing"
	"time"
)

func TestMemoryAuthStateStore_ConsumeOnce(t *testing.T) {
	store := NewMemoryAuthStateStore()
	ctx := context.Background()

	if err := store.Save(ctx, "state_1", "tenant_1", time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	tenantID, ok, err := store.Consume(ctx, "state_1")
	if err != nil || !ok {
		t.Fatalf("expected state to resolve, ok=%t err=%v", ok, err)
	}
	if tenantID != "tenant_1" {
		t.Fatalf("expected tenant_1, got %q", tenantID)
	}
	if _, ok, _ := store.Consume(ctx, "state_1"); ok {
		t.Fatalf("expected state to be consumed exactly once")
	}
}

func TestMemoryAuthStateStore_ExpiredStateIsUnusable(t *testing.T) {
	store := NewMemoryAuthStateStore()
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return now }

	if err := store.Save(context.Background(), "state_1", "tenant_1", 10*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	now = now.Add(10 * time.Minute)
	if _, ok, err := store.Consume(context.Background(), "state_1"); ok || err != nil {
		t.Fatalf("expected expired state to be unusable, ok=%t err=%v", ok, err)
	}
}

func TestMemoryAuthStateStore_SavePrunesExpiredEntries(t *testing.T) {
	store := NewMemoryAuthStateStore()
	now := time.Date(2026, 2, 16, 12, 0, 0, 0, time.UTC)
	store.nowFn = func() time.Time { return now }

	if err := store.Save(context.Background(), "stale", "tenant_1", time.Minute); err != nil {
		t.Fatalf("save stale: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := store.Save(context.Background(), "fresh", "tenant_2", time.Minute); err != nil {
		t.Fatalf("save fresh: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected stale entry to be pruned, got %d entries", len(store.entries))
	}
}

func TestMemoryAuthStateStore_UnknownAndBlankState(t *testing.T) {
	store := NewMemoryAuthStateStore()
	for _, state := range []string{"", "  ", "missing"} {
		if _, ok, err := store.Consume(context.Background(), state); ok || err != nil {
			t.Fatalf("expected %q to resolve to no tenant, ok=%t err=%v", state, ok, err)
		}
	}
}

func TestGenerateAuthState_IsUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 64; i++ {
		state, err := generateAuthState()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if _, ok := seen[state]; ok {
			t.Fatalf("duplicate state %q", state)
		}
		seen[state] = struct{}{}
	}
}

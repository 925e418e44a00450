package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"
)

// StateKeyPrefix namespaces authorization state entries in shared stores.
const StateKeyPrefix = "ttshop:oauth:state:"

type stateEntry struct {
	tenantID  string
	expiresAt time.Time
}

// MemoryAuthStateStore is a process-local AuthStateStore. Expired entries
// are unusable and pruned on write.
type MemoryAuthStateStore struct {
	mu      sync.Mutex
	entries map[string]stateEntry
	nowFn   func() time.Time
}

func NewMemoryAuthStateStore() *MemoryAuthStateStore {
	return &MemoryAuthStateStore{
		entries: map[string]stateEntry{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryAuthStateStore) Save(_ context.Context, state string, tenantID string, ttl time.Duration) error {
	if s == nil {
		return fmt.Errorf("core: authorization state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return fmt.Errorf("core: authorization state is required")
	}
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}

	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
	s.entries[state] = stateEntry{tenantID: strings.TrimSpace(tenantID), expiresAt: now.Add(ttl)}
	return nil
}

func (s *MemoryAuthStateStore) Consume(_ context.Context, state string) (string, bool, error) {
	if s == nil {
		return "", false, fmt.Errorf("core: authorization state store is not configured")
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false, nil
	}

	s.mu.Lock()
	entry, ok := s.entries[state]
	if ok {
		delete(s.entries, state)
	}
	s.mu.Unlock()

	if !ok || !s.nowFn().Before(entry.expiresAt) {
		return "", false, nil
	}
	return entry.tenantID, true, nil
}

func generateAuthState() (string, error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("core: generate authorization state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}


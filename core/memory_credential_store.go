package core

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryCredentialStore keeps credentials in process. Records are copied on
// every read and write so callers never share mutable state.
type MemoryCredentialStore struct {
	mu      sync.RWMutex
	records map[string]Credential
	nowFn   func() time.Time
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		records: map[string]Credential{},
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryCredentialStore) Get(_ context.Context, tenantID string) (Credential, error) {
	if s == nil {
		return Credential{}, NewError(ErrorInternal, "tiktokshop: credential store is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	s.mu.RLock()
	record, ok := s.records[tenantID]
	s.mu.RUnlock()
	if !ok {
		return Credential{}, CredentialNotFoundError(tenantID)
	}
	return record.Clone(), nil
}

func (s *MemoryCredentialStore) Upsert(_ context.Context, credential Credential) (Credential, error) {
	if s == nil {
		return Credential{}, NewError(ErrorInternal, "tiktokshop: credential store is not configured", nil)
	}
	credential.TenantID = strings.TrimSpace(credential.TenantID)
	if credential.TenantID == "" {
		return Credential{}, NewError(ErrorBadInput, "tiktokshop: tenant id is required", nil)
	}

	now := s.nowFn()
	s.mu.Lock()
	defer s.mu.Unlock()
	next := credential.Clone()
	if existing, ok := s.records[credential.TenantID]; ok {
		next.CreatedAt = existing.CreatedAt
		next.Version = existing.Version + 1
	} else {
		next.CreatedAt = now
		next.Version = 1
	}
	next.UpdatedAt = now
	s.records[next.TenantID] = next
	return next.Clone(), nil
}

func (s *MemoryCredentialStore) UpdateTokens(_ context.Context, tenantID string, update TokenUpdate) (Credential, error) {
	if s == nil {
		return Credential{}, NewError(ErrorInternal, "tiktokshop: credential store is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[tenantID]
	if !ok {
		return Credential{}, CredentialNotFoundError(tenantID)
	}
	next := existing.Clone()
	next.AccessToken = update.AccessToken
	next.RefreshToken = update.RefreshToken
	next.AccessTokenExpiresAt = update.AccessTokenExpiresAt
	if update.Scopes != nil {
		next.Scopes = append([]string(nil), update.Scopes...)
	}
	next.Version = existing.Version + 1
	next.UpdatedAt = s.nowFn()
	s.records[tenantID] = next
	return next.Clone(), nil
}

// CredentialNotFoundError builds the error stores return for unknown tenants.
func CredentialNotFoundError(tenantID string) error {
	return NewError(ErrorCredentialNotFound, "tiktokshop: credentials not found for tenant", map[string]any{
		"tenant_id": strings.TrimSpace(tenantID),
	})
}


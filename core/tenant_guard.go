package core

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TenantGuard serializes credential mutations per tenant and collapses
// concurrent refreshes of the same tenant into one upstream call. Different
// tenants never contend.
type TenantGuard struct {
	group singleflight.Group
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	sem  chan struct{}
	refs int
}

func NewTenantGuard() *TenantGuard {
	return &TenantGuard{locks: make(map[string]*tenantLock)}
}

// Acquire blocks until the tenant lock is held or ctx is done.
func (g *TenantGuard) Acquire(ctx context.Context, tenantID string) (func(), error) {
	if g == nil {
		return nil, fmt.Errorf("core: tenant guard is not configured")
	}
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, fmt.Errorf("core: tenant id is required for lock acquisition")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	lock := g.retain(tenantID)
	select {
	case lock.sem <- struct{}{}:
	case <-ctx.Done():
		g.release(tenantID)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lock.sem
			g.release(tenantID)
		})
	}, nil
}

// Share runs fn once for all concurrent callers using the same tenant and
// key. fn runs under the tenant lock with a context detached from any single
// caller, so one caller giving up does not abort the shared refresh. shared
// reports whether the result was produced for another caller.
func (g *TenantGuard) Share(
	ctx context.Context,
	tenantID string,
	key string,
	fn func(ctx context.Context) (Credential, error),
) (credential Credential, shared bool, err error) {
	if g == nil {
		return Credential{}, false, fmt.Errorf("core: tenant guard is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tenantID = strings.TrimSpace(tenantID)
	flightKey := tenantID + "\x00" + strings.TrimSpace(key)
	detached := context.WithoutCancel(ctx)

	ch := g.group.DoChan(flightKey, func() (any, error) {
		release, err := g.Acquire(detached, tenantID)
		if err != nil {
			return Credential{}, err
		}
		defer release()
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		return Credential{}, false, ctx.Err()
	case result := <-ch:
		if result.Err != nil {
			return Credential{}, result.Shared, result.Err
		}
		cred, _ := result.Val.(Credential)
		return cred.Clone(), result.Shared, nil
	}
}

func (g *TenantGuard) retain(tenantID string) *tenantLock {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.locks == nil {
		g.locks = make(map[string]*tenantLock)
	}
	lock, ok := g.locks[tenantID]
	if !ok {
		lock = &tenantLock{sem: make(chan struct{}, 1)}
		g.locks[tenantID] = lock
	}
	lock.refs++
	return lock
}

func (g *TenantGuard) release(tenantID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.locks[tenantID]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(g.locks, tenantID)
	}
}

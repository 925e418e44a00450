package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-tiktokshop/core"
	"github.com/uptrace/bun"
)

// AuthStateStore keeps authorization state nonces in tiktokshop_auth_states
// so callbacks may land on any instance.
type AuthStateStore struct {
	db  *bun.DB
	now func() time.Time
}

func NewAuthStateStore(db *bun.DB) (*AuthStateStore, error) {
	if db == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: bun db is required", nil)
	}
	return &AuthStateStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *AuthStateStore) Save(ctx context.Context, state string, tenantID string, ttl time.Duration) error {
	if s == nil || s.db == nil {
		return core.NewError(core.ErrorInternal, "sqlstore: auth state store is not configured", nil)
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return core.NewError(core.ErrorBadInput, "sqlstore: state is required", nil)
	}
	if ttl <= 0 {
		ttl = core.DefaultStateTTL
	}
	now := s.now().UTC()
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*authStateRecord)(nil)).
			Where("expires_at <= ?", now).
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewInsert().Model(&authStateRecord{
			State:     state,
			TenantID:  strings.TrimSpace(tenantID),
			ExpiresAt: now.Add(ttl),
			CreatedAt: now,
		}).Exec(ctx)
		return err
	})
}

// Consume deletes the state and reports its tenant. Only the caller whose
// DELETE removed the row observes ok=true.
func (s *AuthStateStore) Consume(ctx context.Context, state string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, core.NewError(core.ErrorInternal, "sqlstore: auth state store is not configured", nil)
	}
	state = strings.TrimSpace(state)
	if state == "" {
		return "", false, nil
	}
	var (
		tenantID string
		ok       bool
	)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &authStateRecord{}
		if err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.state = ?", state).
			Limit(1).
			Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		result, err := tx.NewDelete().
			Model((*authStateRecord)(nil)).
			Where("state = ?", state).
			Exec(ctx)
		if err != nil {
			return err
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return nil
		}
		if !record.ExpiresAt.After(s.now()) {
			return nil
		}
		tenantID = record.TenantID
		ok = true
		return nil
	})
	if err != nil {
		return "", false, core.WrapError(err, core.ErrorInternal, "sqlstore: consume auth state", nil)
	}
	return tenantID, ok, nil
}

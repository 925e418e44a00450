package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-tiktokshop/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// CredentialStore keeps one row per tenant in tiktokshop_credentials. Access
// token, refresh token and app secret are sealed with the configured
// SecretProvider before they are written.
type CredentialStore struct {
	db      *bun.DB
	repo    repository.Repository[*credentialRecord]
	secrets secretCodec
	now     func() time.Time
}

type CredentialStoreOption func(*CredentialStore)

func WithSecretProvider(provider core.SecretProvider) CredentialStoreOption {
	return func(s *CredentialStore) {
		s.secrets = secretCodec{provider: provider}
	}
}

func WithClock(now func() time.Time) CredentialStoreOption {
	return func(s *CredentialStore) {
		if now != nil {
			s.now = now
		}
	}
}

func NewCredentialStore(db *bun.DB, opts ...CredentialStoreOption) (*CredentialStore, error) {
	if db == nil {
		return nil, core.NewError(core.ErrorConfigInvalid, "sqlstore: bun db is required", nil)
	}
	repo := repository.NewRepository[*credentialRecord](db, credentialHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, core.WrapError(err, core.ErrorConfigInvalid, "sqlstore: invalid credential repository wiring", nil)
		}
	}
	store := &CredentialStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store, nil
}

func (s *CredentialStore) Get(ctx context.Context, tenantID string) (core.Credential, error) {
	if s == nil || s.repo == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: credential store is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("tenant_id", "=", tenantID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return core.Credential{}, core.WrapError(err, core.ErrorInternal, "sqlstore: load credential", map[string]any{
			"tenant_id": tenantID,
		})
	}
	if len(records) == 0 {
		return core.Credential{}, core.CredentialNotFoundError(tenantID)
	}
	return s.toDomain(ctx, records[0])
}

// Upsert inserts or replaces the tenant's credential and bumps its version.
func (s *CredentialStore) Upsert(ctx context.Context, credential core.Credential) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: credential store is not configured", nil)
	}
	credential.TenantID = strings.TrimSpace(credential.TenantID)
	if credential.TenantID == "" {
		return core.Credential{}, core.NewError(core.ErrorBadInput, "sqlstore: tenant id is required", nil)
	}
	now := s.now().UTC()

	var saved *credentialRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findCredentialTx(ctx, tx, credential.TenantID)
		if err != nil {
			return err
		}
		record, err := s.newRecord(ctx, credential)
		if err != nil {
			return err
		}
		record.UpdatedAt = now
		if existing == nil {
			record.ID = uuid.NewString()
			record.Version = 1
			record.CreatedAt = now
			if _, insertErr := tx.NewInsert().Model(record).Exec(ctx); insertErr != nil {
				return insertErr
			}
			saved = record
			return nil
		}
		record.ID = existing.ID
		record.Version = existing.Version + 1
		record.CreatedAt = existing.CreatedAt
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		saved = record
		return nil
	})
	if err != nil {
		if core.ErrorKind(err) != "" {
			return core.Credential{}, err
		}
		return core.Credential{}, core.WrapError(err, core.ErrorInternal, "sqlstore: upsert credential", map[string]any{
			"tenant_id":        credential.TenantID,
			"unique_violation": isUniqueViolation(err),
		})
	}
	return s.toDomain(ctx, saved)
}

// UpdateTokens rewrites the token columns of an existing row in one UPDATE.
// Rows sealed under an older key have their app secret re-sealed as well.
func (s *CredentialStore) UpdateTokens(ctx context.Context, tenantID string, update core.TokenUpdate) (core.Credential, error) {
	if s == nil || s.db == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: credential store is not configured", nil)
	}
	tenantID = strings.TrimSpace(tenantID)
	accessToken, err := s.secrets.seal(ctx, update.AccessToken)
	if err != nil {
		return core.Credential{}, err
	}
	refreshToken, err := s.secrets.seal(ctx, update.RefreshToken)
	if err != nil {
		return core.Credential{}, err
	}
	now := s.now().UTC()

	var saved *credentialRecord
	err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := findCredentialTx(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if record == nil {
			return core.CredentialNotFoundError(tenantID)
		}
		columns := []string{"access_token", "refresh_token", "access_token_expires_at", "scopes", "version", "updated_at"}
		if activeKey := s.secrets.keyID(); record.EncryptionKeyID != activeKey {
			appSecret, openErr := s.secrets.open(ctx, record.AppSecret, record.EncryptionKeyID)
			if openErr != nil {
				return openErr
			}
			if record.AppSecret, err = s.secrets.seal(ctx, appSecret); err != nil {
				return err
			}
			record.EncryptionKeyID = activeKey
			columns = append(columns, "app_secret", "encryption_key_id")
		}
		record.AccessToken = accessToken
		record.RefreshToken = refreshToken
		record.AccessTokenExpiresAt = timePointer(update.AccessTokenExpiresAt)
		if update.Scopes != nil {
			record.Scopes = append([]string{}, update.Scopes...)
		}
		record.Version++
		record.UpdatedAt = now
		if _, updateErr := tx.NewUpdate().
			Model(record).
			Column(columns...).
			Where("id = ?", record.ID).
			Exec(ctx); updateErr != nil {
			return updateErr
		}
		saved = record
		return nil
	})
	if err != nil {
		if core.ErrorKind(err) != "" {
			return core.Credential{}, err
		}
		return core.Credential{}, core.WrapError(err, core.ErrorInternal, "sqlstore: update credential tokens", map[string]any{
			"tenant_id": tenantID,
		})
	}
	return s.toDomain(ctx, saved)
}

func findCredentialTx(ctx context.Context, tx bun.Tx, tenantID string) (*credentialRecord, error) {
	record := &credentialRecord{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

func (s *CredentialStore) newRecord(ctx context.Context, credential core.Credential) (*credentialRecord, error) {
	appSecret, err := s.secrets.seal(ctx, credential.AppSecret)
	if err != nil {
		return nil, err
	}
	accessToken, err := s.secrets.seal(ctx, credential.AccessToken)
	if err != nil {
		return nil, err
	}
	refreshToken, err := s.secrets.seal(ctx, credential.RefreshToken)
	if err != nil {
		return nil, err
	}
	scopes := append([]string{}, credential.Scopes...)
	return &credentialRecord{
		TenantID:             credential.TenantID,
		ShopCipher:           strings.TrimSpace(credential.ShopCipher),
		ShopID:               strings.TrimSpace(credential.ShopID),
		ShopCode:             strings.TrimSpace(credential.ShopCode),
		ShopName:             strings.TrimSpace(credential.ShopName),
		ShopRegion:           strings.TrimSpace(credential.ShopRegion),
		ShopSellerType:       strings.TrimSpace(credential.ShopSellerType),
		AppKey:               strings.TrimSpace(credential.AppKey),
		AppSecret:            appSecret,
		AccessToken:          accessToken,
		RefreshToken:         refreshToken,
		AccessTokenExpiresAt: timePointer(credential.AccessTokenExpiresAt),
		Scopes:               scopes,
		OpenID:               credential.OpenID,
		SellerName:           credential.SellerName,
		EncryptionKeyID:      s.secrets.keyID(),
	}, nil
}

func (s *CredentialStore) toDomain(ctx context.Context, record *credentialRecord) (core.Credential, error) {
	if record == nil {
		return core.Credential{}, core.NewError(core.ErrorInternal, "sqlstore: credential record is nil", nil)
	}
	appSecret, err := s.secrets.open(ctx, record.AppSecret, record.EncryptionKeyID)
	if err != nil {
		return core.Credential{}, err
	}
	accessToken, err := s.secrets.open(ctx, record.AccessToken, record.EncryptionKeyID)
	if err != nil {
		return core.Credential{}, err
	}
	refreshToken, err := s.secrets.open(ctx, record.RefreshToken, record.EncryptionKeyID)
	if err != nil {
		return core.Credential{}, err
	}
	out := core.Credential{
		TenantID:       record.TenantID,
		ShopCipher:     record.ShopCipher,
		ShopID:         record.ShopID,
		ShopCode:       record.ShopCode,
		ShopName:       record.ShopName,
		ShopRegion:     record.ShopRegion,
		ShopSellerType: record.ShopSellerType,
		AppKey:         record.AppKey,
		AppSecret:      appSecret,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		Scopes:         append([]string(nil), record.Scopes...),
		OpenID:         record.OpenID,
		SellerName:     record.SellerName,
		Version:        record.Version,
		CreatedAt:      record.CreatedAt.UTC(),
		UpdatedAt:      record.UpdatedAt.UTC(),
	}
	if record.AccessTokenExpiresAt != nil {
		out.AccessTokenExpiresAt = record.AccessTokenExpiresAt.UTC()
	}
	return out, nil
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

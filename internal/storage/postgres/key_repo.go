package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/keys"
)

// KeyRepo implements keys.Repository on PostgreSQL.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo constructs the key repository.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

const (
	upsertUserKeySQL = `
INSERT INTO user_keys (user_id, tenant_id, wrapped_key, master_key_id, algorithm_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (user_id, tenant_id)
DO UPDATE SET wrapped_key=EXCLUDED.wrapped_key, master_key_id=EXCLUDED.master_key_id,
              algorithm_id=EXCLUDED.algorithm_id, updated_at=EXCLUDED.updated_at`

	selectUserKeySQL = `
SELECT user_id, tenant_id, wrapped_key, master_key_id, algorithm_id, created_at, updated_at
FROM user_keys WHERE tenant_id=$1 AND user_id=$2`

	insertWrappedDekSQL = `
INSERT INTO wrapped_deks (dek_id, owner_user_id, tenant_id, wrapped_dek, owner_key_id, algorithm_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`

	selectWrappedDekSQL = `
SELECT dek_id, owner_user_id, tenant_id, wrapped_dek, owner_key_id, algorithm_id, created_at
FROM wrapped_deks WHERE tenant_id=$1 AND dek_id=$2`

	insertShareGrantSQL = `
INSERT INTO share_grants (share_grant_id, tenant_id, owner_user_id, data_reference, grantee_type,
                          grantee_id, encrypted_data_key, grantee_key_id, algorithm_id,
                          data_name, purpose, expires_at, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	shareGrantColumns = `share_grant_id, tenant_id, owner_user_id, data_reference, grantee_type,
       grantee_id, encrypted_data_key, grantee_key_id, algorithm_id, data_name, purpose, expires_at, created_at`

	selectShareGrantSQL = `
SELECT ` + shareGrantColumns + `
FROM share_grants WHERE tenant_id=$1 AND share_grant_id=$2`

	deleteShareGrantSQL = `DELETE FROM share_grants WHERE tenant_id=$1 AND share_grant_id=$2`

	selectActiveGrantsForDekSQL = `
SELECT ` + shareGrantColumns + `
FROM share_grants
WHERE tenant_id=$1 AND data_reference=$2 AND grantee_type=$3 AND grantee_id=$4
  AND (expires_at IS NULL OR expires_at >= $5)
ORDER BY created_at ASC`

	selectGrantsForOwnerSQL = `
SELECT ` + shareGrantColumns + `
FROM share_grants WHERE tenant_id=$1 AND owner_user_id=$2
ORDER BY created_at ASC`

	selectExpiredGrantsSQL = `
SELECT ` + shareGrantColumns + `
FROM share_grants WHERE expires_at IS NOT NULL AND expires_at < $1
ORDER BY expires_at ASC`
)

// SaveWrappedUserKey implements keys.Repository.
func (r *KeyRepo) SaveWrappedUserKey(ctx context.Context, k keys.StoredUserKey) error {
	now := time.Now().UTC()
	_, err := r.db.Pool.Exec(ctx, upsertUserKeySQL,
		k.UserID.UUID(), k.TenantID.UUID(), k.WrappedKey, k.MasterKeyID, k.AlgorithmID, now)
	if err != nil {
		return fmt.Errorf("save user key: %w", err)
	}
	return nil
}

// FindWrappedUserKey implements keys.Repository.
func (r *KeyRepo) FindWrappedUserKey(ctx context.Context, tenantID core.TenantID, userID core.UserID) (*keys.StoredUserKey, error) {
	var (
		k       keys.StoredUserKey
		userU   uuid.UUID
		tenantU uuid.UUID
	)
	err := r.db.Pool.QueryRow(ctx, selectUserKeySQL, tenantID.UUID(), userID.UUID()).
		Scan(&userU, &tenantU, &k.WrappedKey, &k.MasterKeyID, &k.AlgorithmID, &k.CreatedAt, &k.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: user key for user %s", errs.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("find user key: %w", err)
	}
	k.UserID = core.UserID(userU)
	k.TenantID = core.TenantID(tenantU)
	return &k, nil
}

// SaveWrappedDek implements keys.Repository.
func (r *KeyRepo) SaveWrappedDek(ctx context.Context, d keys.StoredWrappedDek) error {
	_, err := r.db.Pool.Exec(ctx, insertWrappedDekSQL,
		d.DekID.UUID(), d.OwnerUserID.UUID(), d.TenantID.UUID(), d.WrappedDek, d.OwnerKeyID, d.AlgorithmID, d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: dek %s", errs.ErrAlreadyExists, d.DekID)
		}
		return fmt.Errorf("save wrapped dek: %w", err)
	}
	return nil
}

// FindWrappedDek implements keys.Repository.
func (r *KeyRepo) FindWrappedDek(ctx context.Context, tenantID core.TenantID, dekID keys.DekID) (*keys.StoredWrappedDek, error) {
	var (
		d       keys.StoredWrappedDek
		dekU    uuid.UUID
		ownerU  uuid.UUID
		tenantU uuid.UUID
	)
	err := r.db.Pool.QueryRow(ctx, selectWrappedDekSQL, tenantID.UUID(), dekID.UUID()).
		Scan(&dekU, &ownerU, &tenantU, &d.WrappedDek, &d.OwnerKeyID, &d.AlgorithmID, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: dek %s", errs.ErrNotFound, dekID)
	}
	if err != nil {
		return nil, fmt.Errorf("find wrapped dek: %w", err)
	}
	d.DekID = keys.DekID(dekU)
	d.OwnerUserID = core.UserID(ownerU)
	d.TenantID = core.TenantID(tenantU)
	return &d, nil
}

// SaveShareGrant implements keys.Repository.
func (r *KeyRepo) SaveShareGrant(ctx context.Context, g keys.StoredShareGrant) error {
	_, err := r.db.Pool.Exec(ctx, insertShareGrantSQL,
		g.GrantID.UUID(), g.TenantID.UUID(), g.OwnerUserID.UUID(), g.DataReference, string(g.GranteeType),
		g.GranteeID, g.EncryptedDataKey, g.GranteeKeyID, g.AlgorithmID, g.DataName, g.Purpose, g.ExpiresAt, g.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: share grant %s", errs.ErrAlreadyExists, g.GrantID)
		}
		return fmt.Errorf("save share grant: %w", err)
	}
	return nil
}

// FindShareGrant implements keys.Repository.
func (r *KeyRepo) FindShareGrant(ctx context.Context, tenantID core.TenantID, grantID keys.ShareGrantID) (*keys.StoredShareGrant, error) {
	row := r.db.Pool.QueryRow(ctx, selectShareGrantSQL, tenantID.UUID(), grantID.UUID())
	g, err := scanShareGrant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: share grant %s", errs.ErrNotFound, grantID)
	}
	if err != nil {
		return nil, fmt.Errorf("find share grant: %w", err)
	}
	return g, nil
}

// DeleteShareGrant implements keys.Repository.
func (r *KeyRepo) DeleteShareGrant(ctx context.Context, tenantID core.TenantID, grantID keys.ShareGrantID) error {
	_, err := r.db.Pool.Exec(ctx, deleteShareGrantSQL, tenantID.UUID(), grantID.UUID())
	if err != nil {
		return fmt.Errorf("delete share grant: %w", err)
	}
	return nil
}

// ActiveShareGrantsForDek implements keys.Repository.
func (r *KeyRepo) ActiveShareGrantsForDek(ctx context.Context, tenantID core.TenantID, dekID keys.DekID, accessingUser core.UserID, now time.Time) ([]keys.StoredShareGrant, error) {
	rows, err := r.db.Pool.Query(ctx, selectActiveGrantsForDekSQL,
		tenantID.UUID(), dekID.String(), string(keys.GranteeUser), accessingUser.String(), now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list active grants: %w", err)
	}
	return collectShareGrants(rows)
}

// ShareGrantsForOwner implements keys.Repository.
func (r *KeyRepo) ShareGrantsForOwner(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID) ([]keys.StoredShareGrant, error) {
	rows, err := r.db.Pool.Query(ctx, selectGrantsForOwnerSQL, tenantID.UUID(), ownerUserID.UUID())
	if err != nil {
		return nil, fmt.Errorf("list owner grants: %w", err)
	}
	return collectShareGrants(rows)
}

// ExpiredShareGrants implements keys.Repository.
func (r *KeyRepo) ExpiredShareGrants(ctx context.Context, cutoff time.Time) ([]keys.StoredShareGrant, error) {
	rows, err := r.db.Pool.Query(ctx, selectExpiredGrantsSQL, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired grants: %w", err)
	}
	return collectShareGrants(rows)
}

func scanShareGrant(row pgx.Row) (*keys.StoredShareGrant, error) {
	var (
		g           keys.StoredShareGrant
		grantU      uuid.UUID
		tenantU     uuid.UUID
		ownerU      uuid.UUID
		granteeType string
	)
	err := row.Scan(&grantU, &tenantU, &ownerU, &g.DataReference, &granteeType,
		&g.GranteeID, &g.EncryptedDataKey, &g.GranteeKeyID, &g.AlgorithmID, &g.DataName, &g.Purpose, &g.ExpiresAt, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.GrantID = keys.ShareGrantID(grantU)
	g.TenantID = core.TenantID(tenantU)
	g.OwnerUserID = core.UserID(ownerU)
	g.GranteeType = keys.GranteeType(granteeType)
	return &g, nil
}

func collectShareGrants(rows pgx.Rows) ([]keys.StoredShareGrant, error) {
	defer rows.Close()
	var out []keys.StoredShareGrant
	for rows.Next() {
		g, err := scanShareGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ keys.Repository = (*KeyRepo)(nil)

// Package kms is the access-control brain of the key hierarchy: it wraps and
// unwraps DEKs, manages share grants, and decides at read time who may decrypt
// which record.
package kms

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/crypto"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/keys"
	"github.com/sesdev/conduit/internal/obs"
)

// Service exposes the key-management operations of the envelope hierarchy.
type Service interface {
	// UnwrapUserKey recovers a user's primary key via the tenant master key.
	// Fails with errs.ErrKeyManagement if no key record exists.
	UnwrapUserKey(ctx context.Context, tenantID core.TenantID, userID core.UserID) ([]byte, error)

	// GenerateAndWrapUserKey creates a new user key, wraps it under the tenant
	// master key and persists the wrapped form. Not idempotent: calling it for a
	// user that already has a key replaces the key (intentional rotation only).
	GenerateAndWrapUserKey(ctx context.Context, tenantID core.TenantID, userID core.UserID) (*keys.StoredUserKey, error)

	// WrapAndStoreDekForOwner wraps a caller-supplied DEK under the owner's user
	// key and persists it under a freshly generated id.
	WrapAndStoreDekForOwner(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID, dek []byte) (keys.DekID, error)

	// WrapAndStoreDekAs is WrapAndStoreDekForOwner with a caller-supplied id,
	// used by the encryption service to bind a pre-minted key context.
	WrapAndStoreDekAs(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID, dekID keys.DekID, dek []byte) error

	// CreateShareGrant re-wraps the referenced DEK under the grantee's key and
	// persists the grant. Only user grantees are supported today.
	CreateShareGrant(ctx context.Context, tenantID core.TenantID, details keys.ShareGrantDetails) (keys.ShareGrantID, error)

	// RevokeShareGrant deletes the grant. No re-encryption of already shared
	// ciphertext takes place.
	RevokeShareGrant(ctx context.Context, tenantID core.TenantID, grantID keys.ShareGrantID) error

	// ResolveDecryptionKey resolves who may decrypt the record whose metadata
	// carries contextID. ok=false with nil error means access denied.
	ResolveDecryptionKey(ctx context.Context, tenantID core.TenantID, accessingUser core.UserID, contextID uuid.UUID) (dek []byte, ok bool, err error)

	// SweepExpiredGrants deletes grants expired before the cutoff and reports
	// how many were removed.
	SweepExpiredGrants(ctx context.Context, cutoff time.Time) (int, error)
}

// ServiceImpl implements Service over a key repository and the master-key tier.
type ServiceImpl struct {
	repo   keys.Repository
	master *crypto.MasterKeys
	log    *zap.Logger
	now    func() time.Time
}

// NewService constructs the key management service.
func NewService(repo keys.Repository, master *crypto.MasterKeys, log *zap.Logger) *ServiceImpl {
	return &ServiceImpl{repo: repo, master: master, log: log, now: time.Now}
}

// UnwrapUserKey implements Service.
func (s *ServiceImpl) UnwrapUserKey(ctx context.Context, tenantID core.TenantID, userID core.UserID) ([]byte, error) {
	stored, err := s.repo.FindWrappedUserKey(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: user key not found for user %s", errs.ErrKeyManagement, userID)
		}
		return nil, err
	}
	return s.master.UnwrapUserKey(ctx, tenantID, stored.WrappedKey)
}

// GenerateAndWrapUserKey implements Service.
func (s *ServiceImpl) GenerateAndWrapUserKey(ctx context.Context, tenantID core.TenantID, userID core.UserID) (*keys.StoredUserKey, error) {
	userKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: generating user key: %w", errs.ErrKeyManagement, err)
	}
	wrapped, masterKeyID, err := s.master.WrapUserKey(ctx, tenantID, userKey)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	rec := keys.StoredUserKey{
		UserID:      userID,
		TenantID:    tenantID,
		WrappedKey:  wrapped,
		MasterKeyID: masterKeyID,
		AlgorithmID: crypto.AlgorithmMasterWrap,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.SaveWrappedUserKey(ctx, rec); err != nil {
		return nil, err
	}
	s.log.Info("generated wrapped user key",
		zap.String("tenant", tenantID.String()),
		zap.String("user", userID.String()),
		zap.String("masterKeyId", masterKeyID),
	)
	return &rec, nil
}

// WrapAndStoreDekForOwner implements Service.
func (s *ServiceImpl) WrapAndStoreDekForOwner(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID, dek []byte) (keys.DekID, error) {
	dekID := keys.NewDekID()
	if err := s.WrapAndStoreDekAs(ctx, tenantID, ownerUserID, dekID, dek); err != nil {
		return keys.DekID{}, err
	}
	return dekID, nil
}

// WrapAndStoreDekAs implements Service.
func (s *ServiceImpl) WrapAndStoreDekAs(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID, dekID keys.DekID, dek []byte) error {
	if len(dek) != crypto.KeyLen {
		return fmt.Errorf("%w: dek must be %d bytes", errs.ErrKeyManagement, crypto.KeyLen)
	}
	ownerStored, err := s.repo.FindWrappedUserKey(ctx, tenantID, ownerUserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return fmt.Errorf("%w: cannot wrap dek, owner user key not found for %s", errs.ErrKeyManagement, ownerUserID)
		}
		return err
	}
	ownerKey, err := s.master.UnwrapUserKey(ctx, tenantID, ownerStored.WrappedKey)
	if err != nil {
		return err
	}
	wrappedDek, err := crypto.WrapKey(ownerKey, dek)
	if err != nil {
		return err
	}
	return s.repo.SaveWrappedDek(ctx, keys.StoredWrappedDek{
		DekID:       dekID,
		OwnerUserID: ownerUserID,
		TenantID:    tenantID,
		WrappedDek:  wrappedDek,
		OwnerKeyID:  ownerStored.MasterKeyID,
		AlgorithmID: crypto.AlgorithmKeyWrap,
		CreatedAt:   s.now().UTC(),
	})
}

// CreateShareGrant implements Service.
func (s *ServiceImpl) CreateShareGrant(ctx context.Context, tenantID core.TenantID, details keys.ShareGrantDetails) (keys.ShareGrantID, error) {
	dekID, err := keys.ParseDekID(details.DataReference)
	if err != nil {
		return keys.ShareGrantID{}, fmt.Errorf("%w: data reference must be a DEK id, got %q", errs.ErrKeyManagement, details.DataReference)
	}
	storedDek, err := s.repo.FindWrappedDek(ctx, tenantID, dekID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return keys.ShareGrantID{}, fmt.Errorf("%w: cannot create share grant, DEK %s not found", errs.ErrKeyManagement, dekID)
		}
		return keys.ShareGrantID{}, err
	}
	if details.OwnerUserID != storedDek.OwnerUserID {
		return keys.ShareGrantID{}, fmt.Errorf("%w: details owner %s, DEK owner %s",
			errs.ErrOwnerMismatch, details.OwnerUserID, storedDek.OwnerUserID)
	}

	dek, err := s.unwrapDek(ctx, storedDek)
	if err != nil {
		return keys.ShareGrantID{}, err
	}

	if details.GranteeType != keys.GranteeUser {
		return keys.ShareGrantID{}, fmt.Errorf("%w: %s", errs.ErrUnsupportedGrantee, details.GranteeType)
	}
	granteeUser, err := core.ParseUserID(details.GranteeID)
	if err != nil {
		return keys.ShareGrantID{}, fmt.Errorf("%w: grantee id must be a user id, got %q", errs.ErrKeyManagement, details.GranteeID)
	}
	granteeStored, err := s.repo.FindWrappedUserKey(ctx, tenantID, granteeUser)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return keys.ShareGrantID{}, fmt.Errorf("%w: grantee user key not found for %s", errs.ErrKeyManagement, granteeUser)
		}
		return keys.ShareGrantID{}, err
	}
	granteeKey, err := s.master.UnwrapUserKey(ctx, tenantID, granteeStored.WrappedKey)
	if err != nil {
		return keys.ShareGrantID{}, err
	}
	wrappedForGrantee, err := crypto.WrapKey(granteeKey, dek)
	if err != nil {
		return keys.ShareGrantID{}, err
	}

	grantID := details.GrantID
	if grantID.IsZero() {
		grantID = keys.NewShareGrantID()
	}
	err = s.repo.SaveShareGrant(ctx, keys.StoredShareGrant{
		GrantID:          grantID,
		TenantID:         tenantID,
		OwnerUserID:      details.OwnerUserID,
		DataReference:    details.DataReference,
		GranteeType:      details.GranteeType,
		GranteeID:        details.GranteeID,
		EncryptedDataKey: wrappedForGrantee,
		GranteeKeyID:     granteeStored.MasterKeyID,
		AlgorithmID:      crypto.AlgorithmKeyWrap,
		DataName:         details.DataName,
		Purpose:          details.Purpose,
		ExpiresAt:        details.ExpiresAt,
		CreatedAt:        s.now().UTC(),
	})
	if err != nil {
		return keys.ShareGrantID{}, err
	}
	obs.GrantsCreated.Inc()
	s.log.Info("created share grant",
		zap.String("grant", grantID.String()),
		zap.String("dek", dekID.String()),
		zap.String("owner", details.OwnerUserID.String()),
		zap.String("grantee", details.GranteeID),
	)
	return grantID, nil
}

// RevokeShareGrant implements Service.
func (s *ServiceImpl) RevokeShareGrant(ctx context.Context, tenantID core.TenantID, grantID keys.ShareGrantID) error {
	if err := s.repo.DeleteShareGrant(ctx, tenantID, grantID); err != nil {
		return err
	}
	obs.GrantsRevoked.Inc()
	s.log.Info("revoked share grant", zap.String("grant", grantID.String()))
	return nil
}

// ResolveDecryptionKey implements Service. The grant lookup runs before the
// ownership lookup: grant ids and DEK ids share one UUID space, and a grant is
// the more specific match if both ever collide.
func (s *ServiceImpl) ResolveDecryptionKey(ctx context.Context, tenantID core.TenantID, accessingUser core.UserID, contextID uuid.UUID) ([]byte, bool, error) {
	grant, err := s.repo.FindShareGrant(ctx, tenantID, keys.ShareGrantID(contextID))
	switch {
	case err == nil:
		return s.resolveViaGrant(ctx, tenantID, accessingUser, grant)
	case !errors.Is(err, errs.ErrNotFound):
		return nil, false, err
	}

	storedDek, err := s.repo.FindWrappedDek(ctx, tenantID, keys.DekID(contextID))
	switch {
	case err == nil:
		return s.resolveViaOwnership(ctx, accessingUser, storedDek)
	case !errors.Is(err, errs.ErrNotFound):
		return nil, false, err
	}

	obs.DecryptDenied.Inc()
	s.log.Warn("no grant or DEK for retrieval context",
		zap.String("context", contextID.String()),
		zap.String("user", accessingUser.String()),
	)
	return nil, false, nil
}

func (s *ServiceImpl) resolveViaGrant(ctx context.Context, tenantID core.TenantID, accessingUser core.UserID, grant *keys.StoredShareGrant) ([]byte, bool, error) {
	if grant.Expired(s.now()) {
		obs.DecryptDenied.Inc()
		s.log.Warn("access denied, grant expired",
			zap.String("grant", grant.GrantID.String()),
			zap.Timep("expiredAt", grant.ExpiresAt),
		)
		return nil, false, nil
	}
	isGrantee := false
	if grant.GranteeType == keys.GranteeUser {
		granteeUser, err := core.ParseUserID(grant.GranteeID)
		if err == nil {
			isGrantee = accessingUser == granteeUser
		}
	}
	if !isGrantee {
		obs.DecryptDenied.Inc()
		s.log.Warn("access denied, caller is not the grantee",
			zap.String("grant", grant.GrantID.String()),
			zap.String("user", accessingUser.String()),
		)
		return nil, false, nil
	}
	granteeKey, err := s.UnwrapUserKey(ctx, tenantID, accessingUser)
	if err != nil {
		return nil, false, err
	}
	dek, err := crypto.UnwrapKey(granteeKey, grant.EncryptedDataKey)
	if err != nil {
		return nil, false, err
	}
	return dek, true, nil
}

func (s *ServiceImpl) resolveViaOwnership(ctx context.Context, accessingUser core.UserID, storedDek *keys.StoredWrappedDek) ([]byte, bool, error) {
	if accessingUser != storedDek.OwnerUserID {
		obs.DecryptDenied.Inc()
		s.log.Warn("access denied, caller does not own DEK",
			zap.String("dek", storedDek.DekID.String()),
			zap.String("user", accessingUser.String()),
		)
		return nil, false, nil
	}
	dek, err := s.unwrapDek(ctx, storedDek)
	if err != nil {
		return nil, false, err
	}
	return dek, true, nil
}

// unwrapDek recovers a DEK through its owner's user key.
func (s *ServiceImpl) unwrapDek(ctx context.Context, storedDek *keys.StoredWrappedDek) ([]byte, error) {
	ownerKey, err := s.UnwrapUserKey(ctx, storedDek.TenantID, storedDek.OwnerUserID)
	if err != nil {
		return nil, err
	}
	return crypto.UnwrapKey(ownerKey, storedDek.WrappedDek)
}

// SweepExpiredGrants implements Service.
func (s *ServiceImpl) SweepExpiredGrants(ctx context.Context, cutoff time.Time) (int, error) {
	expired, err := s.repo.ExpiredShareGrants(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := range expired {
		g := &expired[i]
		if err := s.repo.DeleteShareGrant(ctx, g.TenantID, g.GrantID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		obs.GrantsSwept.Add(float64(removed))
		s.log.Info("swept expired share grants", zap.Int("count", removed))
	}
	return removed, nil
}

var _ Service = (*ServiceImpl)(nil)

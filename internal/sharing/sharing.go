// Package sharing is the business face of share grants: who authorized whom to
// read what, for which purpose, until when. The key mechanics live in the KMS;
// this layer adds the authorization vocabulary and owner checks.
package sharing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/keys"
	"github.com/sesdev/conduit/internal/kms"
)

// Purpose codes recorded with an authorization.
const (
	PurposeCollaboration = "COLLABORATION"
	PurposeDelegation    = "DELEGATION"
	PurposeReview        = "REVIEW"
	PurposeSupport       = "SUPPORT"
	PurposeAudit         = "AUDIT"
	PurposeOther         = "OTHER"
)

// Authorization is the business view of one share grant.
type Authorization struct {
	ID           keys.ShareGrantID
	OwnerUserID  core.UserID
	TargetUserID core.UserID
	DekID        keys.DekID
	DataName     string
	Purpose      string
	AuthorizedAt time.Time
	ExpiresAt    *time.Time
}

// Active reports whether the authorization is usable at the given instant.
func (a *Authorization) Active(now time.Time) bool {
	return a.ExpiresAt == nil || a.ExpiresAt.After(now)
}

// Service manages data sharing authorizations on top of the KMS and the
// durable grant store.
type Service struct {
	km   kms.Service
	repo keys.Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewService constructs the sharing service.
func NewService(km kms.Service, repo keys.Repository, log *zap.Logger) *Service {
	return &Service{km: km, repo: repo, log: log, now: time.Now}
}

// AuthorizeUserSharing shares the data behind dekID with targetUser. ttl zero
// means the authorization never expires.
func (s *Service) AuthorizeUserSharing(
	ctx context.Context,
	tenantID core.TenantID,
	ownerUserID core.UserID,
	dekID keys.DekID,
	targetUser core.UserID,
	dataName, purpose string,
	ttl time.Duration,
) (*Authorization, error) {
	now := s.now().UTC()
	var expiresAt *time.Time
	if ttl > 0 {
		t := now.Add(ttl)
		expiresAt = &t
	}
	grantID, err := s.km.CreateShareGrant(ctx, tenantID, keys.ShareGrantDetails{
		OwnerUserID:   ownerUserID,
		DataReference: dekID.String(),
		GranteeType:   keys.GranteeUser,
		GranteeID:     targetUser.String(),
		DataName:      dataName,
		Purpose:       purpose,
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("authorized data sharing",
		zap.String("grant", grantID.String()),
		zap.String("owner", ownerUserID.String()),
		zap.String("target", targetUser.String()),
		zap.String("dataName", dataName),
	)
	return &Authorization{
		ID:           grantID,
		OwnerUserID:  ownerUserID,
		TargetUserID: targetUser,
		DekID:        dekID,
		DataName:     dataName,
		Purpose:      purpose,
		AuthorizedAt: now,
		ExpiresAt:    expiresAt,
	}, nil
}

// Revoke deletes an authorization. Only the owner may revoke; revoking an
// authorization that no longer exists is a no-op.
func (s *Service) Revoke(ctx context.Context, tenantID core.TenantID, authorizationID keys.ShareGrantID, revokingUser core.UserID) error {
	grant, err := s.repo.FindShareGrant(ctx, tenantID, authorizationID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		return err
	}
	if grant.OwnerUserID != revokingUser {
		return fmt.Errorf("%w: only the owner can revoke authorization %s",
			errs.ErrOwnerMismatch, authorizationID)
	}
	return s.km.RevokeShareGrant(ctx, tenantID, authorizationID)
}

// ListActiveGrantedBy returns the owner's authorizations that have not expired.
func (s *Service) ListActiveGrantedBy(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID) ([]Authorization, error) {
	grants, err := s.repo.ShareGrantsForOwner(ctx, tenantID, ownerUserID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	out := make([]Authorization, 0, len(grants))
	for i := range grants {
		g := &grants[i]
		auth, err := authorizationFromGrant(g)
		if err != nil {
			return nil, err
		}
		if auth.Active(now) {
			out = append(out, *auth)
		}
	}
	return out, nil
}

func authorizationFromGrant(g *keys.StoredShareGrant) (*Authorization, error) {
	if g.GranteeType != keys.GranteeUser {
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedGrantee, g.GranteeType)
	}
	target, err := core.ParseUserID(g.GranteeID)
	if err != nil {
		return nil, fmt.Errorf("grant %s: bad grantee id: %w", g.GrantID, err)
	}
	dekID, err := keys.ParseDekID(g.DataReference)
	if err != nil {
		return nil, fmt.Errorf("grant %s: bad data reference: %w", g.GrantID, err)
	}
	return &Authorization{
		ID:           g.GrantID,
		OwnerUserID:  g.OwnerUserID,
		TargetUserID: target,
		DekID:        dekID,
		DataName:     g.DataName,
		Purpose:      g.Purpose,
		AuthorizedAt: g.CreatedAt,
		ExpiresAt:    g.ExpiresAt,
	}, nil
}

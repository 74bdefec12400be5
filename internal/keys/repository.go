package keys

import (
	"context"
	"time"

	"github.com/sesdev/conduit/internal/core"
)

// Repository is the narrow storage contract for key material and share grants,
// used only by the KMS and the sharing service. Validation and access-control
// decisions do not belong here.
type Repository interface {
	// SaveWrappedUserKey inserts or replaces the wrapped user key for (tenant, user).
	SaveWrappedUserKey(ctx context.Context, k StoredUserKey) error

	// FindWrappedUserKey returns the wrapped user key or errs.ErrNotFound.
	FindWrappedUserKey(ctx context.Context, tenantID core.TenantID, userID core.UserID) (*StoredUserKey, error)

	// SaveWrappedDek inserts a wrapped DEK. DEKs are write-once.
	SaveWrappedDek(ctx context.Context, d StoredWrappedDek) error

	// FindWrappedDek returns the wrapped DEK or errs.ErrNotFound.
	FindWrappedDek(ctx context.Context, tenantID core.TenantID, dekID DekID) (*StoredWrappedDek, error)

	// SaveShareGrant inserts a share grant. A duplicate grant id returns
	// errs.ErrAlreadyExists; grants are never overwritten in place.
	SaveShareGrant(ctx context.Context, g StoredShareGrant) error

	// FindShareGrant returns the grant or errs.ErrNotFound.
	FindShareGrant(ctx context.Context, tenantID core.TenantID, grantID ShareGrantID) (*StoredShareGrant, error)

	// DeleteShareGrant removes a grant. Deleting a missing grant is not an error.
	DeleteShareGrant(ctx context.Context, tenantID core.TenantID, grantID ShareGrantID) error

	// ActiveShareGrantsForDek lists grants that give the accessing user access to
	// the DEK and are unexpired at the given instant.
	ActiveShareGrantsForDek(ctx context.Context, tenantID core.TenantID, dekID DekID, accessingUser core.UserID, now time.Time) ([]StoredShareGrant, error)

	// ShareGrantsForOwner lists every grant created by the owner, expired or not.
	ShareGrantsForOwner(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID) ([]StoredShareGrant, error)

	// ExpiredShareGrants lists grants whose expiration passed before the cutoff,
	// across tenants. Used by the cleanup sweep.
	ExpiredShareGrants(ctx context.Context, cutoff time.Time) ([]StoredShareGrant, error)
}

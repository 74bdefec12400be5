// Package inmem provides a map-backed keys.Repository for tests and local runs.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/keys"
)

type userKeyID struct {
	tenant core.TenantID
	user   core.UserID
}

type scopedID struct {
	tenant core.TenantID
	id     string
}

// Repository implements keys.Repository in memory. Safe for concurrent use.
type Repository struct {
	mu       sync.RWMutex
	userKeys map[userKeyID]keys.StoredUserKey
	deks     map[scopedID]keys.StoredWrappedDek
	grants   map[scopedID]keys.StoredShareGrant
}

// New returns an empty repository.
func New() *Repository {
	return &Repository{
		userKeys: make(map[userKeyID]keys.StoredUserKey),
		deks:     make(map[scopedID]keys.StoredWrappedDek),
		grants:   make(map[scopedID]keys.StoredShareGrant),
	}
}

// SaveWrappedUserKey implements keys.Repository.
func (r *Repository) SaveWrappedUserKey(_ context.Context, k keys.StoredUserKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := userKeyID{tenant: k.TenantID, user: k.UserID}
	now := time.Now().UTC()
	if existing, ok := r.userKeys[id]; ok {
		k.CreatedAt = existing.CreatedAt
	} else {
		k.CreatedAt = now
	}
	k.UpdatedAt = now
	r.userKeys[id] = k
	return nil
}

// FindWrappedUserKey implements keys.Repository.
func (r *Repository) FindWrappedUserKey(_ context.Context, tenantID core.TenantID, userID core.UserID) (*keys.StoredUserKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.userKeys[userKeyID{tenant: tenantID, user: userID}]
	if !ok {
		return nil, fmt.Errorf("%w: user key for user %s", errs.ErrNotFound, userID)
	}
	return &k, nil
}

// SaveWrappedDek implements keys.Repository.
func (r *Repository) SaveWrappedDek(_ context.Context, d keys.StoredWrappedDek) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := scopedID{tenant: d.TenantID, id: d.DekID.String()}
	if _, ok := r.deks[id]; ok {
		return fmt.Errorf("%w: dek %s", errs.ErrAlreadyExists, d.DekID)
	}
	r.deks[id] = d
	return nil
}

// FindWrappedDek implements keys.Repository.
func (r *Repository) FindWrappedDek(_ context.Context, tenantID core.TenantID, dekID keys.DekID) (*keys.StoredWrappedDek, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deks[scopedID{tenant: tenantID, id: dekID.String()}]
	if !ok {
		return nil, fmt.Errorf("%w: dek %s", errs.ErrNotFound, dekID)
	}
	return &d, nil
}

// SaveShareGrant implements keys.Repository.
func (r *Repository) SaveShareGrant(_ context.Context, g keys.StoredShareGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := scopedID{tenant: g.TenantID, id: g.GrantID.String()}
	if _, ok := r.grants[id]; ok {
		return fmt.Errorf("%w: share grant %s", errs.ErrAlreadyExists, g.GrantID)
	}
	r.grants[id] = g
	return nil
}

// FindShareGrant implements keys.Repository.
func (r *Repository) FindShareGrant(_ context.Context, tenantID core.TenantID, grantID keys.ShareGrantID) (*keys.StoredShareGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.grants[scopedID{tenant: tenantID, id: grantID.String()}]
	if !ok {
		return nil, fmt.Errorf("%w: share grant %s", errs.ErrNotFound, grantID)
	}
	return &g, nil
}

// DeleteShareGrant implements keys.Repository.
func (r *Repository) DeleteShareGrant(_ context.Context, tenantID core.TenantID, grantID keys.ShareGrantID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.grants, scopedID{tenant: tenantID, id: grantID.String()})
	return nil
}

// ActiveShareGrantsForDek implements keys.Repository.
func (r *Repository) ActiveShareGrantsForDek(_ context.Context, tenantID core.TenantID, dekID keys.DekID, accessingUser core.UserID, now time.Time) ([]keys.StoredShareGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []keys.StoredShareGrant
	for _, g := range r.grants {
		if g.TenantID != tenantID || g.DataReference != dekID.String() {
			continue
		}
		if g.GranteeType != keys.GranteeUser || g.GranteeID != accessingUser.String() {
			continue
		}
		if g.Expired(now) {
			continue
		}
		out = append(out, g)
	}
	sortGrants(out)
	return out, nil
}

// ShareGrantsForOwner implements keys.Repository.
func (r *Repository) ShareGrantsForOwner(_ context.Context, tenantID core.TenantID, ownerUserID core.UserID) ([]keys.StoredShareGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []keys.StoredShareGrant
	for _, g := range r.grants {
		if g.TenantID == tenantID && g.OwnerUserID == ownerUserID {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

// ExpiredShareGrants implements keys.Repository.
func (r *Repository) ExpiredShareGrants(_ context.Context, cutoff time.Time) ([]keys.StoredShareGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []keys.StoredShareGrant
	for _, g := range r.grants {
		if g.ExpiresAt != nil && g.ExpiresAt.Before(cutoff) {
			out = append(out, g)
		}
	}
	sortGrants(out)
	return out, nil
}

func sortGrants(grants []keys.StoredShareGrant) {
	sort.Slice(grants, func(i, j int) bool {
		if grants[i].CreatedAt.Equal(grants[j].CreatedAt) {
			return grants[i].GrantID.String() < grants[j].GrantID.String()
		}
		return grants[i].CreatedAt.Before(grants[j].CreatedAt)
	})
}

var _ keys.Repository = (*Repository)(nil)

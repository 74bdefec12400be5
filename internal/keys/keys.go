// Package keys models the envelope key hierarchy at rest: wrapped user keys,
// wrapped data encryption keys (DEKs), and share grants. It holds no crypto
// and no business rules; those live in internal/crypto and internal/kms.
package keys

import (
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/sesdev/conduit/internal/core"
)

// DekID identifies one data encryption key. A fresh DEK (and DekID) is minted
// for every encryption operation, so the id doubles as the stored row's
// key context id.
type DekID uuid.UUID

// NewDekID returns a random DekID.
func NewDekID() DekID { return DekID(uuid.Must(uuid.NewV4())) }

// ParseDekID parses the canonical UUID string form.
func ParseDekID(s string) (DekID, error) {
	u, err := uuid.FromString(s)
	return DekID(u), err
}

func (d DekID) UUID() uuid.UUID { return uuid.UUID(d) }
func (d DekID) String() string  { return uuid.UUID(d).String() }
func (d DekID) IsZero() bool    { return uuid.UUID(d) == uuid.Nil }

// ShareGrantID identifies one share grant. Grant ids and DEK ids share the
// UUID space; the KMS resolves grants first on lookup.
type ShareGrantID uuid.UUID

// NewShareGrantID returns a random ShareGrantID.
func NewShareGrantID() ShareGrantID { return ShareGrantID(uuid.Must(uuid.NewV4())) }

// ParseShareGrantID parses the canonical UUID string form.
func ParseShareGrantID(s string) (ShareGrantID, error) {
	u, err := uuid.FromString(s)
	return ShareGrantID(u), err
}

func (g ShareGrantID) UUID() uuid.UUID { return uuid.UUID(g) }
func (g ShareGrantID) String() string  { return uuid.UUID(g).String() }
func (g ShareGrantID) IsZero() bool    { return uuid.UUID(g) == uuid.Nil }

// GranteeType enumerates who a grant targets. Only GranteeUser is wired today;
// the KMS rejects the others instead of silently succeeding.
type GranteeType string

const (
	GranteeUser   GranteeType = "USER"
	GranteeRole   GranteeType = "ROLE"
	GranteeTenant GranteeType = "TENANT"
)

// StoredUserKey is a user's primary key wrapped by the tenant master key,
// keyed by (UserID, TenantID).
type StoredUserKey struct {
	UserID      core.UserID
	TenantID    core.TenantID
	WrappedKey  []byte // proto-marshaled wrapping.BlobInfo
	MasterKeyID string
	AlgorithmID string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StoredWrappedDek is a DEK wrapped by its owner's user key. The owner can
// always recover the DEK through their own key; everyone else needs a grant.
type StoredWrappedDek struct {
	DekID       DekID
	OwnerUserID core.UserID
	TenantID    core.TenantID
	WrappedDek  []byte
	OwnerKeyID  string // id of the master key behind the owner's user key
	AlgorithmID string
	CreatedAt   time.Time
}

// StoredShareGrant re-wraps an owner's DEK under a grantee's key material.
// DataName and Purpose are business metadata carried for the sharing layer so
// a grant row is self-describing. ExpiresAt nil means the grant is permanent.
type StoredShareGrant struct {
	GrantID          ShareGrantID
	TenantID         core.TenantID
	OwnerUserID      core.UserID
	DataReference    string // DekID in canonical string form
	GranteeType      GranteeType
	GranteeID        string
	EncryptedDataKey []byte
	GranteeKeyID     string
	AlgorithmID      string
	DataName         string
	Purpose          string
	ExpiresAt        *time.Time
	CreatedAt        time.Time
}

// Expired reports whether the grant's expiration has passed at the given instant.
// Permanent grants never expire.
func (g *StoredShareGrant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && g.ExpiresAt.Before(now)
}

// ShareGrantDetails is the request to create a share grant. GrantID may be
// supplied by the caller; when zero the KMS generates one. Reusing an existing
// id is an error, never an overwrite.
type ShareGrantDetails struct {
	GrantID       ShareGrantID
	OwnerUserID   core.UserID
	DataReference string // must parse as a DekID
	GranteeType   GranteeType
	GranteeID     string
	DataName      string
	Purpose       string
	ExpiresAt     *time.Time
}

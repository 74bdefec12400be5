// Package core defines the identity types shared by every layer. Each identity
// class gets its own defined type so a tenant id can never be passed where a
// user id is expected.
package core

import "github.com/gofrs/uuid/v5"

// TenantID identifies a tenant. Master keys and all stored rows are scoped by it.
type TenantID uuid.UUID

// NewTenantID returns a random TenantID.
func NewTenantID() TenantID { return TenantID(uuid.Must(uuid.NewV4())) }

// ParseTenantID parses the canonical UUID string form.
func ParseTenantID(s string) (TenantID, error) {
	u, err := uuid.FromString(s)
	return TenantID(u), err
}

func (t TenantID) UUID() uuid.UUID { return uuid.UUID(t) }
func (t TenantID) String() string  { return uuid.UUID(t).String() }
func (t TenantID) IsZero() bool    { return uuid.UUID(t) == uuid.Nil }

// UserID identifies a user, both as an actor and as the owner of key material.
type UserID uuid.UUID

// NewUserID returns a random UserID.
func NewUserID() UserID { return UserID(uuid.Must(uuid.NewV4())) }

// ParseUserID parses the canonical UUID string form.
func ParseUserID(s string) (UserID, error) {
	u, err := uuid.FromString(s)
	return UserID(u), err
}

func (u UserID) UUID() uuid.UUID { return uuid.UUID(u) }
func (u UserID) String() string  { return uuid.UUID(u).String() }
func (u UserID) IsZero() bool    { return uuid.UUID(u) == uuid.Nil }

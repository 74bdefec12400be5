// Package encryption defines the pluggable cipher boundary used by the event
// store: plaintext in, ciphertext plus metadata out, and back. Implementations
// resolve keys through the KMS; callers never see key material.
package encryption

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/keys"
)

// KeyContext carries the identities an encryption operation runs under.
// A fresh DekID is minted per context, so every encrypted record gets its own
// DEK and the id doubles as the record's retrieval context.
type KeyContext struct {
	TenantID core.TenantID
	UserID   core.UserID
	DekID    keys.DekID
}

// NewKeyContext mints a context with a fresh DekID.
func NewKeyContext(tenantID core.TenantID, userID core.UserID) KeyContext {
	return KeyContext{TenantID: tenantID, UserID: userID, DekID: keys.NewDekID()}
}

// EncryptedValue is ciphertext plus the metadata needed to decrypt it later.
// KeyContextID is resolved by the KMS to a key: it names either the DEK minted
// at encryption time or a share grant re-wrapping that DEK.
type EncryptedValue struct {
	Data         []byte
	AlgorithmID  string
	KeyContextID uuid.UUID
}

// Service is the cipher boundary. The cryptographic scheme behind it is
// pluggable, but the metadata shape and failure modes are binding: decrypt
// must fail with errs.ErrAlgorithmMismatch when the stored algorithm id is not
// its own, and with errs.ErrAccessDenied when the caller holds no usable key.
type Service interface {
	// AlgorithmID returns the identifier recorded alongside ciphertext.
	AlgorithmID() string

	// Encrypt seals plaintext under a key derived for kc and registers the
	// wrapped DEK with the KMS under kc.DekID.
	Encrypt(ctx context.Context, plaintext []byte, kc KeyContext) (EncryptedValue, error)

	// Decrypt recovers plaintext for the accessing user, resolving
	// ev.KeyContextID through the KMS grant-or-ownership lookup.
	Decrypt(ctx context.Context, ev EncryptedValue, tenantID core.TenantID, accessingUser core.UserID) ([]byte, error)
}

// KeyManager is the slice of the KMS the encryption service needs.
type KeyManager interface {
	// WrapAndStoreDekAs wraps dek under the owner's user key and persists it
	// under the caller-supplied id.
	WrapAndStoreDekAs(ctx context.Context, tenantID core.TenantID, ownerUserID core.UserID, dekID keys.DekID, dek []byte) error

	// ResolveDecryptionKey runs the grant-or-ownership lookup. ok=false with a
	// nil error means the caller may not decrypt; it is not a failure.
	ResolveDecryptionKey(ctx context.Context, tenantID core.TenantID, accessingUser core.UserID, contextID uuid.UUID) (dek []byte, ok bool, err error)
}

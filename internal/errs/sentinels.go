// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates optimistic concurrency failure (expected stream version mismatch).
	ErrVersionConflict = errors.New("version conflict")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., share grant id reused).
	ErrAlreadyExists = errors.New("already exists")

	// ErrSequenceMismatch indicates an event batch whose versions do not follow
	// expectedVersion+1..expectedVersion+n. A programming defect upstream, not a domain error.
	ErrSequenceMismatch = errors.New("event sequence mismatch")

	// ErrCorruptHistory indicates a replayed stream with a version gap or a foreign
	// event type. Irrecoverable; never handled as a domain error.
	ErrCorruptHistory = errors.New("corrupt event history")

	// ErrSerialization indicates an event payload that cannot be encoded or decoded.
	// Distinct from ErrDecryption so callers can tell "wrong key" from "valid key, bad data".
	ErrSerialization = errors.New("serialization failure")

	// ErrEncryption indicates the cipher failed to produce ciphertext.
	ErrEncryption = errors.New("encryption failure")

	// ErrDecryption indicates the cipher failed to recover plaintext (corrupt ciphertext, bad key).
	ErrDecryption = errors.New("decryption failure")

	// ErrAlgorithmMismatch indicates stored algorithm metadata that does not match the
	// active encryption service. Kept distinct from generic decryption failure.
	ErrAlgorithmMismatch = errors.New("encryption algorithm mismatch")

	// ErrKeyManagement indicates a key-management failure (missing key material, invalid request).
	ErrKeyManagement = errors.New("key management failure")

	// ErrOwnerMismatch indicates a share-grant request whose declared owner is not the
	// DEK's recorded owner.
	ErrOwnerMismatch = errors.New("owner mismatch")

	// ErrUnsupportedGrantee indicates a grantee type the KMS cannot wrap keys for yet.
	ErrUnsupportedGrantee = errors.New("unsupported grantee type")

	// ErrAccessDenied indicates the caller holds no usable key for a record. This is an
	// expected outcome on read paths, not a system failure.
	ErrAccessDenied = errors.New("access denied")
)

// Package crypto contains the envelope-encryption primitives: XChaCha20-Poly1305
// key wrapping and payload sealing, plus the tenant master-key tier built on
// go-kms-wrapping AEAD wrappers.
package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/sesdev/conduit/internal/errs"
)

// Params
const (
	// KeyLen is the byte length of user keys and DEKs.
	KeyLen = 32

	// AlgorithmKeyWrap identifies the XChaCha20-Poly1305 wrap used between
	// user keys and DEKs, and between DEKs and payloads.
	AlgorithmKeyWrap = "xchacha20poly1305"

	// AlgorithmMasterWrap identifies the AES-256-GCM AEAD wrapper used by the
	// master-key tier.
	AlgorithmMasterWrap = "aead-aes256-gcm"
)

// Rand returns n cryptographically random bytes.
func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// GenerateKey returns fresh symmetric key material for a user key or DEK.
func GenerateKey() ([]byte, error) { return Rand(KeyLen) }

// WrapKey encrypts key with wrappingKey using XChaCha20-Poly1305 and a random
// nonce prefixed to the output.
func WrapKey(wrappingKey, key []byte) ([]byte, error) {
	return seal(wrappingKey, key, nil)
}

// UnwrapKey decrypts a wrapped key produced by WrapKey.
func UnwrapKey(wrappingKey, wrapped []byte) ([]byte, error) {
	return open(wrappingKey, wrapped, nil)
}

// SealPayload encrypts plaintext under a DEK, binding aad (the tenant id) as
// associated data. Output is nonce || ciphertext+tag.
func SealPayload(dek, aad, plaintext []byte) ([]byte, error) {
	return seal(dek, plaintext, aad)
}

// OpenPayload decrypts a payload produced by SealPayload with the same aad.
func OpenPayload(dek, aad, blob []byte) ([]byte, error) {
	return open(dek, blob, aad)
}

func seal(key, plaintext, aad []byte) ([]byte, error) {
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrEncryption, err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+a.Overhead())
	out = append(out, nonce...)
	out = append(out, a.Seal(nil, nonce, plaintext, aad)...)
	return out, nil
}

func open(key, blob, aad []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("%w: blob too short", errs.ErrDecryption)
	}
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDecryption, err)
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	pt, err := a.Open(nil, nonce, ct, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errs.ErrDecryption, err)
	}
	return pt, nil
}

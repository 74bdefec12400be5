package encryption

import (
	"context"
	"fmt"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/crypto"
	"github.com/sesdev/conduit/internal/errs"
)

// XChaChaService seals payloads with XChaCha20-Poly1305 under a per-record DEK.
// Each Encrypt mints a DEK, seals the plaintext, and hands the DEK to the KMS
// to be wrapped under the owner's user key.
type XChaChaService struct {
	km KeyManager
}

// NewXChaChaService builds the production encryption service.
func NewXChaChaService(km KeyManager) *XChaChaService {
	return &XChaChaService{km: km}
}

// AlgorithmID implements Service.
func (s *XChaChaService) AlgorithmID() string { return crypto.AlgorithmKeyWrap }

// Encrypt implements Service.
func (s *XChaChaService) Encrypt(ctx context.Context, plaintext []byte, kc KeyContext) (EncryptedValue, error) {
	dek, err := crypto.GenerateKey()
	if err != nil {
		return EncryptedValue{}, fmt.Errorf("%w: generating dek: %w", errs.ErrEncryption, err)
	}
	ct, err := crypto.SealPayload(dek, kc.TenantID.UUID().Bytes(), plaintext)
	if err != nil {
		return EncryptedValue{}, err
	}
	// The wrapped DEK must land under the same id the row will carry, or the
	// ciphertext becomes unrecoverable.
	if err := s.km.WrapAndStoreDekAs(ctx, kc.TenantID, kc.UserID, kc.DekID, dek); err != nil {
		return EncryptedValue{}, err
	}
	return EncryptedValue{Data: ct, AlgorithmID: s.AlgorithmID(), KeyContextID: kc.DekID.UUID()}, nil
}

// Decrypt implements Service.
func (s *XChaChaService) Decrypt(ctx context.Context, ev EncryptedValue, tenantID core.TenantID, accessingUser core.UserID) ([]byte, error) {
	if ev.AlgorithmID != s.AlgorithmID() {
		return nil, fmt.Errorf("%w: stored %q, active %q (context %s)",
			errs.ErrAlgorithmMismatch, ev.AlgorithmID, s.AlgorithmID(), ev.KeyContextID)
	}
	dek, ok, err := s.km.ResolveDecryptionKey(ctx, tenantID, accessingUser, ev.KeyContextID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no usable key for context %s", errs.ErrAccessDenied, ev.KeyContextID)
	}
	return crypto.OpenPayload(dek, tenantID.UUID().Bytes(), ev.Data)
}

package crypto

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"

	wrapping "github.com/hashicorp/go-kms-wrapping/v2"
	"github.com/hashicorp/go-kms-wrapping/v2/aead"
	"golang.org/x/crypto/hkdf"
	"google.golang.org/protobuf/proto"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
)

// masterKeyInfo is the HKDF info string for the tenant master-key derivation.
var masterKeyInfo = []byte("conduit-tenant-master-key-v1")

// MasterKeys is the tenant master-key tier. Each tenant's master key is derived
// from a single root key via HKDF-SHA256 with the tenant id as salt, and used
// through an AES-256-GCM AEAD wrapper. Master keys never leave this type.
type MasterKeys struct {
	root []byte
}

// NewMasterKeys builds the master-key tier from root key material.
func NewMasterKeys(rootKey []byte) (*MasterKeys, error) {
	if len(rootKey) != KeyLen {
		return nil, fmt.Errorf("%w: root key must be %d bytes, got %d", errs.ErrKeyManagement, KeyLen, len(rootKey))
	}
	m := &MasterKeys{root: make([]byte, KeyLen)}
	copy(m.root, rootKey)
	return m, nil
}

// KeyIDForTenant returns the master key id recorded next to wrapped user keys.
func (m *MasterKeys) KeyIDForTenant(tenantID core.TenantID) string {
	return "mk-" + tenantID.String()
}

// WrapUserKey wraps a user key under the tenant's master key. The returned
// bytes are a proto-marshaled wrapping.BlobInfo.
func (m *MasterKeys) WrapUserKey(ctx context.Context, tenantID core.TenantID, userKey []byte) (wrapped []byte, masterKeyID string, err error) {
	w, err := m.wrapperFor(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	blob, err := w.Encrypt(ctx, userKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: wrapping user key: %w", errs.ErrEncryption, err)
	}
	out, err := proto.Marshal(blob)
	if err != nil {
		return nil, "", fmt.Errorf("%w: marshaling wrapped user key: %w", errs.ErrEncryption, err)
	}
	return out, m.KeyIDForTenant(tenantID), nil
}

// UnwrapUserKey recovers a user key wrapped by WrapUserKey.
func (m *MasterKeys) UnwrapUserKey(ctx context.Context, tenantID core.TenantID, wrapped []byte) ([]byte, error) {
	w, err := m.wrapperFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var blob wrapping.BlobInfo
	if err := proto.Unmarshal(wrapped, &blob); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling wrapped user key: %w", errs.ErrDecryption, err)
	}
	key, err := w.Decrypt(ctx, &blob)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrapping user key: %w", errs.ErrDecryption, err)
	}
	return key, nil
}

func (m *MasterKeys) wrapperFor(ctx context.Context, tenantID core.TenantID) (*aead.Wrapper, error) {
	key := make([]byte, KeyLen)
	r := hkdf.New(sha256.New, m.root, tenantID.UUID().Bytes(), masterKeyInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("%w: deriving tenant master key: %w", errs.ErrKeyManagement, err)
	}
	w := aead.NewWrapper()
	if _, err := w.SetConfig(ctx, wrapping.WithKeyId(m.KeyIDForTenant(tenantID))); err != nil {
		return nil, fmt.Errorf("%w: configuring master wrapper: %w", errs.ErrKeyManagement, err)
	}
	if err := w.SetAesGcmKeyBytes(key); err != nil {
		return nil, fmt.Errorf("%w: setting master key bytes: %w", errs.ErrKeyManagement, err)
	}
	return w, nil
}

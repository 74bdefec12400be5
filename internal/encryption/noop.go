package encryption

import (
	"context"
	"fmt"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
)

// AlgorithmNoOp marks ciphertext that is not actually encrypted.
const AlgorithmNoOp = "noop"

// NoOpService passes payloads through unencrypted. Test use only; it still
// enforces the algorithm-id contract so metadata handling stays honest.
type NoOpService struct{}

// AlgorithmID implements Service.
func (NoOpService) AlgorithmID() string { return AlgorithmNoOp }

// Encrypt implements Service.
func (NoOpService) Encrypt(_ context.Context, plaintext []byte, kc KeyContext) (EncryptedValue, error) {
	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	return EncryptedValue{Data: out, AlgorithmID: AlgorithmNoOp, KeyContextID: kc.DekID.UUID()}, nil
}

// Decrypt implements Service.
func (NoOpService) Decrypt(_ context.Context, ev EncryptedValue, _ core.TenantID, _ core.UserID) ([]byte, error) {
	if ev.AlgorithmID != AlgorithmNoOp {
		return nil, fmt.Errorf("%w: stored %q, active %q", errs.ErrAlgorithmMismatch, ev.AlgorithmID, AlgorithmNoOp)
	}
	out := make([]byte, len(ev.Data))
	copy(out, ev.Data)
	return out, nil
}

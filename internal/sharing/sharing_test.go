package sharing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/crypto"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/keys"
	"github.com/sesdev/conduit/internal/keys/inmem"
	"github.com/sesdev/conduit/internal/kms"
)

type fixture struct {
	svc    *Service
	km     *kms.ServiceImpl
	tenant core.TenantID
	owner  core.UserID
	target core.UserID
	dekID  keys.DekID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root, err := crypto.GenerateKey()
	require.NoError(t, err)
	master, err := crypto.NewMasterKeys(root)
	require.NoError(t, err)
	repo := inmem.New()
	km := kms.NewService(repo, master, zap.NewNop())

	ctx := context.Background()
	tenant := core.NewTenantID()
	owner := core.NewUserID()
	target := core.NewUserID()
	_, err = km.GenerateAndWrapUserKey(ctx, tenant, owner)
	require.NoError(t, err)
	_, err = km.GenerateAndWrapUserKey(ctx, tenant, target)
	require.NoError(t, err)

	dek, err := crypto.GenerateKey()
	require.NoError(t, err)
	dekID, err := km.WrapAndStoreDekForOwner(ctx, tenant, owner, dek)
	require.NoError(t, err)

	return &fixture{
		svc:    NewService(km, repo, zap.NewNop()),
		km:     km,
		tenant: tenant,
		owner:  owner,
		target: target,
		dekID:  dekID,
	}
}

func TestAuthorizeUserSharing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.AuthorizeUserSharing(ctx, f.tenant, f.owner, f.dekID, f.target,
		"fitness goals", PurposeReview, time.Hour)
	require.NoError(t, err)
	require.False(t, auth.ID.IsZero())
	require.Equal(t, f.owner, auth.OwnerUserID)
	require.Equal(t, f.target, auth.TargetUserID)
	require.NotNil(t, auth.ExpiresAt)

	// the grant actually lets the target decrypt
	_, ok, err := f.km.ResolveDecryptionKey(ctx, f.tenant, f.target, auth.ID.UUID())
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAuthorizeUserSharing_ZeroTTLIsPermanent(t *testing.T) {
	f := newFixture(t)

	auth, err := f.svc.AuthorizeUserSharing(context.Background(), f.tenant, f.owner, f.dekID, f.target,
		"journal", PurposeCollaboration, 0)
	require.NoError(t, err)
	require.Nil(t, auth.ExpiresAt)
	require.True(t, auth.Active(time.Now().Add(1000*time.Hour)))
}

func TestAuthorizeUserSharing_NonOwnerFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.AuthorizeUserSharing(context.Background(), f.tenant, f.target, f.dekID, f.owner,
		"stolen", PurposeOther, time.Hour)
	require.ErrorIs(t, err, errs.ErrOwnerMismatch)
}

func TestRevoke_OwnerOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	auth, err := f.svc.AuthorizeUserSharing(ctx, f.tenant, f.owner, f.dekID, f.target,
		"fitness goals", PurposeReview, time.Hour)
	require.NoError(t, err)

	err = f.svc.Revoke(ctx, f.tenant, auth.ID, f.target)
	require.ErrorIs(t, err, errs.ErrOwnerMismatch)

	require.NoError(t, f.svc.Revoke(ctx, f.tenant, auth.ID, f.owner))

	_, ok, err := f.km.ResolveDecryptionKey(ctx, f.tenant, f.target, auth.ID.UUID())
	require.NoError(t, err)
	require.False(t, ok)

	// already gone, not an error
	require.NoError(t, f.svc.Revoke(ctx, f.tenant, auth.ID, f.owner))
}

func TestListActiveGrantedBy_FiltersExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	live, err := f.svc.AuthorizeUserSharing(ctx, f.tenant, f.owner, f.dekID, f.target,
		"fitness goals", PurposeReview, time.Hour)
	require.NoError(t, err)

	base := time.Now().UTC()
	f.svc.now = func() time.Time { return base.Add(-2 * time.Hour) }
	expired, err := f.svc.AuthorizeUserSharing(ctx, f.tenant, f.owner, f.dekID, f.target,
		"old report", PurposeAudit, time.Hour)
	require.NoError(t, err)
	f.svc.now = time.Now

	out, err := f.svc.ListActiveGrantedBy(ctx, f.tenant, f.owner)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, live.ID, out[0].ID)
	require.NotEqual(t, expired.ID, out[0].ID)
	require.Equal(t, "fitness goals", out[0].DataName)
	require.Equal(t, PurposeReview, out[0].Purpose)
}

func TestListActiveGrantedBy_EmptyForStranger(t *testing.T) {
	f := newFixture(t)

	out, err := f.svc.ListActiveGrantedBy(context.Background(), f.tenant, core.NewUserID())
	require.NoError(t, err)
	require.Empty(t, out)
}

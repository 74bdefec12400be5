package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/errs"
	"github.com/sesdev/conduit/internal/keys"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

var shareGrantCols = []string{"share_grant_id", "tenant_id", "owner_user_id", "data_reference", "grantee_type",
	"grantee_id", "encrypted_data_key", "grantee_key_id", "algorithm_id", "data_name", "purpose", "expires_at", "created_at"}

func grantRow(g keys.StoredShareGrant) []any {
	return []any{g.GrantID.UUID(), g.TenantID.UUID(), g.OwnerUserID.UUID(), g.DataReference, string(g.GranteeType),
		g.GranteeID, g.EncryptedDataKey, g.GranteeKeyID, g.AlgorithmID, g.DataName, g.Purpose, g.ExpiresAt, g.CreatedAt}
}

func sampleGrant(tenant core.TenantID, owner core.UserID) keys.StoredShareGrant {
	exp := time.Now().Add(time.Hour).UTC()
	return keys.StoredShareGrant{
		GrantID:          keys.NewShareGrantID(),
		TenantID:         tenant,
		OwnerUserID:      owner,
		DataReference:    keys.NewDekID().String(),
		GranteeType:      keys.GranteeUser,
		GranteeID:        core.NewUserID().String(),
		EncryptedDataKey: []byte("wrapped"),
		GranteeKeyID:     "mk-x",
		AlgorithmID:      "xchacha20poly1305",
		DataName:         "fitness goals",
		Purpose:          "REVIEW",
		ExpiresAt:        &exp,
		CreatedAt:        time.Now().UTC(),
	}
}

func TestKeyRepo_SaveWrappedUserKey_OK(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	tenant := core.NewTenantID()
	user := core.NewUserID()

	mock.ExpectExec(`INSERT INTO user_keys`).
		WithArgs(user.UUID(), tenant.UUID(), []byte("blob"), "mk-1", "aead-aes256-gcm", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := r.SaveWrappedUserKey(context.Background(), keys.StoredUserKey{
		UserID: user, TenantID: tenant, WrappedKey: []byte("blob"),
		MasterKeyID: "mk-1", AlgorithmID: "aead-aes256-gcm",
	})
	require.NoError(t, err)
}

func TestKeyRepo_FindWrappedUserKey_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	ctx := context.Background()
	tenant := core.NewTenantID()
	user := core.NewUserID()
	ts := time.Now().UTC()

	cols := []string{"user_id", "tenant_id", "wrapped_key", "master_key_id", "algorithm_id", "created_at", "updated_at"}
	mock.ExpectQuery(`SELECT .+ FROM user_keys WHERE tenant_id=\$1 AND user_id=\$2`).
		WithArgs(tenant.UUID(), user.UUID()).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(user.UUID(), tenant.UUID(), []byte("blob"), "mk-1", "aead-aes256-gcm", ts, ts))

	k, err := r.FindWrappedUserKey(ctx, tenant, user)
	require.NoError(t, err)
	require.Equal(t, user, k.UserID)
	require.Equal(t, []byte("blob"), k.WrappedKey)
	require.Equal(t, "mk-1", k.MasterKeyID)

	mock.ExpectQuery(`SELECT .+ FROM user_keys WHERE tenant_id=\$1 AND user_id=\$2`).
		WithArgs(tenant.UUID(), user.UUID()).
		WillReturnError(pgx.ErrNoRows)

	_, err = r.FindWrappedUserKey(ctx, tenant, user)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKeyRepo_SaveWrappedDek_OK_And_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	ctx := context.Background()
	tenant := core.NewTenantID()
	owner := core.NewUserID()
	dek := keys.StoredWrappedDek{
		DekID: keys.NewDekID(), OwnerUserID: owner, TenantID: tenant,
		WrappedDek: []byte("wrapped"), OwnerKeyID: "mk-1",
		AlgorithmID: "xchacha20poly1305", CreatedAt: time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO wrapped_deks`).
		WithArgs(dek.DekID.UUID(), owner.UUID(), tenant.UUID(), []byte("wrapped"), "mk-1", "xchacha20poly1305", dek.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.SaveWrappedDek(ctx, dek))

	mock.ExpectExec(`INSERT INTO wrapped_deks`).
		WithArgs(dek.DekID.UUID(), owner.UUID(), tenant.UUID(), []byte("wrapped"), "mk-1", "xchacha20poly1305", dek.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.SaveWrappedDek(ctx, dek), errs.ErrAlreadyExists)
}

func TestKeyRepo_FindWrappedDek_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	ctx := context.Background()
	tenant := core.NewTenantID()
	owner := core.NewUserID()
	dekID := keys.NewDekID()
	ts := time.Now().UTC()

	cols := []string{"dek_id", "owner_user_id", "tenant_id", "wrapped_dek", "owner_key_id", "algorithm_id", "created_at"}
	mock.ExpectQuery(`SELECT .+ FROM wrapped_deks WHERE tenant_id=\$1 AND dek_id=\$2`).
		WithArgs(tenant.UUID(), dekID.UUID()).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(dekID.UUID(), owner.UUID(), tenant.UUID(), []byte("wrapped"), "mk-1", "xchacha20poly1305", ts))

	d, err := r.FindWrappedDek(ctx, tenant, dekID)
	require.NoError(t, err)
	require.Equal(t, dekID, d.DekID)
	require.Equal(t, owner, d.OwnerUserID)

	mock.ExpectQuery(`SELECT .+ FROM wrapped_deks WHERE tenant_id=\$1 AND dek_id=\$2`).
		WithArgs(tenant.UUID(), dekID.UUID()).
		WillReturnError(pgx.ErrNoRows)

	_, err = r.FindWrappedDek(ctx, tenant, dekID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKeyRepo_SaveShareGrant_OK_And_Duplicate(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	ctx := context.Background()
	g := sampleGrant(core.NewTenantID(), core.NewUserID())

	mock.ExpectExec(`INSERT INTO share_grants`).
		WithArgs(g.GrantID.UUID(), g.TenantID.UUID(), g.OwnerUserID.UUID(), g.DataReference, string(g.GranteeType),
			g.GranteeID, g.EncryptedDataKey, g.GranteeKeyID, g.AlgorithmID, g.DataName, g.Purpose, g.ExpiresAt, g.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, r.SaveShareGrant(ctx, g))

	mock.ExpectExec(`INSERT INTO share_grants`).
		WithArgs(g.GrantID.UUID(), g.TenantID.UUID(), g.OwnerUserID.UUID(), g.DataReference, string(g.GranteeType),
			g.GranteeID, g.EncryptedDataKey, g.GranteeKeyID, g.AlgorithmID, g.DataName, g.Purpose, g.ExpiresAt, g.CreatedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	require.ErrorIs(t, r.SaveShareGrant(ctx, g), errs.ErrAlreadyExists)
}

func TestKeyRepo_FindShareGrant_OK_And_NotFound(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	ctx := context.Background()
	g := sampleGrant(core.NewTenantID(), core.NewUserID())

	mock.ExpectQuery(`FROM share_grants WHERE tenant_id=\$1 AND share_grant_id=\$2`).
		WithArgs(g.TenantID.UUID(), g.GrantID.UUID()).
		WillReturnRows(pgxmock.NewRows(shareGrantCols).AddRow(grantRow(g)...))

	got, err := r.FindShareGrant(ctx, g.TenantID, g.GrantID)
	require.NoError(t, err)
	require.Equal(t, g.GrantID, got.GrantID)
	require.Equal(t, g.DataReference, got.DataReference)
	require.Equal(t, keys.GranteeUser, got.GranteeType)

	mock.ExpectQuery(`FROM share_grants WHERE tenant_id=\$1 AND share_grant_id=\$2`).
		WithArgs(g.TenantID.UUID(), g.GrantID.UUID()).
		WillReturnError(pgx.ErrNoRows)

	_, err = r.FindShareGrant(ctx, g.TenantID, g.GrantID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKeyRepo_DeleteShareGrant_MissingIsNotError(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	tenant := core.NewTenantID()
	grantID := keys.NewShareGrantID()

	mock.ExpectExec(`DELETE FROM share_grants WHERE tenant_id=\$1 AND share_grant_id=\$2`).
		WithArgs(tenant.UUID(), grantID.UUID()).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	require.NoError(t, r.DeleteShareGrant(context.Background(), tenant, grantID))
}

func TestKeyRepo_ActiveShareGrantsForDek(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	tenant := core.NewTenantID()
	owner := core.NewUserID()
	grantee := core.NewUserID()
	dekID := keys.NewDekID()
	now := time.Now().UTC()

	g := sampleGrant(tenant, owner)
	g.DataReference = dekID.String()
	g.GranteeID = grantee.String()

	mock.ExpectQuery(`FROM share_grants\s+WHERE tenant_id=\$1 AND data_reference=\$2 AND grantee_type=\$3 AND grantee_id=\$4`).
		WithArgs(tenant.UUID(), dekID.String(), string(keys.GranteeUser), grantee.String(), now).
		WillReturnRows(pgxmock.NewRows(shareGrantCols).AddRow(grantRow(g)...))

	out, err := r.ActiveShareGrantsForDek(context.Background(), tenant, dekID, grantee, now)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, g.GrantID, out[0].GrantID)
}

func TestKeyRepo_ShareGrantsForOwner(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	tenant := core.NewTenantID()
	owner := core.NewUserID()
	g1 := sampleGrant(tenant, owner)
	g2 := sampleGrant(tenant, owner)

	mock.ExpectQuery(`FROM share_grants WHERE tenant_id=\$1 AND owner_user_id=\$2`).
		WithArgs(tenant.UUID(), owner.UUID()).
		WillReturnRows(pgxmock.NewRows(shareGrantCols).AddRow(grantRow(g1)...).AddRow(grantRow(g2)...))

	out, err := r.ShareGrantsForOwner(context.Background(), tenant, owner)
	require.NoError(t, err)
	require.Len(t, out, 2)
}

func TestKeyRepo_ExpiredShareGrants(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	cutoff := time.Now().UTC()
	g := sampleGrant(core.NewTenantID(), core.NewUserID())

	mock.ExpectQuery(`FROM share_grants WHERE expires_at IS NOT NULL AND expires_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(pgxmock.NewRows(shareGrantCols).AddRow(grantRow(g)...))

	out, err := r.ExpiredShareGrants(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, out, 1)
}

func TestKeyRepo_ActiveShareGrantsForDek_QueryErr(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewKeyRepo(db)

	tenant := core.NewTenantID()
	dekID := keys.NewDekID()
	user := core.NewUserID()
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM share_grants`).
		WithArgs(tenant.UUID(), dekID.String(), string(keys.GranteeUser), user.String(), now).
		WillReturnError(errors.New("q-fail"))

	_, err := r.ActiveShareGrantsForDek(context.Background(), tenant, dekID, user, now)
	require.Error(t, err)
}

package corevalues

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sesdev/conduit/internal/core"
	"github.com/sesdev/conduit/internal/es"
)

func initialized(t *testing.T) (*UserCoreValues, core.TenantID) {
	t.Helper()
	tenant := core.NewTenantID()
	return Initialize(core.NewUserID(), tenant), tenant
}

func TestInitializeRaisesOpeningEvent(t *testing.T) {
	v, _ := initialized(t)

	require.Equal(t, int64(1), v.Version())
	pending := v.UncommittedChanges()
	require.Len(t, pending, 1)
	require.IsType(t, Initialized{}, pending[0])
}

func TestCommandsRequireInitialization(t *testing.T) {
	tenant := core.NewTenantID()
	v := NewUserCoreValues(core.NewUserID())

	_, err := v.DefineCustomValue("integrity", tenant)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, v.SelectValue(NewCoreValueID(), "x", true, tenant), ErrNotInitialized)
	require.ErrorIs(t, v.DeselectValue(NewCoreValueID(), tenant), ErrNotInitialized)
}

func TestDefineCustomValue(t *testing.T) {
	v, tenant := initialized(t)

	id, err := v.DefineCustomValue("  curiosity  ", tenant)
	require.NoError(t, err)
	require.False(t, id.IsZero())
	require.Equal(t, "curiosity", v.CustomValues()[id])
}

func TestDefineCustomValue_DuplicateTextCaseInsensitive(t *testing.T) {
	v, tenant := initialized(t)
	_, err := v.DefineCustomValue("Curiosity", tenant)
	require.NoError(t, err)

	_, err = v.DefineCustomValue("curiosity", tenant)
	require.ErrorIs(t, err, ErrCustomValueExists)
}

func TestDefineCustomValue_InvalidText(t *testing.T) {
	v, tenant := initialized(t)

	_, err := v.DefineCustomValue("   ", tenant)
	require.ErrorIs(t, err, ErrInvalidValueText)
}

func TestSelectValue_SystemAndCustom(t *testing.T) {
	v, tenant := initialized(t)

	sysID := NewCoreValueID()
	require.NoError(t, v.SelectValue(sysID, "honesty", true, tenant))

	customID, err := v.DefineCustomValue("craftsmanship", tenant)
	require.NoError(t, err)
	require.NoError(t, v.SelectValue(customID, "craftsmanship", false, tenant))

	selected := v.SelectedValues()
	require.Len(t, selected, 2)
	require.Equal(t, "honesty", selected[sysID])
}

func TestSelectValue_UnknownCustomFails(t *testing.T) {
	v, tenant := initialized(t)

	err := v.SelectValue(NewCoreValueID(), "ghost", false, tenant)
	require.ErrorIs(t, err, ErrValueNotFound)
}

func TestSelectValue_ReSelectIsNoOp(t *testing.T) {
	v, tenant := initialized(t)
	id := NewCoreValueID()
	require.NoError(t, v.SelectValue(id, "honesty", true, tenant))
	before := v.Version()

	require.NoError(t, v.SelectValue(id, "honesty", true, tenant))
	require.Equal(t, before, v.Version())
}

func TestSelectValue_LimitOfFive(t *testing.T) {
	v, tenant := initialized(t)
	for i := 0; i < SelectionLimit; i++ {
		require.NoError(t, v.SelectValue(NewCoreValueID(), fmt.Sprintf("value-%d", i), true, tenant))
	}

	err := v.SelectValue(NewCoreValueID(), "one too many", true, tenant)
	require.ErrorIs(t, err, ErrSelectionLimit)
}

func TestDeselectValue(t *testing.T) {
	v, tenant := initialized(t)
	id := NewCoreValueID()
	require.NoError(t, v.SelectValue(id, "honesty", true, tenant))

	require.NoError(t, v.DeselectValue(id, tenant))
	require.Empty(t, v.SelectedValues())

	// slot is free again
	require.NoError(t, v.SelectValue(NewCoreValueID(), "patience", true, tenant))
}

func TestDeselectValue_NotSelectedIsError(t *testing.T) {
	v, tenant := initialized(t)

	require.ErrorIs(t, v.DeselectValue(NewCoreValueID(), tenant), ErrValueNotSelected)
}

func TestReplayRebuildsValueSet(t *testing.T) {
	v, tenant := initialized(t)
	customID, err := v.DefineCustomValue("grit", tenant)
	require.NoError(t, err)
	require.NoError(t, v.SelectValue(customID, "grit", false, tenant))
	sysID := NewCoreValueID()
	require.NoError(t, v.SelectValue(sysID, "honesty", true, tenant))
	require.NoError(t, v.DeselectValue(sysID, tenant))

	history := v.UncommittedChanges()
	fresh := NewUserCoreValues(v.UserID())
	require.NoError(t, fresh.LoadFromHistory(history))

	require.Equal(t, v.Version(), fresh.Version())
	require.Equal(t, map[CoreValueID]string{customID: "grit"}, fresh.SelectedValues())
	require.Equal(t, "grit", fresh.CustomValues()[customID])
	require.Empty(t, fresh.UncommittedChanges())
}

func TestEventsSurviveCodecRoundTrip(t *testing.T) {
	codec := es.NewCodec()
	RegisterEvents(codec)

	tenant := core.NewTenantID()
	in := ValueSelected{
		EventMeta: es.NewEventMeta(tenant, 2),
		ValueID:   NewCoreValueID(),
		Text:      "kindness",
		IsCustom:  true,
	}

	payload, err := codec.Encode(in)
	require.NoError(t, err)
	out, err := codec.Decode(TypeValueSelected, "1", payload)
	require.NoError(t, err)

	decoded := out.(ValueSelected)
	require.Equal(t, in.ValueID, decoded.ValueID)
	require.Equal(t, "kindness", decoded.Text)
	require.True(t, decoded.IsCustom)
}

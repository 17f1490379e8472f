package entities

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type teamsUser struct {
	AadID string `json:"aad_id"`
	Name  string `json:"name"`
}

func TestPut_AppendsNewTag(t *testing.T) {
	list := Put(nil, MustNew("teams.account", teamsUser{AadID: "u-1"}))
	list = Put(list, MustNew("profile", map[string]string{"title": "Engineer"}))

	assert.Equal(t, []string{"teams.account", "profile"}, list.Tags())
}

func TestPut_ReplacesSameTag(t *testing.T) {
	list := Put(nil, MustNew("teams.account", teamsUser{AadID: "u-1", Name: "Ann"}))
	list = Put(list, MustNew("teams.account", teamsUser{AadID: "u-1", Name: "Ann B"}))

	require.Len(t, list, 1)
	user, ok, err := GetAs[teamsUser](list, "teams.account")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ann B", user.Name)
}

func TestPut_DoesNotMutateOriginal(t *testing.T) {
	original := Put(nil, MustNew("teams.account", teamsUser{Name: "Ann"}))
	updated := Put(original, MustNew("teams.account", teamsUser{Name: "Bea"}))

	user, _, err := GetAs[teamsUser](original, "teams.account")
	require.NoError(t, err)
	assert.Equal(t, "Ann", user.Name)

	user, _, err = GetAs[teamsUser](updated, "teams.account")
	require.NoError(t, err)
	assert.Equal(t, "Bea", user.Name)
}

func TestGetAs_AbsentTag(t *testing.T) {
	list := Put(nil, MustNew("profile", map[string]string{"title": "Engineer"}))

	_, ok, err := GetAs[teamsUser](list, "teams.account")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetAs_DecodeMismatch(t *testing.T) {
	list := Put(nil, MustNew("teams.account", "not an object"))

	_, ok, err := GetAs[teamsUser](list, "teams.account")
	require.Error(t, err)
	assert.False(t, ok)
}

func TestList_ScanValueRoundTrip(t *testing.T) {
	list := Put(nil, MustNew("teams.account", teamsUser{AadID: "u-1", Name: "Ann"}))

	value, err := list.Value()
	require.NoError(t, err)

	var scanned List
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, list.Tags(), scanned.Tags())
}

func TestList_ScanNil(t *testing.T) {
	var scanned List
	require.NoError(t, scanned.Scan(nil))
	assert.Nil(t, scanned)
}

func newTestRegistry() *Registry {
	return NewRegistry(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
}

func TestRegistry_DecodeKnownTag(t *testing.T) {
	reg := newTestRegistry()
	reg.Register("teams.account", func() any { return &teamsUser{} })

	decoded, err := reg.Decode(MustNew("teams.account", teamsUser{AadID: "u-1", Name: "Ann"}))
	require.NoError(t, err)

	user, ok := decoded.(*teamsUser)
	require.True(t, ok)
	assert.Equal(t, "Ann", user.Name)
}

func TestRegistry_UnknownTagPassesThroughOpaque(t *testing.T) {
	reg := newTestRegistry()

	raw := MustNew("future.fragment", map[string]string{"v": "2"})
	decoded, err := reg.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded, "unknown tags survive as raw entities")
}

func TestRegistry_ShapeMismatchIsError(t *testing.T) {
	reg := newTestRegistry()
	reg.Register("teams.account", func() any { return &teamsUser{} })

	_, err := reg.Decode(MustNew("teams.account", "not an object"))
	assert.Error(t, err)
}

func TestRegistry_RegisterLastWins(t *testing.T) {
	reg := newTestRegistry()
	reg.Register("teams.account", func() any { return &teamsUser{} })
	reg.Register("teams.account", func() any { return &map[string]any{} })

	decoded, err := reg.Decode(MustNew("teams.account", map[string]any{"k": "v"}))
	require.NoError(t, err)
	_, isMap := decoded.(*map[string]any)
	assert.True(t, isMap)
	assert.Equal(t, []string{"teams.account"}, reg.Tags())
}

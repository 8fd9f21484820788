package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPlatform(t *testing.T) {
	r := New(t.TempDir())

	info, err := r.RegisterPlatform("testapp", "", "", false)
	require.NoError(t, err)
	assert.Equal(t, "testapp", info.Name)
	assert.Empty(t, info.Schemas)
	assert.Empty(t, info.DBUser)

	_, err = r.RegisterPlatform("testapp", "", "", false)
	assert.Error(t, err)
}

func TestInvalidPlatformName(t *testing.T) {
	r := New(t.TempDir())

	_, err := r.RegisterPlatform("test-app", "", "", false)
	assert.Error(t, err)
	_, err = r.RegisterPlatform("test app", "", "", false)
	assert.Error(t, err)
	_, err = r.RegisterPlatform("", "", "", false)
	assert.Error(t, err)
	_, err = r.RegisterPlatform("Test_DB", "", "", false)
	assert.Error(t, err)
}

func TestListPlatforms(t *testing.T) {
	r := New(t.TempDir())

	_, err := r.RegisterPlatform("app_a", "", "", false)
	require.NoError(t, err)
	_, err = r.RegisterPlatform("app_b", "", "", false)
	require.NoError(t, err)

	platforms, err := r.ListPlatforms()
	require.NoError(t, err)
	assert.Equal(t, []string{"app_a", "app_b"}, platforms)
}

func TestRecordAndListDatabases(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.RegisterPlatform("acme", "", "", false)
	require.NoError(t, err)

	require.NoError(t, r.RecordDatabase("acme", "main", "acme_main"))
	require.NoError(t, r.RecordDatabase("acme", "clinic", "acme_clinic1"))

	dbs, err := r.ListDatabases("acme", "")
	require.NoError(t, err)
	require.Len(t, dbs, 2)
	assert.Equal(t, "acme_clinic1", dbs[0].DatabaseName)
	assert.Equal(t, "acme_main", dbs[1].DatabaseName)

	filtered, err := r.ListDatabases("acme", "clinic")
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "acme_clinic1", filtered[0].DatabaseName)
}

func TestDeletePlatformRefusesWhenDatabasesRecorded(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.RegisterPlatform("acme", "", "", false)
	require.NoError(t, err)
	require.NoError(t, r.RecordDatabase("acme", "main", "acme_main"))

	err = r.DeletePlatform("acme")
	assert.Error(t, err)
	assert.True(t, r.IsRegistered("acme"))
}

func TestDeletePlatformRemovesEmptyPlatform(t *testing.T) {
	r := New(t.TempDir())
	_, err := r.RegisterPlatform("acme", "", "", false)
	require.NoError(t, err)

	require.NoError(t, r.DeletePlatform("acme"))
	assert.False(t, r.IsRegistered("acme"))
}

func TestValidateTenantIDRejectsReservedMain(t *testing.T) {
	assert.NoError(t, ValidateTenantID(""))
	assert.NoError(t, ValidateTenantID("clinic1"))
	assert.Error(t, ValidateTenantID("main"))
	assert.Error(t, ValidateTenantID("Bad-Name"))
}

package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseNameMain(t *testing.T) {
	r := New()
	assert.Equal(t, "myapp_main", r.DatabaseName("myapp", ""))
	assert.Equal(t, "institute_app_main", r.DatabaseName("institute-app", ""))
}

func TestDatabaseNameTenant(t *testing.T) {
	r := New()
	assert.Equal(t, "myapp_clinic_001", r.DatabaseName("myapp", "clinic_001"))
	assert.Equal(t, "myapp_clinic_002", r.DatabaseName("myapp", "clinic-002"))
}

func TestBelongsToPlatform(t *testing.T) {
	r := New()
	assert.True(t, r.BelongsToPlatform("myapp_main", "myapp"))
	assert.True(t, r.BelongsToPlatform("myapp_clinic_001", "myapp"))
	assert.False(t, r.BelongsToPlatform("platformb_main", "myapp"))
}

func TestIsMainDatabase(t *testing.T) {
	r := New()
	assert.True(t, r.IsMainDatabase("myapp_main"))
	assert.False(t, r.IsMainDatabase("myapp_clinic_001"))
}

func TestTenantIDFromDatabase(t *testing.T) {
	r := New()
	assert.Equal(t, "clinic_001", r.TenantIDFromDatabase("myapp_clinic_001", "myapp"))
	assert.Equal(t, "", r.TenantIDFromDatabase("myapp_main", "myapp"))
}

func TestSanitizeIdentifier(t *testing.T) {
	assert.Equal(t, "medstoreapp", SanitizeIdentifier("MedStoreApp"))
	assert.Equal(t, "clinic_001", SanitizeIdentifier("clinic-001"))
	assert.Equal(t, "test_app", SanitizeIdentifier("test app"))
	assert.Equal(t, "test", SanitizeIdentifier("__test__"))
}

// Routing purity: for a fixed pair of inputs the router must always
// produce the same database name, and distinct (platform, tenant) pairs
// must never collide.
func TestRoutingPurityNoCollisions(t *testing.T) {
	r := New()
	seen := map[string]string{}
	inputs := [][2]string{
		{"acme", ""}, {"acme", "clinic1"}, {"acme", "clinic2"},
		{"beta", ""}, {"beta", "clinic1"},
	}
	for _, in := range inputs {
		name := r.DatabaseName(in[0], in[1])
		assert.Equal(t, name, r.DatabaseName(in[0], in[1]), "not pure")
		if prior, ok := seen[name]; ok {
			t.Fatalf("collision: %v and %v both map to %s", prior, in, name)
		}
		seen[name] = in[0] + "/" + in[1]
	}
}

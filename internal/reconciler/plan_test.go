package reconciler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/schema"
)

func TestPlanExtensionsOnlyReturnsMissing(t *testing.T) {
	desired := []schema.Extension{{Name: "pgcrypto"}, {Name: "uuid-ossp"}}
	installed := []string{"pgcrypto"}

	out := planExtensions(desired, installed)

	require.Len(t, out, 1)
	assert.Equal(t, "uuid-ossp", out[0].Name)
}

func TestPlanExtensionsEmptyWhenAllInstalled(t *testing.T) {
	desired := []schema.Extension{{Name: "pgcrypto"}}
	installed := []string{"pgcrypto"}

	assert.Empty(t, planExtensions(desired, installed))
}

func TestPlanTypesSkipsAlreadyTracked(t *testing.T) {
	desired := []schema.TypeDef{{Name: "order_status"}, {Name: "user_role"}}
	tracked := []schema.ObservedType{{Name: "order_status", Checksum: "abc"}}

	out := planTypes(desired, tracked)

	require.Len(t, out, 1)
	assert.Equal(t, "user_role", out[0].Name)
}

func TestPlanTypesLeavesChangedChecksumUntouched(t *testing.T) {
	// A type whose checksum diverges from what was tracked is not
	// replanned here; BuildPlan flags that as incompatible, which blocks
	// the plan even with force, so the type is left as-is.
	desired := []schema.TypeDef{{Name: "order_status", Checksum: "new"}}
	tracked := []schema.ObservedType{{Name: "order_status", Checksum: "old"}}

	assert.Empty(t, planTypes(desired, tracked))
}

func TestPlanMigrationsFiltersAppliedAndOrders(t *testing.T) {
	desired := []schema.Migration{
		{Filename: "002_create_orders.pssql", BodyText: `CREATE TABLE orders (customer_id INT REFERENCES customers(id))`},
		{Filename: "001_create_customers.pssql", BodyText: `CREATE TABLE customers (id INT)`},
		{Filename: "000_already_applied.pssql", BodyText: `CREATE TABLE done (id INT)`},
	}
	applied := []schema.ObservedMigration{{Filename: "000_already_applied.pssql", Checksum: "x"}}

	out, err := planMigrations(desired, applied)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "001_create_customers.pssql", out[0].Filename)
	assert.Equal(t, "002_create_orders.pssql", out[1].Filename)
}

func TestPlanMigrationsPropagatesCycleError(t *testing.T) {
	desired := []schema.Migration{
		{Filename: "001_a.pssql", BodyText: `CREATE TABLE a (b_id INT REFERENCES b(id))`},
		{Filename: "002_b.pssql", BodyText: `CREATE TABLE b (a_id INT REFERENCES a(id))`},
	}

	_, err := planMigrations(desired, nil)

	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindCyclicSchema, gwErr.Kind)
}

func sig(name string, params ...string) schema.FunctionSignature {
	return schema.FunctionSignature{Name: name, ParamTypes: params}
}

func TestPlanFunctionsDeploysUntrackedOverload(t *testing.T) {
	desired := []schema.Function{{Signature: sig("total", "INT"), Checksum: "c1"}}

	out := planFunctions(desired, nil)

	require.Len(t, out, 1)
	assert.Equal(t, FunctionDeploy, out[0].Action)
	assert.Equal(t, "total", out[0].Signature.Name)
}

func TestPlanFunctionsReplacesChangedChecksum(t *testing.T) {
	desired := []schema.Function{{Signature: sig("total", "INT"), Checksum: "new"}}
	tracked := []schema.ObservedFunction{{Signature: sig("total", "INT"), Checksum: "old"}}

	out := planFunctions(desired, tracked)

	require.Len(t, out, 1)
	assert.Equal(t, FunctionReplace, out[0].Action)
}

func TestPlanFunctionsSkipsUnchangedChecksum(t *testing.T) {
	desired := []schema.Function{{Signature: sig("total", "INT"), Checksum: "same"}}
	tracked := []schema.ObservedFunction{{Signature: sig("total", "INT"), Checksum: "same"}}

	out := planFunctions(desired, tracked)

	require.Len(t, out, 1)
	assert.Equal(t, FunctionSkip, out[0].Action)
}

func TestPlanFunctionsDropsOrphanedName(t *testing.T) {
	tracked := []schema.ObservedFunction{{Signature: sig("legacy_total", "INT"), Checksum: "x"}}

	out := planFunctions(nil, tracked)

	require.Len(t, out, 1)
	assert.Equal(t, FunctionDrop, out[0].Action)
	assert.Equal(t, "legacy_total", out[0].Signature.Name)
}

func TestPlanFunctionsRenameEmitsDropOldCreateAndDeploy(t *testing.T) {
	// A signature rename: "total(INT)" tracked, bundle now declares
	// "total(INT,TEXT)" for the same function name. The old overload must
	// be dropped and the new one deployed, but only once each.
	desired := []schema.Function{{Signature: sig("total", "INT", "TEXT"), Checksum: "c2"}}
	tracked := []schema.ObservedFunction{{Signature: sig("total", "INT"), Checksum: "c1"}}

	out := planFunctions(desired, tracked)

	require.Len(t, out, 2)
	var sawDeploy, sawDropOldCreate bool
	for _, pf := range out {
		switch pf.Action {
		case FunctionDeploy:
			sawDeploy = true
			assert.Equal(t, []string{"INT", "TEXT"}, pf.Signature.ParamTypes)
		case FunctionDropOldCreate:
			sawDropOldCreate = true
			assert.Equal(t, []string{"INT"}, pf.OldParams)
		}
	}
	assert.True(t, sawDeploy, "expected a Deploy entry for the new signature")
	assert.True(t, sawDropOldCreate, "expected a DropOldCreate entry for the old signature")
}

func TestPlanBlocked(t *testing.T) {
	safe := &Plan{Diff: &schema.SchemaDiff{}}
	assert.False(t, safe.Blocked())

	unsafe := &Plan{Diff: &schema.SchemaDiff{
		DataLossChanges: []schema.SchemaChange{{Table: "orders", Column: "total"}},
	}}
	assert.True(t, unsafe.Blocked())

	assert.False(t, (&Plan{}).Blocked())
}

package schema

import (
	"testing"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMigrationsReordersByTableDependency(t *testing.T) {
	migrations := []Migration{
		{Filename: "001_orders.pssql", BodyText: `CREATE TABLE orders (id INT, customer_id INT REFERENCES customers(id));`},
		{Filename: "002_customers.pssql", BodyText: `CREATE TABLE customers (id INT);`},
	}

	ordered, err := OrderMigrations(migrations)

	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "002_customers.pssql", ordered[0].Filename)
	assert.Equal(t, "001_orders.pssql", ordered[1].Filename)
}

func TestOrderMigrationsLeavesUnrelatedFilesInFilenameOrder(t *testing.T) {
	migrations := []Migration{
		{Filename: "002_b.pssql", BodyText: `CREATE TABLE b (id INT);`},
		{Filename: "001_a.pssql", BodyText: `CREATE TABLE a (id INT);`},
	}

	ordered, err := OrderMigrations(migrations)

	require.NoError(t, err)
	assert.Equal(t, "001_a.pssql", ordered[0].Filename)
	assert.Equal(t, "002_b.pssql", ordered[1].Filename)
}

func TestOrderMigrationsIgnoresReferenceToExistingTable(t *testing.T) {
	migrations := []Migration{
		{Filename: "001_add_fk.pssql", BodyText: `ALTER TABLE orders ADD COLUMN warehouse_id INT REFERENCES warehouses(id);`},
	}

	ordered, err := OrderMigrations(migrations)

	require.NoError(t, err)
	require.Len(t, ordered, 1)
}

func TestOrderMigrationsDetectsCycle(t *testing.T) {
	migrations := []Migration{
		{Filename: "001_a.pssql", BodyText: `CREATE TABLE a (id INT, b_id INT REFERENCES b(id));`},
		{Filename: "002_b.pssql", BodyText: `CREATE TABLE b (id INT, a_id INT REFERENCES a(id));`},
	}

	_, err := OrderMigrations(migrations)

	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindCyclicSchema, gwErr.Kind)
}

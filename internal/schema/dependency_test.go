package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderTablesSimple(t *testing.T) {
	tables := []Table{
		{Name: "users"},
		{Name: "todos", FKRefs: map[string]bool{"users": true}},
	}
	order, err := OrderTables(tables)
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "users"), indexOf(order, "todos"))
}

func TestOrderTablesDiamond(t *testing.T) {
	tables := []Table{
		{Name: "users"},
		{Name: "tags"},
		{Name: "todos", FKRefs: map[string]bool{"users": true}},
		{Name: "todo_tags", FKRefs: map[string]bool{"todos": true, "tags": true}},
	}
	order, err := OrderTables(tables)
	require.NoError(t, err)
	assert.Less(t, indexOf(order, "users"), indexOf(order, "todos"))
	assert.Less(t, indexOf(order, "tags"), indexOf(order, "todo_tags"))
	assert.Less(t, indexOf(order, "todos"), indexOf(order, "todo_tags"))
}

func TestOrderTablesCycleDetected(t *testing.T) {
	tables := []Table{
		{Name: "a", FKRefs: map[string]bool{"b": true}},
		{Name: "b", FKRefs: map[string]bool{"a": true}},
	}
	_, err := OrderTables(tables)
	require.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestOrderTablesDeterministic(t *testing.T) {
	tables := []Table{
		{Name: "alpha"},
		{Name: "beta"},
		{Name: "gamma"},
	}
	first, err := OrderTables(tables)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := OrderTables(tables)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func indexOf(items []string, target string) int {
	for i, v := range items {
		if v == target {
			return i
		}
	}
	return -1
}

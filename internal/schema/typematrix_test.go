package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeMatrixIdentical(t *testing.T) {
	m := NewTypeMatrix()
	assert.Equal(t, CompatIdentical, m.Check("INTEGER", "INTEGER").Compatibility)
	assert.Equal(t, CompatIdentical, m.Check("VARCHAR(100)", "VARCHAR(100)").Compatibility)
}

func TestTypeMatrixSafeWidenings(t *testing.T) {
	m := NewTypeMatrix()
	assert.True(t, m.Check("SMALLINT", "INTEGER").IsSafe())
	assert.True(t, m.Check("INTEGER", "BIGINT").IsSafe())
	assert.True(t, m.Check("INT", "BIGINT").IsSafe())
	assert.True(t, m.Check("VARCHAR", "TEXT").IsSafe())
	assert.True(t, m.Check("CHAR(10)", "VARCHAR(100)").IsSafe())
	assert.True(t, m.Check("DATE", "TIMESTAMP").IsSafe())
	assert.True(t, m.Check("TIMESTAMP", "TIMESTAMPTZ").IsSafe())
}

func TestTypeMatrixVarcharLengthChanges(t *testing.T) {
	m := NewTypeMatrix()
	assert.True(t, m.Check("VARCHAR(50)", "VARCHAR(100)").IsSafe())
	assert.True(t, m.Check("VARCHAR(50)", "TEXT").IsSafe())

	result := m.Check("VARCHAR(100)", "VARCHAR(50)")
	assert.Equal(t, CompatDataLoss, result.Compatibility)
}

func TestTypeMatrixNumericPrecisionChanges(t *testing.T) {
	m := NewTypeMatrix()
	assert.True(t, m.Check("NUMERIC(10,2)", "NUMERIC(15,4)").IsSafe())

	result := m.Check("NUMERIC(15,4)", "NUMERIC(10,2)")
	assert.Equal(t, CompatDataLoss, result.Compatibility)
}

func TestTypeMatrixDataLossNarrowings(t *testing.T) {
	m := NewTypeMatrix()

	assert.Equal(t, CompatDataLoss, m.Check("BIGINT", "INTEGER").Compatibility)
	assert.Equal(t, CompatDataLoss, m.Check("TEXT", "VARCHAR(100)").Compatibility)
	assert.Equal(t, CompatDataLoss, m.Check("TIMESTAMP", "DATE").Compatibility)
}

func TestTypeMatrixNormalization(t *testing.T) {
	m := NewTypeMatrix()
	assert.True(t, m.Check("INT4", "BIGINT").IsSafe())
	assert.True(t, m.Check("BOOL", "INTEGER").IsSafe())
	assert.True(t, m.Check("CHARACTER VARYING(50)", "TEXT").IsSafe())
}

func TestTypeMatrixIncompatible(t *testing.T) {
	m := NewTypeMatrix()

	result := m.Check("UUID", "INTEGER")
	assert.Equal(t, CompatIncompatible, result.Compatibility)

	result = m.Check("BOOLEAN", "TEXT")
	assert.Equal(t, CompatIncompatible, result.Compatibility)
}

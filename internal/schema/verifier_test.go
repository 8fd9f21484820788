package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVerificationResultErrorLog(t *testing.T) {
	result := VerificationResult{Passed: false}
	result.Extensions.Missing = []string{"pgvector"}
	result.Tables.Mismatches = append(result.Tables.Mismatches, TableMismatch{
		Table: "users",
		Issue: "modify_column_type column 'email': VARCHAR(100) -> VARCHAR(255)",
	})

	log := result.ErrorLog()

	assert.Contains(t, log, "pgvector")
	assert.Contains(t, log, "users")
	assert.Contains(t, log, "email")
	assert.Contains(t, log, "ACTION REQUIRED")
}

func TestVerificationResultEmptyOmitsSections(t *testing.T) {
	result := VerificationResult{Passed: true}
	log := result.ErrorLog()

	assert.NotContains(t, log, "MISSING EXTENSIONS")
	assert.NotContains(t, log, "MISSING TYPES")
	assert.NotContains(t, log, "TABLE SCHEMA MISMATCHES")
	assert.NotContains(t, log, "MISSING TABLES")
	assert.NotContains(t, log, "MISSING SEEDER RECORDS")
}

func TestOrDash(t *testing.T) {
	assert.Equal(t, "-", orDash(""))
	assert.Equal(t, "INTEGER", orDash("INTEGER"))
}

func TestToSet(t *testing.T) {
	set := toSet([]string{"a", "b"})
	assert.True(t, set["a"])
	assert.False(t, set["c"])
}

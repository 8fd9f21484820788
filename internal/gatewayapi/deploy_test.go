package gatewayapi

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/schema"
)

func TestAsGatewayErrPassesThroughExisting(t *testing.T) {
	original := gatewayerr.New(gatewayerr.KindDatabaseNotFound, "missing")
	got := asGatewayErr(original)
	assert.Same(t, original, got)
}

func TestAsGatewayErrWrapsUnknown(t *testing.T) {
	got := asGatewayErr(errors.New("boom"))
	require.NotNil(t, got)
	assert.Equal(t, gatewayerr.KindInternal, got.Kind)
	assert.ErrorContains(t, got, "boom")
}

func TestAsGatewayErrNil(t *testing.T) {
	assert.Nil(t, asGatewayErr(nil))
}

func TestSummarizeDiffCountsEachBucket(t *testing.T) {
	diff := &schema.SchemaDiff{
		SafeChanges:         []schema.SchemaChange{{}, {}},
		DataLossChanges:     []schema.SchemaChange{{}},
		IncompatibleChanges: nil,
	}
	summary := summarizeDiff(diff)
	assert.Equal(t, 2, summary.SafeChanges)
	assert.Equal(t, 1, summary.DataLossChanges)
	assert.Equal(t, 0, summary.IncompatibleChanges)
}

func TestSummarizeDiffNil(t *testing.T) {
	assert.Equal(t, SchemaValidationSummary{}, summarizeDiff(nil))
}

func TestBlockedErrCarriesDiffInContext(t *testing.T) {
	diff := &schema.SchemaDiff{
		DataLossChanges:     []schema.SchemaChange{{}},
		IncompatibleChanges: []schema.SchemaChange{{}, {}},
	}
	err := blockedErr(gatewayerr.KindSchemaIncompatible, "acme_main", diff)

	assert.Equal(t, gatewayerr.KindSchemaIncompatible, err.Kind)
	assert.Equal(t, "acme_main", err.Database)
	assert.Equal(t, diff.SafeChanges, err.Context["safe_changes"])
	assert.Equal(t, diff.DataLossChanges, err.Context["dataloss_changes"])
	assert.Equal(t, diff.IncompatibleChanges, err.Context["incompatible_changes"])
}

func TestLoadSeederFilesParsesInsertStatements(t *testing.T) {
	files, gerr := loadSeederFiles([]schema.Seeder{
		{Table: "users", Statements: "INSERT INTO users (id) VALUES (1);"},
	})
	require.Nil(t, gerr)
	require.Len(t, files, 1)
	assert.Equal(t, "users", files[0].TableName)
}

func TestLoadSeederFilesSkipsUnrecognizedContent(t *testing.T) {
	files, gerr := loadSeederFiles([]schema.Seeder{
		{Table: "users", Statements: "not an insert statement"},
	})
	require.Nil(t, gerr)
	assert.Empty(t, files)
}

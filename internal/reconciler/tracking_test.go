package reconciler

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonescriptdb/gateway/internal/schema"
)

type trackingExecCall struct {
	sql  string
	args []any
}

// fakePool is a hand-rolled schema.Execer/schema.Querier double that
// returns canned rows regardless of the query, since every tracking
// query in this package selects a fixed, known set of columns.
type fakePool struct {
	execs []trackingExecCall
	execErr error
	rows    [][]any
	queryErr error
}

func (f *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, trackingExecCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (f *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return &fakeTrackingRows{rows: f.rows}, nil
}

type fakeTrackingRows struct {
	rows [][]any
	pos  int
}

func (r *fakeTrackingRows) Close()                                       {}
func (r *fakeTrackingRows) Err() error                                   { return nil }
func (r *fakeTrackingRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeTrackingRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeTrackingRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeTrackingRows) RawValues() [][]byte                          { return nil }
func (r *fakeTrackingRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeTrackingRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeTrackingRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	for i, d := range dest {
		switch ptr := d.(type) {
		case *string:
			*ptr = row[i].(string)
		default:
			panic("fakeTrackingRows.Scan: unsupported destination type")
		}
	}
	return nil
}

func TestEnsureTrackingTablesIssuesThreeCreates(t *testing.T) {
	fake := &fakePool{}

	err := EnsureTrackingTables(context.Background(), fake)

	require.NoError(t, err)
	require.Len(t, fake.execs, 3)
	assert.Contains(t, fake.execs[0].sql, typesTable)
	assert.Contains(t, fake.execs[1].sql, functionsTable)
	assert.Contains(t, fake.execs[2].sql, tablesTable)
}

func TestGetAppliedMigrationsScansRows(t *testing.T) {
	fake := &fakePool{rows: [][]any{
		{"001_init.pssql", "abc"},
		{"002_add_index.pssql", "def"},
	}}

	out, err := GetAppliedMigrations(context.Background(), fake)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "001_init.pssql", out[0].Filename)
	assert.Equal(t, "def", out[1].Checksum)
}

func TestRecordTypeUpserts(t *testing.T) {
	fake := &fakePool{}

	err := RecordType(context.Background(), fake, "order_status", "abc")

	require.NoError(t, err)
	require.Len(t, fake.execs, 1)
	assert.Contains(t, fake.execs[0].sql, "ON CONFLICT (name) DO UPDATE")
	assert.Equal(t, "order_status", fake.execs[0].args[0])
}

func TestGetTrackedFunctionsSplitsParamTypes(t *testing.T) {
	fake := &fakePool{rows: [][]any{
		{"total", "INT,TEXT", "c1"},
		{"ping", "", "c2"},
	}}

	out, err := GetTrackedFunctions(context.Background(), fake)

	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []string{"INT", "TEXT"}, out[0].Signature.ParamTypes)
	assert.Nil(t, out[1].Signature.ParamTypes)
}

func TestRecordFunctionJoinsParamTypes(t *testing.T) {
	fake := &fakePool{}

	err := RecordFunction(context.Background(), fake, sig("total", "INT", "TEXT"), "c1")

	require.NoError(t, err)
	require.Len(t, fake.execs, 1)
	assert.Equal(t, "total", fake.execs[0].args[0])
	assert.Equal(t, "INT,TEXT", fake.execs[0].args[1])
}

func TestDeleteTrackedFunctionUsesJoinedParamTypes(t *testing.T) {
	fake := &fakePool{}

	err := DeleteTrackedFunction(context.Background(), fake, sig("total", "INT"))

	require.NoError(t, err)
	require.Len(t, fake.execs, 1)
	assert.Equal(t, "INT", fake.execs[0].args[1])
}

func TestJoinAndSplitParamTypesRoundTrip(t *testing.T) {
	types := []string{"INT", "TEXT", "BOOLEAN"}
	assert.Equal(t, types, splitParamTypes(joinParamTypes(types)))
	assert.Equal(t, "", joinParamTypes(nil))
	assert.Nil(t, splitParamTypes(""))
}

var _ schema.Execer = (*fakePool)(nil)
var _ schema.Querier = (*fakePool)(nil)

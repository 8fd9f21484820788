package schema

import (
	"context"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeederFileSingleRow(t *testing.T) {
	sql := `INSERT INTO currencies (code, name, symbol) VALUES ('USD', 'US Dollar', '$');`

	seeder, err := ParseSeederFile("currencies.pssql", sql)

	require.NoError(t, err)
	require.NotNil(t, seeder)
	assert.Equal(t, "currencies", seeder.TableName)
	assert.Equal(t, []string{"code"}, seeder.PrimaryKeyColumns)
	require.Len(t, seeder.Records, 1)
	assert.Equal(t, []string{"'USD'", "'US Dollar'", "'$'"}, seeder.Records[0].Values)
}

func TestParseSeederFileMultipleRows(t *testing.T) {
	sql := `-- default roles
	INSERT INTO roles (id, name) VALUES
		(1, 'admin'),
		(2, 'member');`

	seeder, err := ParseSeederFile("roles.pssql", sql)

	require.NoError(t, err)
	require.NotNil(t, seeder)
	require.Len(t, seeder.Records, 2)
	assert.Equal(t, []string{"1", "'admin'"}, seeder.Records[0].Values)
	assert.Equal(t, []string{"2", "'member'"}, seeder.Records[1].Values)
}

func TestParseSeederFileNoInsertReturnsNil(t *testing.T) {
	seeder, err := ParseSeederFile("empty.pssql", "-- nothing to insert here\n")
	require.NoError(t, err)
	assert.Nil(t, seeder)
}

func TestParseSeederValueTupleHandlesEmbeddedCommas(t *testing.T) {
	values := parseSeederValueTuple(`1, 'Smith, John', 'active'`)
	assert.Equal(t, []string{"1", "'Smith, John'", "'active'"}, values)
}

// seederFakeExecer answers SELECT COUNT(*) queries from a fixed table of
// counts and SELECT 1 existence checks from a queue consumed in call
// order, matching the two query shapes the seeder runner issues.
type seederFakeExecer struct {
	execs       []execCall
	counts      map[string]int64
	existsQueue []bool
	existsIdx   int
	execErr     error
}

func (f *seederFakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *seederFakeExecer) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	switch {
	case strings.HasPrefix(sql, "SELECT COUNT(*)"):
		fields := strings.Fields(sql)
		table := fields[len(fields)-1]
		return &countFakeRows{count: f.counts[table]}, nil
	case strings.HasPrefix(sql, "SELECT 1"):
		exists := false
		if f.existsIdx < len(f.existsQueue) {
			exists = f.existsQueue[f.existsIdx]
		}
		f.existsIdx++
		return &existsFakeRows{exists: exists}, nil
	default:
		return &existsFakeRows{}, nil
	}
}

type countFakeRows struct {
	count  int64
	served bool
}

func (r *countFakeRows) Close()                                       {}
func (r *countFakeRows) Err() error                                   { return nil }
func (r *countFakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *countFakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *countFakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *countFakeRows) RawValues() [][]byte                          { return nil }
func (r *countFakeRows) Conn() *pgx.Conn                              { return nil }

func (r *countFakeRows) Next() bool {
	if r.served {
		return false
	}
	r.served = true
	return true
}

func (r *countFakeRows) Scan(dest ...any) error {
	*dest[0].(*int64) = r.count
	return nil
}

type existsFakeRows struct {
	exists bool
	served bool
}

func (r *existsFakeRows) Close()                                       {}
func (r *existsFakeRows) Err() error                                   { return nil }
func (r *existsFakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *existsFakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *existsFakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *existsFakeRows) RawValues() [][]byte                          { return nil }
func (r *existsFakeRows) Conn() *pgx.Conn                              { return nil }
func (r *existsFakeRows) Scan(dest ...any) error                       { return nil }

func (r *existsFakeRows) Next() bool {
	if r.served || !r.exists {
		r.served = true
		return false
	}
	r.served = true
	return true
}

func TestRunSeedersOnRegisterInsertsIntoEmptyTable(t *testing.T) {
	seeder := &SeederFile{
		TableName:         "currencies",
		PrimaryKeyColumns: []string{"code"},
		Records: []SeederRecord{
			{Columns: []string{"code", "name"}, Values: []string{"'USD'", "'US Dollar'"}},
		},
	}
	fake := &seederFakeExecer{counts: map[string]int64{"currencies": 0}}

	results, err := NewSeederRunner().RunSeedersOnRegister(context.Background(), fake, []*SeederFile{seeder})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 1, results[0].Inserted)
	assert.Equal(t, 0, results[0].Skipped)
}

func TestRunSeedersOnRegisterSkipsNonEmptyTable(t *testing.T) {
	seeder := &SeederFile{
		TableName: "currencies",
		Records: []SeederRecord{
			{Columns: []string{"code", "name"}, Values: []string{"'USD'", "'US Dollar'"}},
		},
	}
	fake := &seederFakeExecer{counts: map[string]int64{"currencies": 3}}

	results, err := NewSeederRunner().RunSeedersOnRegister(context.Background(), fake, []*SeederFile{seeder})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Inserted)
	assert.Equal(t, 1, results[0].Skipped)
}

func TestValidateSeedersAllPresent(t *testing.T) {
	seeder := &SeederFile{
		TableName:         "currencies",
		PrimaryKeyColumns: []string{"code"},
		Records: []SeederRecord{
			{Columns: []string{"code", "name"}, Values: []string{"'USD'", "'US Dollar'"}},
		},
	}
	fake := &seederFakeExecer{existsQueue: []bool{true}}

	validations, err := NewSeederRunner().ValidateSeeders(context.Background(), fake, []*SeederFile{seeder})

	require.NoError(t, err)
	require.Len(t, validations, 1)
	assert.Equal(t, 1, validations[0].Found)
	assert.Empty(t, validations[0].Missing)
}

func TestValidateSeedersMissingRecordFails(t *testing.T) {
	seeder := &SeederFile{
		TableName:         "currencies",
		PrimaryKeyColumns: []string{"code"},
		Records: []SeederRecord{
			{Columns: []string{"code", "name"}, Values: []string{"'USD'", "'US Dollar'"}},
			{Columns: []string{"code", "name"}, Values: []string{"'EUR'", "'Euro'"}},
		},
	}
	fake := &seederFakeExecer{existsQueue: []bool{true, false}}

	validations, err := NewSeederRunner().ValidateSeeders(context.Background(), fake, []*SeederFile{seeder})

	require.Error(t, err)
	require.Len(t, validations, 1)
	assert.Equal(t, 1, validations[0].Found)
	assert.Equal(t, []string{"'EUR'"}, validations[0].Missing)
}

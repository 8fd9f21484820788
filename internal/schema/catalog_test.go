package schema

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stringListFakeQuerier struct {
	values []string
}

func (f *stringListFakeQuerier) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return &stringListFakeRows{values: f.values}, nil
}

type stringListFakeRows struct {
	values []string
	pos    int
}

func (r *stringListFakeRows) Close()                                       {}
func (r *stringListFakeRows) Err() error                                   { return nil }
func (r *stringListFakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *stringListFakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *stringListFakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *stringListFakeRows) RawValues() [][]byte                          { return nil }
func (r *stringListFakeRows) Conn() *pgx.Conn                              { return nil }

func (r *stringListFakeRows) Next() bool {
	if r.pos >= len(r.values) {
		return false
	}
	r.pos++
	return true
}

func (r *stringListFakeRows) Scan(dest ...any) error {
	*dest[0].(*string) = r.values[r.pos-1]
	return nil
}

func TestListInstalledExtensions(t *testing.T) {
	fake := &stringListFakeQuerier{values: []string{"pgcrypto", "uuid-ossp"}}

	names, err := ListInstalledExtensions(context.Background(), fake)

	require.NoError(t, err)
	assert.Equal(t, []string{"pgcrypto", "uuid-ossp"}, names)
}

func TestListInstalledTypes(t *testing.T) {
	fake := &stringListFakeQuerier{values: []string{"order_status"}}

	names, err := ListInstalledTypes(context.Background(), fake)

	require.NoError(t, err)
	assert.Equal(t, []string{"order_status"}, names)
}

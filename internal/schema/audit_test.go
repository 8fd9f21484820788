package schema

import (
	"context"
	"fmt"
	"net"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type execCall struct {
	sql  string
	args []any
}

type fakeExecer struct {
	execs   []execCall
	execErr error
	rows    []fakeAuditRow
}

type fakeAuditRow struct {
	id             int
	action         string
	sourceIP       string
	requestPath    string
	requestBody    string
	responseStatus int
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	if f.execErr != nil {
		return pgconn.CommandTag{}, f.execErr
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (f *fakeExecer) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return &fakeRows{rows: f.rows}, nil
}

type fakeRows struct {
	rows []fakeAuditRow
	pos  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.rows[r.pos-1]
	if len(dest) != 6 {
		return fmt.Errorf("expected 6 scan targets, got %d", len(dest))
	}
	*dest[0].(*int) = row.id
	*dest[1].(*string) = row.action
	*dest[2].(*string) = row.sourceIP
	*dest[3].(*string) = row.requestPath
	*dest[4].(*string) = row.requestBody
	*dest[5].(*int) = row.responseStatus
	return nil
}

func TestEnsureAuditTableIssuesCreateStatements(t *testing.T) {
	fake := &fakeExecer{}
	logger := NewAuditLogger(nil)

	err := logger.EnsureAuditTable(context.Background(), fake)

	require.NoError(t, err)
	require.Len(t, fake.execs, 3)
	assert.Contains(t, fake.execs[0].sql, "CREATE TABLE IF NOT EXISTS "+adminAuditTable)
	assert.Contains(t, fake.execs[1].sql, "idx_admin_audit_created_at")
	assert.Contains(t, fake.execs[2].sql, "idx_admin_audit_source_ip")
}

func TestLogAdminActionWritesRow(t *testing.T) {
	fake := &fakeExecer{}
	logger := NewAuditLogger(nil)

	logger.LogAdminAction(context.Background(), fake, "create_tenant", net.ParseIP("10.0.0.5"), "/admin/tenants", `{"name":"acme"}`, 201)

	require.Len(t, fake.execs, 1)
	call := fake.execs[0]
	assert.Contains(t, call.sql, "INSERT INTO "+adminAuditTable)
	require.Len(t, call.args, 5)
	assert.Equal(t, "create_tenant", call.args[0])
	assert.Equal(t, "10.0.0.5", call.args[1])
	assert.Equal(t, "/admin/tenants", call.args[2])
	assert.Equal(t, 201, call.args[4])
}

func TestLogAdminActionSwallowsWriteFailure(t *testing.T) {
	fake := &fakeExecer{execErr: fmt.Errorf("connection reset")}
	logger := NewAuditLogger(nil)

	assert.NotPanics(t, func() {
		logger.LogAdminAction(context.Background(), fake, "list_tenants", net.ParseIP("127.0.0.1"), "/admin/tenants", "", 200)
	})
}

func TestRecentActionsDecodesRows(t *testing.T) {
	fake := &fakeExecer{rows: []fakeAuditRow{
		{id: 2, action: "create_tenant", sourceIP: "10.0.0.5", requestPath: "/admin/tenants", requestBody: "{}", responseStatus: 201},
		{id: 1, action: "list_tenants", sourceIP: "127.0.0.1", requestPath: "/admin/tenants", requestBody: "", responseStatus: 200},
	}}
	logger := NewAuditLogger(nil)

	entries, err := logger.RecentActions(context.Background(), fake, 10)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "create_tenant", entries[0].Action)
	assert.Equal(t, "10.0.0.5", entries[0].SourceIP)
	assert.Equal(t, "list_tenants", entries[1].Action)
}

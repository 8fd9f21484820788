package reconciler

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

type fakeLockConn struct {
	execs    []string
	execErr  error
	released bool
}

func (c *fakeLockConn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.execs = append(c.execs, sql)
	if c.execErr != nil {
		return pgconn.CommandTag{}, c.execErr
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (c *fakeLockConn) Release() { c.released = true }

type fakeLockAcquirer struct {
	conn       *fakeLockConn
	acquireErr error
}

func (a *fakeLockAcquirer) Acquire(ctx context.Context) (LockConn, error) {
	if a.acquireErr != nil {
		return nil, a.acquireErr
	}
	return a.conn, nil
}

func TestAdvisoryLockAcquiresAndReleases(t *testing.T) {
	conn := &fakeLockConn{}
	acquirer := &fakeLockAcquirer{conn: conn}

	release, err := AdvisoryLock(context.Background(), acquirer, "clinic_001")
	require.NoError(t, err)
	require.Len(t, conn.execs, 1)
	assert.Contains(t, conn.execs[0], "pg_advisory_lock")

	release()
	require.Len(t, conn.execs, 2)
	assert.Contains(t, conn.execs[1], "pg_advisory_unlock")
	assert.True(t, conn.released)
}

func TestAdvisoryLockWrapsAcquireFailure(t *testing.T) {
	acquirer := &fakeLockAcquirer{acquireErr: errors.New("pool exhausted")}

	_, err := AdvisoryLock(context.Background(), acquirer, "clinic_001")

	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.KindConnectionFailed, gwErr.Kind)
}

func TestAdvisoryLockReleasesConnOnLockFailure(t *testing.T) {
	conn := &fakeLockConn{execErr: errors.New("lock timeout")}
	acquirer := &fakeLockAcquirer{conn: conn}

	_, err := AdvisoryLock(context.Background(), acquirer, "clinic_001")

	require.Error(t, err)
	assert.True(t, conn.released)
}

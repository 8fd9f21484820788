package reconciler

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

// LockConn is the subset of *pgxpool.Conn the advisory lock needs: a way to
// run pg_advisory_lock/unlock and to hand the connection back to the pool
// when the reconcile is done with it.
type LockConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Release()
}

// LockAcquirer checks out a dedicated connection for the lifetime of one
// reconciliation, rather than a pooled one that could be handed back to
// another caller while the advisory lock is still logically "held" by this
// reconcile.
type LockAcquirer interface {
	Acquire(ctx context.Context) (LockConn, error)
}

// AdvisoryLock takes pg_advisory_lock(hashtext(database)) on a dedicated
// connection and returns a release function that unlocks and releases the
// connection back to the pool. If the connection is dropped before release
// is called, PostgreSQL releases the advisory lock automatically, which is
// exactly why this needs a connection held for the reconcile's lifetime
// rather than one borrowed per statement.
func AdvisoryLock(ctx context.Context, pool LockAcquirer, database string) (release func(), err error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "acquiring dedicated connection for advisory lock").WithDatabase(database)
	}

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock(hashtext($1))", database); err != nil {
		conn.Release()
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "acquiring advisory lock").WithDatabase(database)
	}

	return func() {
		_, _ = conn.Exec(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", database)
		conn.Release()
	}, nil
}

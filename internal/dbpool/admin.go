package dbpool

import (
	"context"
	"fmt"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

// DatabaseExists reports whether a database by this name exists, checked
// against pg_database over the admin pool.
func (m *Manager) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := m.adminPool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)`, name).Scan(&exists)
	if err != nil {
		return false, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "checking database existence").WithDatabase(name)
	}
	return exists, nil
}

// CreateDatabase runs CREATE DATABASE over the admin pool. name must
// already be a validated identifier; the identifier is still re-validated
// here since this is the last line of defense before it lands unquoted
// inside CREATE DATABASE (PostgreSQL does not accept a placeholder for a
// database name).
func (m *Manager) CreateDatabase(ctx context.Context, name string) error {
	if !registry.IsValidIdentifier(name) {
		return gatewayerr.Newf(gatewayerr.KindInvalidRequest, "invalid database name %q", name).WithDatabase(name)
	}

	exists, err := m.DatabaseExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return gatewayerr.Newf(gatewayerr.KindDatabaseAlreadyExists, "database %q already exists", name).WithDatabase(name)
	}

	if _, err := m.adminPool.Exec(ctx, fmt.Sprintf(`CREATE DATABASE %q`, name)); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "creating database "+name).WithDatabase(name)
	}
	return nil
}

// DropDatabase runs DROP DATABASE IF EXISTS over the admin pool, first
// closing and forgetting any pool this manager holds open against it —
// PostgreSQL refuses to drop a database with active connections.
func (m *Manager) DropDatabase(ctx context.Context, name string) error {
	if !registry.IsValidIdentifier(name) {
		return gatewayerr.Newf(gatewayerr.KindInvalidRequest, "invalid database name %q", name).WithDatabase(name)
	}

	m.mu.Lock()
	if e, ok := m.pools[name]; ok {
		e.pool.Close()
		delete(m.pools, name)
		if m.totalConnections >= m.cfg.MaxConnectionsPerPool {
			m.totalConnections -= m.cfg.MaxConnectionsPerPool
		}
	}
	m.mu.Unlock()

	if _, err := m.adminPool.Exec(ctx, fmt.Sprintf(`DROP DATABASE IF EXISTS %q`, name)); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "dropping database "+name).WithDatabase(name)
	}
	return nil
}

// ListDatabasesForPlatform returns every database name beginning with
// "<platform>_", read from pg_database over the admin pool.
func (m *Manager) ListDatabasesForPlatform(ctx context.Context, platform string) ([]string, error) {
	rows, err := m.adminPool.Query(ctx, `SELECT datname FROM pg_database WHERE datname LIKE $1 ORDER BY datname`, platform+`\_%`)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "listing databases for platform "+platform)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// GetDatabaseSize returns pg_database_size for a database, queried
// through that database's own pool rather than the admin pool so the
// result reflects the connection the caller would actually use.
func (m *Manager) GetDatabaseSize(ctx context.Context, name string) (int64, error) {
	pool, err := m.GetPool(ctx, name)
	if err != nil {
		return 0, err
	}
	var size int64
	if err := pool.QueryRow(ctx, `SELECT pg_database_size(current_database())`).Scan(&size); err != nil {
		return 0, gatewayerr.Wrap(gatewayerr.KindConnectionFailed, err, "reading database size for "+name).WithDatabase(name)
	}
	return size, nil
}

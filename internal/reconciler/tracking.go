package reconciler

import (
	"context"

	"github.com/stonescriptdb/gateway/internal/schema"
)

const (
	typesTable     = "_stonescriptdb_gateway_types"
	functionsTable = "_stonescriptdb_gateway_functions"
	tablesTable    = "_stonescriptdb_gateway_tables"
)

// EnsureTrackingTables creates the gateway's own bookkeeping tables if they
// do not already exist: one row per tracked type, function overload, and
// table, each carrying the checksum of the artifact that was last applied.
// Migration tracking has its own table, ensured separately by
// EnsureMigrationsTable, since it also carries an applied_at timestamp.
func EnsureTrackingTables(ctx context.Context, pool schema.Execer) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS ` + typesTable + ` (
			name TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ` + functionsTable + ` (
			name TEXT NOT NULL,
			param_types TEXT NOT NULL,
			checksum TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (name, param_types)
		)`,
		`CREATE TABLE IF NOT EXISTS ` + tablesTable + ` (
			name TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureMigrationsTable creates the migration tracking table used to decide
// which migration files have already been applied to this database.
func EnsureMigrationsTable(ctx context.Context, pool schema.Execer) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _stonescriptdb_gateway_migrations (
			id SERIAL PRIMARY KEY,
			migration_file TEXT NOT NULL UNIQUE,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	return err
}

// GetAppliedMigrations returns every migration filename already recorded
// against this database, in application order.
func GetAppliedMigrations(ctx context.Context, pool schema.Querier) ([]schema.ObservedMigration, error) {
	rows, err := pool.Query(ctx, `SELECT migration_file, checksum FROM _stonescriptdb_gateway_migrations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.ObservedMigration
	for rows.Next() {
		var m schema.ObservedMigration
		if err := rows.Scan(&m.Filename, &m.Checksum); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetTrackedTypes returns every row of the types tracking table.
func GetTrackedTypes(ctx context.Context, pool schema.Querier) ([]schema.ObservedType, error) {
	rows, err := pool.Query(ctx, `SELECT name, checksum FROM `+typesTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.ObservedType
	for rows.Next() {
		var t schema.ObservedType
		if err := rows.Scan(&t.Name, &t.Checksum); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordType upserts a type's tracked checksum.
func RecordType(ctx context.Context, pool schema.Execer, name, checksum string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO `+typesTable+` (name, checksum, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET checksum = EXCLUDED.checksum, updated_at = NOW()`,
		name, checksum)
	return err
}

// RecordTable upserts a table's tracked checksum, called after migrations
// apply for every table named in the bundle.
func RecordTable(ctx context.Context, pool schema.Execer, name, checksum string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO `+tablesTable+` (name, checksum, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET checksum = EXCLUDED.checksum, updated_at = NOW()`,
		name, checksum)
	return err
}

// GetTrackedFunctions returns every row of the functions tracking table.
func GetTrackedFunctions(ctx context.Context, pool schema.Querier) ([]schema.ObservedFunction, error) {
	rows, err := pool.Query(ctx, `SELECT name, param_types, checksum FROM `+functionsTable)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schema.ObservedFunction
	for rows.Next() {
		var name, paramTypes, checksum string
		if err := rows.Scan(&name, &paramTypes, &checksum); err != nil {
			return nil, err
		}
		out = append(out, schema.ObservedFunction{
			Signature: schema.FunctionSignature{Name: name, ParamTypes: splitParamTypes(paramTypes)},
			Checksum:  checksum,
		})
	}
	return out, rows.Err()
}

// RecordFunction upserts a function overload's tracked checksum.
func RecordFunction(ctx context.Context, pool schema.Execer, sig schema.FunctionSignature, checksum string) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO `+functionsTable+` (name, param_types, checksum, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (name, param_types) DO UPDATE SET checksum = EXCLUDED.checksum, updated_at = NOW()`,
		sig.Name, joinParamTypes(sig.ParamTypes), checksum)
	return err
}

// DeleteTrackedFunction removes a function overload's tracking row, called
// after DROP FUNCTION for an orphaned overload.
func DeleteTrackedFunction(ctx context.Context, pool schema.Execer, sig schema.FunctionSignature) error {
	_, err := pool.Exec(ctx, `DELETE FROM `+functionsTable+` WHERE name = $1 AND param_types = $2`,
		sig.Name, joinParamTypes(sig.ParamTypes))
	return err
}

func joinParamTypes(types []string) string {
	out := ""
	for i, t := range types {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}

func splitParamTypes(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

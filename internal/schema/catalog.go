package schema

import "context"

// ListInstalledExtensions returns the names of every extension currently
// installed in the target database.
func ListInstalledExtensions(ctx context.Context, pool Querier) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT extname FROM pg_extension ORDER BY extname`)
	if err != nil {
		return nil, err
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

// ListInstalledTypes returns the names of every enum, composite and
// domain type defined in the public schema.
func ListInstalledTypes(ctx context.Context, pool Querier) ([]string, error) {
	rows, err := pool.Query(ctx, `
		SELECT t.typname
		FROM pg_type t
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = 'public'
			AND (t.typtype = 'e' OR t.typtype = 'c' OR t.typtype = 'd')
		ORDER BY t.typname
	`)
	if err != nil {
		return nil, err
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

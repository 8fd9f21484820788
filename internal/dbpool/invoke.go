package dbpool

import (
	"context"
	"fmt"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

// InvokeFunction resolves database's pool and runs
// "SELECT * FROM <function>($1, $2, ...)" with params bound positionally.
// Each row comes back as a map keyed by column name, values already typed
// by the driver from the function's own result columns.
func (m *Manager) InvokeFunction(ctx context.Context, database, function string, params []any) ([]map[string]any, error) {
	pool, err := m.GetPool(ctx, database)
	if err != nil {
		return nil, err
	}

	sql := fmt.Sprintf(`SELECT * FROM %q(%s)`, function, placeholders(len(params)))
	rows, err := pool.Query(ctx, sql, params...)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindFunctionCallFailed, err, "invoking "+function).WithDatabase(database)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = string(f.Name)
	}

	var results []map[string]any
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindFunctionCallFailed, err, "reading result row from "+function).WithDatabase(database)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindFunctionCallFailed, err, "iterating results from "+function).WithDatabase(database)
	}

	return results, nil
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	s := "$1"
	for i := 2; i <= n; i++ {
		s += fmt.Sprintf(", $%d", i)
	}
	return s
}

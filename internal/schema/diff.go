package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// DiffChangeType classifies the kind of schema change a difference represents.
type DiffChangeType string

const (
	ChangeCreateTable          DiffChangeType = "create_table"
	ChangeDropTable            DiffChangeType = "drop_table"
	ChangeAddColumn            DiffChangeType = "add_column"
	ChangeDropColumn           DiffChangeType = "drop_column"
	ChangeModifyColumnType     DiffChangeType = "modify_column_type"
	ChangeModifyColumnNullable DiffChangeType = "modify_column_nullable"
)

// SchemaChange is one detected difference between desired and observed
// state, classified by the compatibility it requires.
type SchemaChange struct {
	Table         string
	ChangeType    DiffChangeType
	Column        string
	FromType      string
	ToType        string
	Compatibility Compatibility
	Reason        string
}

// SchemaDiff buckets every SchemaChange by how safe it is to apply.
type SchemaDiff struct {
	SafeChanges         []SchemaChange
	DataLossChanges     []SchemaChange
	IncompatibleChanges []SchemaChange
}

// IsSafe reports whether every detected change can be applied without a
// forced override.
func (d *SchemaDiff) IsSafe() bool {
	return len(d.DataLossChanges) == 0 && len(d.IncompatibleChanges) == 0
}

// HasChanges reports whether the diff found anything to apply at all.
func (d *SchemaDiff) HasChanges() bool {
	return len(d.SafeChanges) > 0 || len(d.DataLossChanges) > 0 || len(d.IncompatibleChanges) > 0
}

func (d *SchemaDiff) add(change SchemaChange) {
	switch change.Compatibility {
	case CompatSafe, CompatIdentical:
		d.SafeChanges = append(d.SafeChanges, change)
	case CompatDataLoss:
		d.DataLossChanges = append(d.DataLossChanges, change)
	default:
		d.IncompatibleChanges = append(d.IncompatibleChanges, change)
	}
}

// observedColumnFullType renders the same "BASE(len)" / "BASE(p,s)" shape
// the type matrix expects, mirroring information_schema's separate
// character_maximum_length / numeric_precision / numeric_scale fields.
func observedColumnFullType(dataType string, charMaxLen, numericPrecision, numericScale *int) string {
	base := strings.ToUpper(dataType)
	if charMaxLen != nil {
		return fmt.Sprintf("%s(%d)", base, *charMaxLen)
	}
	if numericPrecision != nil && numericScale != nil && (base == "NUMERIC" || base == "DECIMAL") {
		return fmt.Sprintf("%s(%d,%d)", base, *numericPrecision, *numericScale)
	}
	return base
}

func desiredColumnFullType(c Column) string {
	return strings.ToUpper(c.DeclaredType)
}

// Querier is the subset of pgxpool.Pool the differ needs to read a live
// database's catalogue. Accepting the interface instead of the concrete
// pool keeps this package free of a direct dbpool dependency.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Differ compares a declarative Desired State (as parsed from a bundle's
// tables/ directory) against a live database's information_schema.
type Differ struct {
	matrix *TypeMatrix
}

// NewDiffer builds a Differ with the standard type compatibility matrix.
func NewDiffer() *Differ {
	return &Differ{matrix: NewTypeMatrix()}
}

// QueryCurrentSchema reads every user table and column from the target
// database's public schema, excluding the gateway's own tracking tables.
func (d *Differ) QueryCurrentSchema(ctx context.Context, pool Querier) (map[string]ObservedTable, error) {
	rows, err := pool.Query(ctx, `
		SELECT
			t.table_name,
			c.column_name,
			c.data_type,
			c.is_nullable,
			c.column_default,
			c.character_maximum_length,
			c.numeric_precision,
			c.numeric_scale
		FROM information_schema.tables t
		JOIN information_schema.columns c
			ON t.table_name = c.table_name
			AND t.table_schema = c.table_schema
		WHERE t.table_schema = 'public'
			AND t.table_type = 'BASE TABLE'
			AND t.table_name NOT LIKE '_stonescriptdb_gateway_%'
		ORDER BY t.table_name, c.ordinal_position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order := map[string]int{}
	tables := map[string]*ObservedTable{}
	for rows.Next() {
		var tableName, columnName, dataType, isNullableStr string
		var columnDefault *string
		var charMaxLen, numericPrecision, numericScale *int

		if err := rows.Scan(&tableName, &columnName, &dataType, &isNullableStr, &columnDefault, &charMaxLen, &numericPrecision, &numericScale); err != nil {
			return nil, err
		}

		table, ok := tables[tableName]
		if !ok {
			table = &ObservedTable{Name: tableName}
			tables[tableName] = table
			order[tableName] = len(order)
		}
		table.Columns = append(table.Columns, ObservedColumn{
			Name:             columnName,
			DataType:         strings.ToUpper(dataType),
			IsNullable:       strings.EqualFold(isNullableStr, "YES"),
			HasDefault:       columnDefault != nil,
			CharMaxLen:       charMaxLen,
			NumericPrecision: numericPrecision,
			NumericScale:     numericScale,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := make(map[string]ObservedTable, len(tables))
	for name, t := range tables {
		result[name] = *t
	}
	return result, nil
}

// Diff compares desired tables against the observed database state.
func (d *Differ) Diff(desired []Table, current map[string]ObservedTable) *SchemaDiff {
	diff := &SchemaDiff{}
	desiredByName := make(map[string]Table, len(desired))
	for _, t := range desired {
		desiredByName[t.Name] = t
	}

	for _, table := range desired {
		observed, ok := current[table.Name]
		if !ok {
			diff.add(SchemaChange{Table: table.Name, ChangeType: ChangeCreateTable, Compatibility: CompatSafe})
			continue
		}
		d.diffTableColumns(diff, table, observed)
	}

	for name := range current {
		if _, ok := desiredByName[name]; !ok {
			diff.add(SchemaChange{
				Table:         name,
				ChangeType:    ChangeDropTable,
				Compatibility: CompatDataLoss,
				Reason:        "Dropping table will delete all data",
			})
		}
	}

	return diff
}

func (d *Differ) diffTableColumns(diff *SchemaDiff, desired Table, current ObservedTable) {
	desiredByName := make(map[string]Column, len(desired.Columns))
	for _, c := range desired.Columns {
		desiredByName[c.Name] = c
	}

	for _, col := range desired.Columns {
		observed, ok := current.ColumnByName(col.Name)
		if !ok {
			compat := CompatSafe
			var reason string
			if !col.Nullable && !col.HasDefault {
				compat = CompatDataLoss
				reason = "Adding NOT NULL column without DEFAULT requires data migration"
			}
			diff.add(SchemaChange{
				Table:         desired.Name,
				ChangeType:    ChangeAddColumn,
				Column:        col.Name,
				ToType:        desiredColumnFullType(col),
				Compatibility: compat,
				Reason:        reason,
			})
			continue
		}

		d.diffColumnType(diff, desired.Name, col, observed)

		if col.Nullable != observed.IsNullable {
			compat := CompatSafe
			var reason string
			if !col.Nullable {
				compat = CompatDataLoss
				reason = "May fail if NULL values exist"
			}
			from, to := "NULLABLE", "NOT NULL"
			if col.Nullable {
				from, to = "NOT NULL", "NULLABLE"
			}
			diff.add(SchemaChange{
				Table:         desired.Name,
				ChangeType:    ChangeModifyColumnNullable,
				Column:        col.Name,
				FromType:      from,
				ToType:        to,
				Compatibility: compat,
				Reason:        reason,
			})
		}
	}

	for _, observed := range current.Columns {
		if _, ok := desiredByName[observed.Name]; !ok {
			diff.add(SchemaChange{
				Table:         desired.Name,
				ChangeType:    ChangeDropColumn,
				Column:        observed.Name,
				FromType:      observed.FullType(),
				Compatibility: CompatDataLoss,
				Reason:        "Dropping column will delete all data in that column",
			})
		}
	}
}

func (d *Differ) diffColumnType(diff *SchemaDiff, tableName string, desired Column, observed ObservedColumn) {
	desiredType := desiredColumnFullType(desired)
	currentType := observed.FullType()

	change := d.matrix.Check(currentType, desiredType)
	if change.Compatibility == CompatIdentical {
		return
	}

	diff.add(SchemaChange{
		Table:         tableName,
		ChangeType:    ChangeModifyColumnType,
		Column:        desired.Name,
		FromType:      currentType,
		ToType:        desiredType,
		Compatibility: change.Compatibility,
		Reason:        change.Reason,
	})
}

// FormatDiff renders a diff report for CLI/log output.
func FormatDiff(diff *SchemaDiff) string {
	var b strings.Builder
	if !diff.HasChanges() {
		return "No schema changes detected.\n"
	}

	writeGroup := func(title string, changes []SchemaChange) {
		if len(changes) == 0 {
			return
		}
		fmt.Fprintf(&b, "%s (%d):\n", title, len(changes))
		for _, c := range changes {
			target := c.Table
			if c.Column != "" {
				target = fmt.Sprintf("%s.%s", c.Table, c.Column)
			}
			line := fmt.Sprintf("  %s %s", c.ChangeType, target)
			if c.FromType != "" && c.ToType != "" {
				line += fmt.Sprintf(": %s -> %s", c.FromType, c.ToType)
			} else if c.ToType != "" {
				line += fmt.Sprintf(": %s", c.ToType)
			}
			b.WriteString(line)
			if c.Reason != "" {
				fmt.Fprintf(&b, "\n      Reason: %s", c.Reason)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	writeGroup("SAFE CHANGES", diff.SafeChanges)
	writeGroup("DATALOSS CHANGES", diff.DataLossChanges)
	writeGroup("INCOMPATIBLE CHANGES", diff.IncompatibleChanges)

	switch {
	case diff.IsSafe():
		b.WriteString("Result: SAFE - migration can proceed\n")
	case len(diff.IncompatibleChanges) > 0:
		b.WriteString("Result: BLOCKED - incompatible changes cannot be applied, even with force=true\n")
	default:
		b.WriteString("Result: BLOCKED - use force=true to proceed\n")
	}

	return b.String()
}

package schema

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

var (
	seederInsertRe = regexp.MustCompile(`(?is)INSERT\s+INTO\s+(\w+)\s*\(\s*([^)]+)\s*\)\s*VALUES\s+(.*?)(?:ON\s+(?:CONFLICT|DUPLICATE\s+KEY)|;|$)`)
	seederTupleRe  = regexp.MustCompile(`\(([^)]+)\)`)
)

// SeederRecord is one row a seeder file wants inserted.
type SeederRecord struct {
	Columns []string
	Values  []string
}

// SeederFile is a parsed seeder: the table it targets and the records it
// declares. PrimaryKeyColumns assumes the seeder's first column is the
// primary key, the same convention the bundle format itself follows.
type SeederFile struct {
	Name              string
	TableName         string
	Records           []SeederRecord
	PrimaryKeyColumns []string
}

// SeederRunResult reports what running one seeder did.
type SeederRunResult struct {
	Table         string
	Inserted      int
	Skipped       int
	TotalExpected int
}

// SeederValidation reports how many of a seeder's declared records were
// actually found in the database.
type SeederValidation struct {
	Table    string
	Expected int
	Found    int
	Missing  []string
}

// ParseSeederFile extracts the target table, columns and value tuples
// from one seeder's raw INSERT INTO ... VALUES ... statement. Returns nil
// if the content has no recognizable INSERT statement.
func ParseSeederFile(name, content string) (*SeederFile, error) {
	sql := RemoveComments(content)

	m := seederInsertRe.FindStringSubmatch(sql)
	if m == nil {
		return nil, nil
	}

	tableName := strings.ToLower(m[1])
	var columns []string
	for _, c := range strings.Split(m[2], ",") {
		columns = append(columns, strings.ToLower(strings.TrimSpace(c)))
	}

	records := parseSeederValues(m[3], columns, name, tableName)

	var pk []string
	if len(columns) > 0 {
		pk = []string{columns[0]}
	}

	return &SeederFile{
		Name:              name,
		TableName:         tableName,
		Records:           records,
		PrimaryKeyColumns: pk,
	}, nil
}

func parseSeederValues(valuesStr string, columns []string, fileName, tableName string) []SeederRecord {
	var records []SeederRecord
	for _, m := range seederTupleRe.FindAllStringSubmatch(valuesStr, -1) {
		values := parseSeederValueTuple(m[1])
		if len(values) == len(columns) {
			records = append(records, SeederRecord{Columns: columns, Values: values})
		}
		// A tuple whose arity doesn't match the column list is dropped
		// without being reported.
	}
	return records
}

// parseSeederValueTuple splits one "(a, b, c)" tuple interior on commas,
// treating single- or double-quoted spans as atomic.
func parseSeederValueTuple(s string) []string {
	var values []string
	var current strings.Builder
	inString := false
	var stringChar rune

	for _, ch := range s {
		switch {
		case (ch == '\'' || ch == '"') && !inString:
			inString = true
			stringChar = ch
			current.WriteRune(ch)
		case ch == stringChar && inString:
			inString = false
			current.WriteRune(ch)
		case ch == ',' && !inString:
			values = append(values, strings.TrimSpace(current.String()))
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		values = append(values, strings.TrimSpace(current.String()))
	}
	return values
}

// SeederRunner inserts and validates seed data declared by a bundle's
// seeders/ directory.
type SeederRunner struct{}

// NewSeederRunner builds a SeederRunner.
func NewSeederRunner() *SeederRunner {
	return &SeederRunner{}
}

// RunSeedersOnRegister inserts every seeder's records into its target
// table, but only for tables that are currently empty — a table with any
// existing rows is left untouched and its records are reported skipped.
func (r *SeederRunner) RunSeedersOnRegister(ctx context.Context, pool Execer, seeders []*SeederFile) ([]SeederRunResult, error) {
	results := make([]SeederRunResult, 0, len(seeders))
	for _, seeder := range seeders {
		result, err := r.runSeederIfEmpty(ctx, pool, seeder)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (r *SeederRunner) runSeederIfEmpty(ctx context.Context, pool Execer, seeder *SeederFile) (SeederRunResult, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", seeder.TableName))
	if err != nil {
		return SeederRunResult{}, gatewayerr.Wrap(gatewayerr.KindInternal, err, "seeder existence check for "+seeder.TableName)
	}
	var count int64
	if rows.Next() {
		if err := rows.Scan(&count); err != nil {
			rows.Close()
			return SeederRunResult{}, err
		}
	}
	rows.Close()

	if count > 0 {
		return SeederRunResult{
			Table:         seeder.TableName,
			Skipped:       len(seeder.Records),
			TotalExpected: len(seeder.Records),
		}, nil
	}

	inserted := 0
	for _, record := range seeder.Records {
		insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			seeder.TableName, strings.Join(record.Columns, ", "), strings.Join(record.Values, ", "))
		if _, err := pool.Exec(ctx, insertSQL); err != nil {
			return SeederRunResult{}, gatewayerr.Wrap(gatewayerr.KindSeederValidationFailed, err, "seeder insert into "+seeder.TableName)
		}
		inserted++
	}

	return SeederRunResult{Table: seeder.TableName, Inserted: inserted, TotalExpected: len(seeder.Records)}, nil
}

// ValidateSeeders checks that every record a seeder declares is present
// in the database — used after a migration to confirm seed data that
// register should have inserted is still there. Returns a
// SeederValidationFailed error naming every table with missing records if
// any validation comes up short; the caller should treat this as a signal
// to roll back the migration that was being applied.
func (r *SeederRunner) ValidateSeeders(ctx context.Context, pool Execer, seeders []*SeederFile) ([]SeederValidation, error) {
	validations := make([]SeederValidation, 0, len(seeders))
	var failing []string

	for _, seeder := range seeders {
		v, err := r.validateSeeder(ctx, pool, seeder)
		if err != nil {
			return nil, err
		}
		if v.Found < v.Expected {
			failing = append(failing, fmt.Sprintf("%s: %d/%d (missing: %s)", v.Table, v.Found, v.Expected, strings.Join(v.Missing, ", ")))
		}
		validations = append(validations, v)
	}

	if len(failing) > 0 {
		return validations, gatewayerr.Newf(gatewayerr.KindSeederValidationFailed,
			"seeder validation failed, missing records in: %s (records should have been inserted during registration; "+
				"check for insert errors during the original register call, or a migration that manually inserts the missing rows)",
			strings.Join(failing, "; "))
	}

	return validations, nil
}

func (r *SeederRunner) validateSeeder(ctx context.Context, pool Execer, seeder *SeederFile) (SeederValidation, error) {
	found := 0
	var missing []string

	for _, record := range seeder.Records {
		conditions := pkConditions(seeder.PrimaryKeyColumns, record)
		if len(conditions) == 0 {
			found++
			continue
		}

		checkSQL := fmt.Sprintf("SELECT 1 FROM %s WHERE %s LIMIT 1", seeder.TableName, strings.Join(conditions, " AND "))
		rows, err := pool.Query(ctx, checkSQL)
		if err != nil {
			return SeederValidation{}, gatewayerr.Wrap(gatewayerr.KindInternal, err, "seeder validation for "+seeder.TableName)
		}
		exists := rows.Next()
		rows.Close()

		if exists {
			found++
		} else {
			missing = append(missing, pkValue(seeder.PrimaryKeyColumns, record))
		}
	}

	return SeederValidation{
		Table:    seeder.TableName,
		Expected: len(seeder.Records),
		Found:    found,
		Missing:  missing,
	}, nil
}

func pkConditions(pkColumns []string, record SeederRecord) []string {
	var conditions []string
	for _, pk := range pkColumns {
		idx := indexOfString(record.Columns, pk)
		if idx < 0 {
			continue
		}
		conditions = append(conditions, fmt.Sprintf("%s = %s", pk, record.Values[idx]))
	}
	return conditions
}

func pkValue(pkColumns []string, record SeederRecord) string {
	var values []string
	for _, pk := range pkColumns {
		idx := indexOfString(record.Columns, pk)
		if idx < 0 {
			continue
		}
		values = append(values, record.Values[idx])
	}
	return strings.Join(values, ", ")
}

func indexOfString(items []string, target string) int {
	for i, item := range items {
		if item == target {
			return i
		}
	}
	return -1
}

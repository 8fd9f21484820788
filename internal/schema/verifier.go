package schema

import (
	"context"
	"fmt"
	"strings"
)

// ExtensionVerification reports which expected extensions are missing.
type ExtensionVerification struct {
	Expected []string
	Found    []string
	Missing  []string
}

// TypeVerification reports which expected custom types are missing.
type TypeVerification struct {
	Expected []string
	Found    []string
	Missing  []string
}

// TableMismatch is one table whose live schema disagrees with the
// declarative one in a way that is not simply "missing".
type TableMismatch struct {
	Table string
	Issue string
}

// TableVerification reports missing tables and mismatched columns.
type TableVerification struct {
	Expected   []string
	Found      []string
	Missing    []string
	Mismatches []TableMismatch
}

// MissingSeeder names a table whose declared seed records are not fully
// present in the database.
type MissingSeeder struct {
	Table string
	Count int
	Keys  []string
}

// SeederVerification reports seed data missing after a migration.
type SeederVerification struct {
	Missing []MissingSeeder
}

// VerificationResult is the outcome of checking every schema component
// against a live database.
type VerificationResult struct {
	Passed     bool
	Extensions ExtensionVerification
	Types      TypeVerification
	Tables     TableVerification
	Seeders    SeederVerification
}

// ErrorLog renders a human-readable report of everything that failed
// verification, suitable for surfacing to whoever needs to write a
// corrective migration.
func (v VerificationResult) ErrorLog() string {
	var b strings.Builder
	sep := strings.Repeat("=", 67)
	b.WriteString(sep + "\n")
	b.WriteString("              SCHEMA VERIFICATION FAILED\n")
	b.WriteString(sep + "\n\n")

	if len(v.Extensions.Missing) > 0 {
		b.WriteString("MISSING EXTENSIONS:\n")
		for _, e := range v.Extensions.Missing {
			fmt.Fprintf(&b, "  - %s\n", e)
		}
		b.WriteString("\n")
	}

	if len(v.Types.Missing) > 0 {
		b.WriteString("MISSING TYPES:\n")
		for _, t := range v.Types.Missing {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
		b.WriteString("\n")
	}

	if len(v.Tables.Mismatches) > 0 {
		b.WriteString("TABLE SCHEMA MISMATCHES:\n")
		for _, m := range v.Tables.Mismatches {
			fmt.Fprintf(&b, "  - %s: %s\n", m.Table, m.Issue)
		}
		b.WriteString("\n")
	}

	if len(v.Tables.Missing) > 0 {
		b.WriteString("MISSING TABLES:\n")
		for _, t := range v.Tables.Missing {
			fmt.Fprintf(&b, "  - %s\n", t)
		}
		b.WriteString("\n")
	}

	if len(v.Seeders.Missing) > 0 {
		b.WriteString("MISSING SEEDER RECORDS:\n")
		for _, s := range v.Seeders.Missing {
			fmt.Fprintf(&b, "  - %s (%d missing records)\n", s.Table, s.Count)
		}
		b.WriteString("\n")
	}

	b.WriteString(sep + "\n")
	b.WriteString("ACTION REQUIRED: add migration(s) to fix schema drift\n")
	b.WriteString(sep + "\n")

	return b.String()
}

// Verifier checks every schema component (extensions, types, tables,
// seeders) against a live database after a migration has run.
type Verifier struct {
	differ *Differ
	seeder *SeederRunner
}

// NewVerifier builds a Verifier.
func NewVerifier() *Verifier {
	return &Verifier{differ: NewDiffer(), seeder: NewSeederRunner()}
}

// VerifySchema runs every verification and reports whether the database
// fully matches the declarative bundle it was migrated with.
func (v *Verifier) VerifySchema(ctx context.Context, pool Execer, desired *DesiredState, seeders []*SeederFile) (VerificationResult, error) {
	result := VerificationResult{Passed: true}

	extVerify, err := v.verifyExtensions(ctx, pool, desired.Extensions)
	if err != nil {
		return VerificationResult{}, err
	}
	result.Extensions = extVerify
	if len(extVerify.Missing) > 0 {
		result.Passed = false
	}

	typeVerify, err := v.verifyTypes(ctx, pool, desired.Types)
	if err != nil {
		return VerificationResult{}, err
	}
	result.Types = typeVerify
	if len(typeVerify.Missing) > 0 {
		result.Passed = false
	}

	tableVerify, err := v.verifyTables(ctx, pool, desired.Tables)
	if err != nil {
		return VerificationResult{}, err
	}
	result.Tables = tableVerify
	if len(tableVerify.Missing) > 0 || len(tableVerify.Mismatches) > 0 {
		result.Passed = false
	}

	seederVerify := v.verifySeeders(ctx, pool, seeders)
	result.Seeders = seederVerify
	if len(seederVerify.Missing) > 0 {
		result.Passed = false
	}

	return result, nil
}

func (v *Verifier) verifyExtensions(ctx context.Context, pool Execer, expected []Extension) (ExtensionVerification, error) {
	verification := ExtensionVerification{}
	for _, e := range expected {
		verification.Expected = append(verification.Expected, e.Name)
	}

	found, err := ListInstalledExtensions(ctx, pool)
	if err != nil {
		return ExtensionVerification{}, err
	}
	verification.Found = found

	foundSet := toSet(found)
	for _, name := range verification.Expected {
		if !foundSet[name] {
			verification.Missing = append(verification.Missing, name)
		}
	}
	return verification, nil
}

func (v *Verifier) verifyTypes(ctx context.Context, pool Execer, expected []TypeDef) (TypeVerification, error) {
	verification := TypeVerification{}
	for _, t := range expected {
		verification.Expected = append(verification.Expected, t.Name)
	}

	found, err := ListInstalledTypes(ctx, pool)
	if err != nil {
		return TypeVerification{}, err
	}
	verification.Found = found

	foundSet := toSet(found)
	for _, name := range verification.Expected {
		if !foundSet[name] {
			verification.Missing = append(verification.Missing, name)
		}
	}
	return verification, nil
}

func (v *Verifier) verifyTables(ctx context.Context, pool Execer, desired []Table) (TableVerification, error) {
	verification := TableVerification{}
	for _, t := range desired {
		verification.Expected = append(verification.Expected, t.Name)
	}

	current, err := v.differ.QueryCurrentSchema(ctx, pool)
	if err != nil {
		return TableVerification{}, err
	}
	for name := range current {
		verification.Found = append(verification.Found, name)
	}

	for _, name := range verification.Expected {
		if _, ok := current[name]; !ok {
			verification.Missing = append(verification.Missing, name)
		}
	}

	diff := v.differ.Diff(desired, current)
	for _, change := range append(append([]SchemaChange{}, diff.DataLossChanges...), diff.IncompatibleChanges...) {
		issue := string(change.ChangeType)
		if change.Column != "" {
			issue = fmt.Sprintf("%s column '%s': %s -> %s", change.ChangeType, change.Column, orDash(change.FromType), orDash(change.ToType))
		}
		verification.Mismatches = append(verification.Mismatches, TableMismatch{Table: change.Table, Issue: issue})
	}

	return verification, nil
}

func (v *Verifier) verifySeeders(ctx context.Context, pool Execer, seeders []*SeederFile) SeederVerification {
	verification := SeederVerification{}

	validations, err := v.seeder.ValidateSeeders(ctx, pool, seeders)
	if err != nil {
		for _, val := range validations {
			if val.Found < val.Expected {
				verification.Missing = append(verification.Missing, MissingSeeder{
					Table: val.Table,
					Count: val.Expected - val.Found,
					Keys:  val.Missing,
				})
			}
		}
		if len(verification.Missing) == 0 {
			verification.Missing = append(verification.Missing, MissingSeeder{Table: "unknown", Keys: []string{err.Error()}})
		}
		return verification
	}

	for _, val := range validations {
		if val.Found < val.Expected {
			verification.Missing = append(verification.Missing, MissingSeeder{
				Table: val.Table,
				Count: val.Expected - val.Found,
				Keys:  val.Missing,
			})
		}
	}
	return verification
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[i] = true
	}
	return set
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

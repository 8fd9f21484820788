// Package schema implements the bundle loader, SQL surface parser,
// checksum normalizer, dependency orderer, and schema differ that
// together turn a "postgresql/" bundle tree plus a live database
// connection into an ordered, classified reconciliation plan.
package schema

// Extension is a desired PostgreSQL extension.
type Extension struct {
	Name    string
	Version string
	Schema  string
}

// TypeKind classifies a CREATE TYPE / CREATE DOMAIN artifact.
type TypeKind string

const (
	TypeEnum      TypeKind = "enum"
	TypeComposite TypeKind = "composite"
	TypeDomain    TypeKind = "domain"
)

// TypeDef is a desired custom type.
type TypeDef struct {
	Name     string
	Kind     TypeKind
	BodyText string
	Checksum string
}

// Column is one column of a declarative table.
type Column struct {
	Name             string
	DeclaredType     string
	Nullable         bool
	HasDefault       bool
	PrimaryKey       bool
	Unique           bool
	References       string // target table name, "" if none
	CheckConstraints []string
}

// Table is a desired declarative table.
type Table struct {
	Name     string
	Columns  []Column
	FKRefs   map[string]bool
	BodyText string
	Checksum string
}

// Migration is one ordered DDL migration file.
type Migration struct {
	Filename string
	BodyText string
	Checksum string
}

// FunctionSignature identifies a function overload by name and ordered
// parameter type tuple.
type FunctionSignature struct {
	Name       string
	ParamTypes []string
}

// String renders the signature the way it is recorded in the tracking
// table and in DROP FUNCTION statements: "name(type1,type2)".
func (s FunctionSignature) String() string {
	out := s.Name + "("
	for i, t := range s.ParamTypes {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out + ")"
}

// Function is a desired stored function.
type Function struct {
	Signature FunctionSignature
	BodyText  string
	Checksum  string
}

// Seeder is a desired set of seed statements targeting one table.
type Seeder struct {
	Table                string
	Statements           string
	ExpectedRowCountAfter int
}

// DesiredState is everything a bundle declares.
type DesiredState struct {
	Extensions []Extension
	Types      []TypeDef
	Tables     []Table
	Migrations []Migration
	Functions  []Function
	Seeders    []Seeder
}

// ObservedExtension is an installed extension read from pg_extension.
type ObservedExtension struct {
	Name string
}

// ObservedType is a custom type read from the catalogue plus its tracked
// checksum, if any.
type ObservedType struct {
	Name     string
	Checksum string
}

// ObservedColumn mirrors information_schema.columns. CharMaxLen and the
// numeric precision/scale pair are nil unless the underlying type carries
// that dimension, matching how information_schema reports them.
type ObservedColumn struct {
	Name             string
	DataType         string
	IsNullable       bool
	HasDefault       bool
	CharMaxLen       *int
	NumericPrecision *int
	NumericScale     *int
}

// FullType renders the column's type the same way a declarative column's
// DeclaredType is written, so the two sides of a diff compare like for
// like: "VARCHAR(255)", "NUMERIC(10,2)", or a bare base type.
func (c ObservedColumn) FullType() string {
	return observedColumnFullType(c.DataType, c.CharMaxLen, c.NumericPrecision, c.NumericScale)
}

// ObservedTable is a table read from the catalogue plus its tracked
// checksum, if any.
type ObservedTable struct {
	Name     string
	Columns  []ObservedColumn
	Checksum string
}

// ColumnByName looks up a column by name, ok is false if absent.
func (t ObservedTable) ColumnByName(name string) (ObservedColumn, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ObservedColumn{}, false
}

// ObservedMigration is a row of the migrations tracking table.
type ObservedMigration struct {
	Filename string
	Checksum string
}

// ObservedFunction is a row of the functions tracking table.
type ObservedFunction struct {
	Signature FunctionSignature
	Checksum  string
}

// ObservedState is everything read back from a live database: the
// PostgreSQL catalogue plus the gateway's own tracking tables.
type ObservedState struct {
	Extensions []ObservedExtension
	Types      []ObservedType
	Tables     []ObservedTable
	Migrations []ObservedMigration
	Functions  []ObservedFunction
}

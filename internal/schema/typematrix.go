package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Compatibility classifies a column type change.
type Compatibility string

const (
	CompatIdentical   Compatibility = "identical"
	CompatSafe        Compatibility = "safe"
	CompatDataLoss    Compatibility = "dataloss"
	CompatIncompatible Compatibility = "incompatible"
)

// TypeChange is the result of checking one column type transition.
type TypeChange struct {
	Compatibility Compatibility
	Reason        string
}

// IsSafe reports whether the change can be applied without risking data.
func (c TypeChange) IsSafe() bool {
	return c.Compatibility == CompatIdentical || c.Compatibility == CompatSafe
}

var (
	parenLenRe   = regexp.MustCompile(`\((\d+)\)`)
	precScaleRe  = regexp.MustCompile(`\((\d+)(?:,\s*(\d+))?\)`)
)

// TypeMatrix checks PostgreSQL column type compatibility using a fixed
// table of safe widenings and known dataloss narrowings. Any pair not
// covered by the table is treated as incompatible.
type TypeMatrix struct {
	safeWidenings     map[string][]string
	dataLossNarrowing map[[2]string]string
}

// NewTypeMatrix builds the standard PostgreSQL compatibility table.
func NewTypeMatrix() *TypeMatrix {
	m := &TypeMatrix{
		safeWidenings:     map[string][]string{},
		dataLossNarrowing: map[[2]string]string{},
	}

	// Integer widenings.
	m.widen("SMALLINT", "INTEGER", "BIGINT", "NUMERIC", "DECIMAL", "REAL", "DOUBLE PRECISION")
	m.widen("INT2", "INTEGER", "BIGINT", "NUMERIC", "DECIMAL", "REAL", "DOUBLE PRECISION")
	m.widen("INTEGER", "BIGINT", "NUMERIC", "DECIMAL", "DOUBLE PRECISION")
	m.widen("INT", "BIGINT", "NUMERIC", "DECIMAL", "DOUBLE PRECISION")
	m.widen("INT4", "BIGINT", "NUMERIC", "DECIMAL", "DOUBLE PRECISION")
	m.widen("BIGINT", "NUMERIC", "DECIMAL")
	m.widen("INT8", "NUMERIC", "DECIMAL")

	m.narrow("BIGINT", "INTEGER", "May overflow: BIGINT max 9.2e18, INTEGER max 2.1e9")
	m.narrow("BIGINT", "SMALLINT", "May overflow: BIGINT max 9.2e18, SMALLINT max 32767")
	m.narrow("INTEGER", "SMALLINT", "May overflow: INTEGER max 2.1e9, SMALLINT max 32767")

	// String widenings.
	m.widen("CHAR", "VARCHAR", "TEXT")
	m.widen("CHARACTER", "VARCHAR", "TEXT")
	m.widen("VARCHAR", "TEXT")

	m.narrow("TEXT", "VARCHAR", "May truncate: TEXT has no limit, VARCHAR has limit")
	m.narrow("TEXT", "CHAR", "May truncate: TEXT has no limit, CHAR is fixed length")

	// Floating point.
	m.widen("REAL", "DOUBLE PRECISION", "NUMERIC", "DECIMAL")
	m.widen("DOUBLE PRECISION", "NUMERIC", "DECIMAL")

	m.narrow("DOUBLE PRECISION", "REAL", "May lose precision: DOUBLE has 15 digits, REAL has 6")
	m.narrow("NUMERIC", "REAL", "May lose precision: NUMERIC is exact, REAL is approximate")
	m.narrow("NUMERIC", "DOUBLE PRECISION", "May lose precision: NUMERIC is exact, DOUBLE is approximate")

	// Date/time.
	m.widen("DATE", "TIMESTAMP", "TIMESTAMPTZ")
	m.widen("TIMESTAMP", "TIMESTAMPTZ")
	m.widen("TIME", "TIMETZ")

	m.narrow("TIMESTAMP", "DATE", "Loses time component")
	m.narrow("TIMESTAMPTZ", "DATE", "Loses time and timezone")

	// Boolean.
	m.widen("BOOLEAN", "INTEGER", "SMALLINT", "BIGINT")
	m.narrow("INTEGER", "BOOLEAN", "Only 0 and 1 map to FALSE/TRUE, other values become TRUE")

	// UUID.
	m.widen("UUID", "TEXT", "VARCHAR")
	m.narrow("TEXT", "UUID", "May fail: TEXT must contain valid UUID format")
	m.narrow("VARCHAR", "UUID", "May fail: VARCHAR must contain valid UUID format")

	// JSON/JSONB.
	m.widen("JSON", "JSONB", "TEXT")
	m.widen("JSONB", "JSON", "TEXT")
	m.narrow("TEXT", "JSON", "May fail: TEXT must contain valid JSON")
	m.narrow("TEXT", "JSONB", "May fail: TEXT must contain valid JSON")

	// Serial aliases.
	m.widen("SERIAL", "BIGSERIAL", "INTEGER", "BIGINT")
	m.widen("SMALLSERIAL", "SERIAL", "BIGSERIAL", "SMALLINT", "INTEGER", "BIGINT")
	m.widen("BIGSERIAL", "BIGINT", "NUMERIC")

	return m
}

func (m *TypeMatrix) widen(from string, to ...string) {
	m.safeWidenings[from] = append(m.safeWidenings[from], to...)
}

func (m *TypeMatrix) narrow(from, to, reason string) {
	m.dataLossNarrowing[[2]string{from, to}] = reason
}

// Check classifies the transition from one declared column type to another.
func (m *TypeMatrix) Check(fromType, toType string) TypeChange {
	from := normalizeType(fromType)
	to := normalizeType(toType)

	if from == to {
		return TypeChange{Compatibility: CompatIdentical}
	}

	if change, ok := checkVarcharChange(from, to); ok {
		return change
	}
	if change, ok := checkNumericChange(from, to); ok {
		return change
	}

	fromBase := baseType(from)
	toBase := baseType(to)

	for _, t := range m.safeWidenings[fromBase] {
		if t == toBase {
			return TypeChange{Compatibility: CompatSafe}
		}
	}

	if reason, ok := m.dataLossNarrowing[[2]string{fromBase, toBase}]; ok {
		return TypeChange{Compatibility: CompatDataLoss, Reason: reason}
	}

	for _, t := range m.safeWidenings[toBase] {
		if t == fromBase {
			return TypeChange{
				Compatibility: CompatDataLoss,
				Reason:        fmt.Sprintf("Narrowing from %s to %s may lose data", fromType, toType),
			}
		}
	}

	return TypeChange{
		Compatibility: CompatIncompatible,
		Reason:        fmt.Sprintf("Unknown type change: %s -> %s", fromType, toType),
	}
}

func normalizeType(t string) string {
	t = strings.ToUpper(strings.TrimSpace(t))
	replacements := []struct{ from, to string }{
		{"CHARACTER VARYING", "VARCHAR"},
		{"INT4", "INTEGER"},
		{"INT8", "BIGINT"},
		{"INT2", "SMALLINT"},
		{"FLOAT4", "REAL"},
		{"FLOAT8", "DOUBLE PRECISION"},
		{"TIMESTAMP WITHOUT TIME ZONE", "TIMESTAMP"},
		{"TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ"},
		{"TIME WITHOUT TIME ZONE", "TIME"},
		{"TIME WITH TIME ZONE", "TIMETZ"},
	}
	for _, r := range replacements {
		t = strings.ReplaceAll(t, r.from, r.to)
	}
	if strings.HasPrefix(t, "BOOL") && !strings.HasPrefix(t, "BOOLEAN") {
		t = "BOOLEAN" + t[len("BOOL"):]
	}
	return t
}

func baseType(t string) string {
	if i := strings.Index(t, "("); i >= 0 {
		return strings.TrimSpace(t[:i])
	}
	return t
}

func lengthOf(t string) (int, bool) {
	m := parenLenRe.FindStringSubmatch(t)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isStringType(t string) bool {
	return t == "VARCHAR" || t == "CHAR" || t == "CHARACTER"
}

func checkVarcharChange(from, to string) (TypeChange, bool) {
	fromBase, toBase := baseType(from), baseType(to)
	if !isStringType(fromBase) || !isStringType(toBase) {
		return TypeChange{}, false
	}

	fromLen, fromOK := lengthOf(from)
	toLen, toOK := lengthOf(to)

	switch {
	case fromOK && toOK:
		if toLen >= fromLen {
			return TypeChange{Compatibility: CompatSafe}, true
		}
		return TypeChange{
			Compatibility: CompatDataLoss,
			Reason:        fmt.Sprintf("May truncate: reducing from %d to %d characters", fromLen, toLen),
		}, true
	case fromOK && !toOK:
		if toBase == "VARCHAR" {
			return TypeChange{Compatibility: CompatSafe}, true
		}
		return TypeChange{}, false
	case !fromOK && toOK:
		return TypeChange{Compatibility: CompatDataLoss, Reason: "May truncate: adding length limit"}, true
	default:
		return TypeChange{Compatibility: CompatSafe}, true
	}
}

func precisionScale(t string) (precision, scale int, ok bool) {
	m := precScaleRe.FindStringSubmatch(t)
	if m == nil {
		return 0, 0, false
	}
	precision, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		scale, _ = strconv.Atoi(m[2])
	}
	return precision, scale, true
}

func checkNumericChange(from, to string) (TypeChange, bool) {
	fromBase, toBase := baseType(from), baseType(to)
	isNumeric := func(b string) bool { return b == "NUMERIC" || b == "DECIMAL" }
	if !isNumeric(fromBase) || !isNumeric(toBase) {
		return TypeChange{}, false
	}

	fromP, fromS, fromOK := precisionScale(from)
	toP, toS, toOK := precisionScale(to)

	switch {
	case fromOK && toOK:
		if toP >= fromP && toS >= fromS {
			return TypeChange{Compatibility: CompatSafe}, true
		}
		return TypeChange{
			Compatibility: CompatDataLoss,
			Reason: fmt.Sprintf("May lose precision: NUMERIC(%d,%d) to NUMERIC(%d,%d)", fromP, fromS, toP, toS),
		}, true
	case fromOK && !toOK:
		return TypeChange{Compatibility: CompatSafe}, true
	case !fromOK && toOK:
		return TypeChange{Compatibility: CompatDataLoss, Reason: "May lose precision: adding precision limit"}, true
	default:
		return TypeChange{Compatibility: CompatIdentical}, true
	}
}

// FormatMatrix renders the table as human-readable text, sorted for
// deterministic output.
func (m *TypeMatrix) FormatMatrix() string {
	var b strings.Builder
	b.WriteString("SAFE WIDENINGS (no data loss):\n")

	fromKeys := make([]string, 0, len(m.safeWidenings))
	for k := range m.safeWidenings {
		fromKeys = append(fromKeys, k)
	}
	sort.Strings(fromKeys)
	for _, from := range fromKeys {
		fmt.Fprintf(&b, "  %s -> %s\n", from, strings.Join(m.safeWidenings[from], ", "))
	}

	b.WriteString("\nDATALOSS NARROWINGS (may lose data):\n")
	pairs := make([][2]string, 0, len(m.dataLossNarrowing))
	for k := range m.dataLossNarrowing {
		pairs = append(pairs, k)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i][0] != pairs[j][0] {
			return pairs[i][0] < pairs[j][0]
		}
		return pairs[i][1] < pairs[j][1]
	})
	for _, p := range pairs {
		fmt.Fprintf(&b, "  %s -> %s\n    Reason: %s\n", p[0], p[1], m.dataLossNarrowing[p])
	}

	return b.String()
}

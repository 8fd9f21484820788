package schema

import (
	"regexp"
	"strings"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

var (
	createTableRe   = regexp.MustCompile(`(?is)CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?"?(\w+)"?\s*\((.*)\)\s*;?\s*$`)
	primaryKeyRe    = regexp.MustCompile(`(?i)PRIMARY\s+KEY\s*\(\s*([^)]+)\s*\)`)
	tableLevelFKRe  = regexp.MustCompile(`(?is)FOREIGN\s+KEY\s*\(\s*(\w+)\s*\)\s*REFERENCES\s+"?(\w+)"?\s*\(\s*(\w+)\s*\)`)
	columnHeadRe    = regexp.MustCompile(`(?i)^"?(\w+)"?\s+(\w+(?:\s*\([^)]+\))?(?:\s*\[\s*\])?)`)
	inlineRefRe     = regexp.MustCompile(`(?is)REFERENCES\s+"?(\w+)"?\s*\(\s*(\w+)\s*\)`)
	checkRe         = regexp.MustCompile(`(?is)CHECK\s*\((.*)\)`)
)

// ParseTable parses one CREATE TABLE statement into a declarative Table.
// It is a hand-rolled surface parser, not a general SQL grammar: it
// recognizes the shapes the bundle format actually produces and returns
// BundleMalformed for anything else.
func ParseTable(sourceFile, content string) (*Table, error) {
	normalized := RemoveComments(content)
	m := createTableRe.FindStringSubmatch(strings.TrimSpace(normalized))
	if m == nil {
		return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "no CREATE TABLE statement found in %s", sourceFile)
	}

	name := strings.ToLower(m[1])
	body := m[2]

	parts := splitTopLevel(body, ',')
	table := &Table{
		Name:     name,
		FKRefs:   map[string]bool{},
		BodyText: strings.TrimSpace(content),
		Checksum: Checksum(content),
	}

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		upper := strings.ToUpper(part)

		switch {
		case strings.HasPrefix(upper, "PRIMARY KEY"):
			continue
		case strings.Contains(upper, "FOREIGN KEY"):
			if fk := tableLevelFKRe.FindStringSubmatch(part); fk != nil {
				table.FKRefs[strings.ToLower(fk[2])] = true
			}
			continue
		case strings.HasPrefix(upper, "CHECK"), strings.HasPrefix(upper, "CONSTRAINT"), strings.HasPrefix(upper, "UNIQUE"):
			continue
		}

		col, ok := parseColumn(part)
		if !ok {
			continue
		}
		if col.References != "" {
			table.FKRefs[col.References] = true
		}
		table.Columns = append(table.Columns, col)
	}

	if len(table.Columns) == 0 {
		return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "table %q in %s declares no columns", name, sourceFile)
	}

	return table, nil
}

func parseColumn(part string) (Column, bool) {
	head := columnHeadRe.FindStringSubmatch(part)
	if head == nil {
		return Column{}, false
	}
	upper := strings.ToUpper(part)

	col := Column{
		Name:         strings.ToLower(head[1]),
		DeclaredType: strings.ToUpper(strings.Join(strings.Fields(head[2]), " ")),
		Nullable:     !strings.Contains(upper, "NOT NULL"),
		PrimaryKey:   strings.Contains(upper, "PRIMARY KEY"),
		Unique:       strings.Contains(upper, "UNIQUE"),
		HasDefault:   strings.Contains(upper, "DEFAULT") || strings.Contains(upper, "SERIAL"),
	}

	if ref := inlineRefRe.FindStringSubmatch(part); ref != nil {
		col.References = strings.ToLower(ref[1])
	}
	if chk := checkRe.FindStringSubmatch(part); chk != nil {
		col.CheckConstraints = append(col.CheckConstraints, strings.TrimSpace(chk[1]))
	}

	return col, true
}

// splitTopLevel splits s on sep, treating parenthesized and single- or
// double-quoted spans as atomic so commas inside a type parameter list
// or a default expression are not mistaken for column separators.
func splitTopLevel(s string, sep rune) []string {
	var parts []string
	var current strings.Builder
	depth := 0
	var quote rune

	for _, ch := range s {
		switch {
		case quote != 0:
			current.WriteRune(ch)
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
			current.WriteRune(ch)
		case ch == '(':
			depth++
			current.WriteRune(ch)
		case ch == ')':
			depth--
			current.WriteRune(ch)
		case ch == sep && depth == 0:
			parts = append(parts, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		parts = append(parts, current.String())
	}
	return parts
}

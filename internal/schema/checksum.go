package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	whitespaceRe   = regexp.MustCompile(`\s+`)
	dollarTagRe    = regexp.MustCompile(`\$[A-Za-z_]*\$`)
	wordRe         = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// sqlKeywords is the fixed set of DDL/SQL keywords lowercased by
// normalization. Identifiers and string literals are left untouched, so
// that reformatting or renaming a table does not silently change the
// checksum of an unrelated case-shift.
var sqlKeywords = map[string]bool{
	"select": true, "from": true, "where": true, "insert": true, "into": true,
	"values": true, "update": true, "delete": true, "create": true, "table": true,
	"alter": true, "drop": true, "if": true, "not": true, "exists": true,
	"primary": true, "key": true, "foreign": true, "references": true,
	"unique": true, "default": true, "null": true, "constraint": true,
	"check": true, "type": true, "domain": true, "enum": true, "as": true,
	"function": true, "returns": true, "return": true, "language": true,
	"or": true, "replace": true, "extension": true, "schema": true,
	"version": true, "and": true, "in": true, "on": true, "conflict": true,
	"do": true, "nothing": true, "cascade": true, "restrict": true,
	"index": true, "column": true, "add": true, "using": true, "with": true,
	"begin": true, "end": true, "declare": true, "trigger": true, "before": true,
	"after": true, "for": true, "each": true, "row": true, "execute": true,
	"procedure": true, "immutable": true, "stable": true, "volatile": true,
	"security": true, "definer": true, "invoker": true, "out": true,
	"inout": true, "variadic": true, "composite": true, "generated": true,
	"always": true, "identity": true, "temporary": true, "temp": true,
	"view": true, "materialized": true, "sequence": true, "grant": true,
	"revoke": true, "to": true, "public": true, "distinct": true,
	"group": true, "by": true, "order": true, "having": true, "limit": true,
	"offset": true, "join": true, "left": true, "right": true, "inner": true,
	"outer": true, "union": true, "all": true, "case": true, "when": true,
	"then": true, "else": true,
}

// RemoveComments strips "--" line comments and "/* ... */" block comments,
// but never touches text inside a dollar-quoted string, so a function body
// containing "--" inside its dollar-quoted definition is preserved intact.
func RemoveComments(sql string) string {
	var out strings.Builder
	rest := sql
	for {
		loc := dollarTagRe.FindStringIndex(rest)
		if loc == nil {
			out.WriteString(stripComments(rest))
			break
		}
		tag := rest[loc[0]:loc[1]]
		closing := strings.Index(rest[loc[1]:], tag)
		if closing < 0 {
			out.WriteString(stripComments(rest))
			break
		}
		end := loc[1] + closing + len(tag)
		out.WriteString(stripComments(rest[:loc[0]]))
		out.WriteString(rest[loc[0]:end])
		rest = rest[end:]
	}
	return out.String()
}

func stripComments(s string) string {
	s = blockCommentRe.ReplaceAllString(s, "")
	s = lineCommentRe.ReplaceAllString(s, "")
	return s
}

// NormalizeForChecksum implements the normalization spec.md §4.C mandates:
// strip comments, collapse whitespace, and lowercase only the fixed
// keyword set — identifiers and string literals keep their original case.
func NormalizeForChecksum(sql string) string {
	stripped := RemoveComments(sql)
	collapsed := strings.TrimSpace(whitespaceRe.ReplaceAllString(stripped, " "))

	return wordRe.ReplaceAllStringFunc(collapsed, func(word string) string {
		if sqlKeywords[strings.ToLower(word)] {
			return strings.ToLower(word)
		}
		return word
	})
}

// Checksum returns the hex-encoded SHA-256 of the normalized SQL text.
// Two artifacts are "equal for deployment" iff their checksums match.
func Checksum(sql string) string {
	normalized := NormalizeForChecksum(sql)
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

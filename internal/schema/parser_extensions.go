package schema

import (
	"fmt"
	"strings"
)

// ParseExtension parses one extension file. The extension name comes from
// the filename stem; version and schema, if present, are given as
// "-- version: X" / "-- schema: X" comment lines in the file body.
func ParseExtension(fileStem, content string) Extension {
	ext := Extension{Name: fileStem}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "--") {
			continue
		}
		comment := strings.TrimSpace(strings.TrimPrefix(line, "--"))
		if v, ok := strings.CutPrefix(comment, "version:"); ok {
			ext.Version = strings.TrimSpace(v)
		} else if s, ok := strings.CutPrefix(comment, "schema:"); ok {
			ext.Schema = strings.TrimSpace(s)
		}
	}

	return ext
}

// BuildCreateExtensionSQL renders the CREATE EXTENSION statement for e.
func BuildCreateExtensionSQL(e Extension) string {
	sql := fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %q", e.Name)
	if e.Schema != "" {
		sql += fmt.Sprintf(" SCHEMA %q", e.Schema)
	}
	if e.Version != "" {
		sql += fmt.Sprintf(" VERSION '%s'", e.Version)
	}
	return sql
}

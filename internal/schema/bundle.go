package schema

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

// LoadBundle walks an extracted "postgresql/" tree at root and produces the
// Desired State it declares. Missing subdirectories are treated as empty.
// A duplicate logical name within one subdirectory, or any file that fails
// to parse, is reported as BundleMalformed.
func LoadBundle(root string) (*DesiredState, error) {
	desired := &DesiredState{}

	extFiles, err := readSQLDir(filepath.Join(root, "extensions"))
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, f := range extFiles {
		stem := strings.TrimSuffix(f.name, filepath.Ext(f.name))
		if seen[stem] {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "duplicate extension %q", stem)
		}
		seen[stem] = true
		desired.Extensions = append(desired.Extensions, ParseExtension(stem, f.content))
	}

	typeFiles, err := readSQLDir(filepath.Join(root, "types"))
	if err != nil {
		return nil, err
	}
	seen = map[string]bool{}
	for _, f := range typeFiles {
		td, err := ParseType(f.name, f.content)
		if err != nil {
			return nil, err
		}
		if seen[td.Name] {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "duplicate type %q", td.Name)
		}
		seen[td.Name] = true
		desired.Types = append(desired.Types, *td)
	}

	tableFiles, err := readSQLDir(filepath.Join(root, "tables"))
	if err != nil {
		return nil, err
	}
	seen = map[string]bool{}
	for _, f := range tableFiles {
		table, err := ParseTable(f.name, f.content)
		if err != nil {
			return nil, err
		}
		if seen[table.Name] {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "duplicate table %q", table.Name)
		}
		seen[table.Name] = true
		desired.Tables = append(desired.Tables, *table)
	}

	migrationFiles, err := readSQLDir(filepath.Join(root, "migrations"))
	if err != nil {
		return nil, err
	}
	seen = map[string]bool{}
	for _, f := range migrationFiles {
		if seen[f.name] {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "duplicate migration file %q", f.name)
		}
		seen[f.name] = true
		if strings.TrimSpace(f.content) == "" {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "migration %q is empty", f.name)
		}
		desired.Migrations = append(desired.Migrations, Migration{
			Filename: f.name,
			BodyText: strings.TrimSpace(f.content),
			Checksum: Checksum(f.content),
		})
	}

	functionFiles, err := readSQLDir(filepath.Join(root, "functions"))
	if err != nil {
		return nil, err
	}
	seen = map[string]bool{}
	for _, f := range functionFiles {
		fn, err := ParseFunction(f.name, f.content)
		if err != nil {
			return nil, err
		}
		key := fn.Signature.String()
		if seen[key] {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "duplicate function signature %q", key)
		}
		seen[key] = true
		desired.Functions = append(desired.Functions, *fn)
	}

	seederFiles, err := readSQLDir(filepath.Join(root, "seeders"))
	if err != nil {
		return nil, err
	}
	seen = map[string]bool{}
	for _, f := range seederFiles {
		table := strings.TrimSuffix(f.name, filepath.Ext(f.name))
		if seen[table] {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "duplicate seeder for table %q", table)
		}
		seen[table] = true
		if strings.TrimSpace(f.content) == "" {
			return nil, gatewayerr.Newf(gatewayerr.KindBundleMalformed, "seeder for %q is empty", table)
		}
		desired.Seeders = append(desired.Seeders, Seeder{
			Table:      table,
			Statements: strings.TrimSpace(f.content),
		})
	}

	return desired, nil
}

type sqlFile struct {
	name    string
	content string
}

// readSQLDir returns the .sql/.pssql/.pgsql files of dir in sorted
// filename order, or an empty slice if dir does not exist. Dotfiles and
// non-regular entries are skipped, matching the bundle-walking discipline
// the original extractor uses so migration ordering is deterministic.
func readSQLDir(dir string) ([]sqlFile, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "reading bundle directory "+dir)
	}

	names := make([]string, 0, len(entries))
	infoByName := map[string]os.DirEntry{}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".sql" && ext != ".pssql" && ext != ".pgsql" {
			continue
		}
		names = append(names, e.Name())
		infoByName[e.Name()] = e
	}
	sort.Strings(names)

	files := make([]sqlFile, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "reading bundle file "+name)
		}
		files = append(files, sqlFile{name: name, content: string(data)})
	}
	return files, nil
}

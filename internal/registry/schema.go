package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
)

// StoreSchema copies the bundle tree rooted at sourceDir into the
// platform's schema storage under the given name, overwriting any prior
// version. If the tree's content hash matches the previously stored
// version, no files are rewritten and changed is false.
func (r *Registry) StoreSchema(platform, schemaName, sourceDir string) (changed bool, err error) {
	if !r.IsRegistered(platform) {
		return false, gatewayerr.New(gatewayerr.KindPlatformNotFound, fmt.Sprintf("platform %q is not registered", platform))
	}

	hash, err := TreeHash(sourceDir)
	if err != nil {
		return false, gatewayerr.Wrap(gatewayerr.KindInternal, err, "hashing schema bundle")
	}

	schemaDir := r.schemaDir(platform, schemaName)
	recordPath := r.schemaRecordPath(platform, schemaName)

	if existing, err := readSchemaRecord(recordPath); err == nil && existing.ContentHash == hash {
		return false, r.AddSchema(platform, schemaName)
	}

	if err := os.RemoveAll(schemaDir); err != nil {
		return false, gatewayerr.Wrap(gatewayerr.KindInternal, err, "clearing previous schema version")
	}
	if err := copyTree(sourceDir, filepath.Join(schemaDir, "postgresql")); err != nil {
		return false, gatewayerr.Wrap(gatewayerr.KindInternal, err, "copying schema bundle")
	}

	record := SchemaRecord{Name: schemaName, ContentHash: hash, StoredAt: time.Now().UTC()}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return false, gatewayerr.Wrap(gatewayerr.KindInternal, err, "serializing schema record")
	}
	if err := writeFileAtomic(recordPath, data, 0o600); err != nil {
		return false, gatewayerr.Wrap(gatewayerr.KindInternal, err, "writing schema record")
	}

	if err := r.AddSchema(platform, schemaName); err != nil {
		return false, err
	}
	return true, nil
}

// SchemaBundlePath returns the on-disk "postgresql/" root for a stored
// schema, or an error if it hasn't been stored.
func (r *Registry) SchemaBundlePath(platform, schemaName string) (string, error) {
	dir := filepath.Join(r.schemaDir(platform, schemaName), "postgresql")
	if _, err := os.Stat(dir); err != nil {
		return "", gatewayerr.New(gatewayerr.KindInvalidRequest, fmt.Sprintf("schema %q not found for platform %q", schemaName, platform))
	}
	return dir, nil
}

func (r *Registry) schemaDir(platform, schemaName string) string {
	return filepath.Join(r.platformDir(platform), "schemas", schemaName)
}

func (r *Registry) schemaRecordPath(platform, schemaName string) string {
	return filepath.Join(r.schemaDir(platform, schemaName), "schema.json")
}

func readSchemaRecord(path string) (*SchemaRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rec SchemaRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o700)
		}
		return copyFile(path, target, info.Mode())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o700); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

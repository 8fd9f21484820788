package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/zalando/go-keyring"
)

const keyringService = "stonescriptdb-gateway"

// Registry is the durable platform and schema registry rooted at dataDir.
type Registry struct {
	dataDir string
	locks   *platformLocks
}

// New returns a Registry rooted at dataDir. dataDir is created lazily on
// first write.
func New(dataDir string) *Registry {
	return &Registry{dataDir: dataDir, locks: newPlatformLocks()}
}

func (r *Registry) platformDir(platform string) string {
	return filepath.Join(r.dataDir, platform)
}

func (r *Registry) platformJSONPath(platform string) string {
	return filepath.Join(r.platformDir(platform), "platform.json")
}

// IsRegistered reports whether platform has a platform.json on disk.
func (r *Registry) IsRegistered(platform string) bool {
	_, err := os.Stat(r.platformJSONPath(platform))
	return err == nil
}

// RegisterPlatform creates a new platform, optionally with dedicated
// database credentials. If storeInKeyring is true, password is written to
// the OS keyring instead of platform.json.
func (r *Registry) RegisterPlatform(platform, dbUser, dbPassword string, storeInKeyring bool) (*PlatformInfo, error) {
	if err := ValidatePlatformName(platform); err != nil {
		return nil, err
	}

	unlock, err := r.lockPlatform(platform)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if r.IsRegistered(platform) {
		return nil, gatewayerr.New(gatewayerr.KindPlatformAlreadyExists,
			fmt.Sprintf("platform %q is already registered", platform))
	}

	if err := os.MkdirAll(r.platformDir(platform), 0o700); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "creating platform directory")
	}

	info := newPlatformInfo(platform)
	if dbUser != "" {
		info.DBUser = dbUser
		if storeInKeyring {
			if err := keyring.Set(keyringService, platform, dbPassword); err != nil {
				return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "storing credentials in keyring")
			}
			info.StoreInKeyring = true
		} else {
			info.DBPassword = dbPassword
		}
	}

	if err := r.saveLocked(info); err != nil {
		return nil, err
	}
	return info, nil
}

// GetPlatformInfo reads a platform's record.
func (r *Registry) GetPlatformInfo(platform string) (*PlatformInfo, error) {
	path := r.platformJSONPath(platform)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, gatewayerr.New(gatewayerr.KindPlatformNotFound, fmt.Sprintf("platform %q is not registered", platform))
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "reading platform.json")
	}
	var info PlatformInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "parsing platform.json")
	}
	return &info, nil
}

// ResolvedCredentials returns the platform's dedicated database
// credentials, reading the password from the keyring if StoreInKeyring is
// set. Returns ("", "", false) if the platform has no dedicated
// credentials at all.
func (r *Registry) ResolvedCredentials(platform string) (user, password string, ok bool, err error) {
	info, err := r.GetPlatformInfo(platform)
	if err != nil {
		return "", "", false, err
	}
	if info.DBUser == "" {
		return "", "", false, nil
	}
	if info.StoreInKeyring {
		password, kerr := keyring.Get(keyringService, platform)
		if kerr != nil {
			return "", "", false, gatewayerr.Wrap(gatewayerr.KindInternal, kerr, "reading credentials from keyring")
		}
		return info.DBUser, password, true, nil
	}
	return info.DBUser, info.DBPassword, true, nil
}

// AddSchema records that schemaName has been stored for platform.
func (r *Registry) AddSchema(platform, schemaName string) error {
	unlock, err := r.lockPlatform(platform)
	if err != nil {
		return err
	}
	defer unlock()

	info, err := r.GetPlatformInfo(platform)
	if err != nil {
		return err
	}
	for _, s := range info.Schemas {
		if s == schemaName {
			return nil
		}
	}
	info.Schemas = append(info.Schemas, schemaName)
	return r.saveLocked(info)
}

// RecordDatabase records that databaseName was created for platform from
// schemaName.
func (r *Registry) RecordDatabase(platform, schemaName, databaseName string) error {
	unlock, err := r.lockPlatform(platform)
	if err != nil {
		return err
	}
	defer unlock()

	info, err := r.GetPlatformInfo(platform)
	if err != nil {
		return err
	}
	if info.Databases == nil {
		info.Databases = map[string]DatabaseRecord{}
	}
	info.Databases[databaseName] = DatabaseRecord{
		SchemaName:   schemaName,
		DatabaseName: databaseName,
		CreatedAt:    time.Now().UTC(),
	}
	return r.saveLocked(info)
}

// DeletePlatform removes a platform's registry record, refusing when the
// platform still has recorded databases — a platform is only deletable
// once every database recorded under it has been dropped and its
// removal recorded elsewhere (RecordDatabase has no inverse; a dropped
// database is expected to be forgotten by never being recorded again
// after a drop, which is out of this registry's scope to enforce).
func (r *Registry) DeletePlatform(platform string) error {
	unlock, err := r.lockPlatform(platform)
	if err != nil {
		return err
	}
	defer unlock()

	info, err := r.GetPlatformInfo(platform)
	if err != nil {
		return err
	}
	if len(info.Databases) > 0 {
		return gatewayerr.Newf(gatewayerr.KindPlatformNotEmpty,
			"platform %q still has %d recorded database(s); drop them before deleting the platform", platform, len(info.Databases))
	}

	if info.StoreInKeyring {
		if err := keyring.Delete(keyringService, platform); err != nil && err != keyring.ErrNotFound {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "removing credentials from keyring")
		}
	}

	if err := os.RemoveAll(r.platformDir(platform)); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInternal, err, "removing platform directory")
	}
	return nil
}

// ListPlatforms returns every registered platform name, sorted.
func (r *Registry) ListPlatforms() ([]string, error) {
	entries, err := os.ReadDir(r.dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "reading data directory")
	}

	var platforms []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.dataDir, e.Name(), "platform.json")); err == nil {
			platforms = append(platforms, e.Name())
		}
	}
	sort.Strings(platforms)
	return platforms, nil
}

// ListDatabases returns a platform's database records, optionally filtered
// by schema name, sorted by database name.
func (r *Registry) ListDatabases(platform string, schemaFilter string) ([]DatabaseRecord, error) {
	info, err := r.GetPlatformInfo(platform)
	if err != nil {
		return nil, err
	}
	var out []DatabaseRecord
	for _, db := range info.Databases {
		if schemaFilter != "" && db.SchemaName != schemaFilter {
			continue
		}
		out = append(out, db)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatabaseName < out[j].DatabaseName })
	return out, nil
}

func (r *Registry) lockPlatform(platform string) (func(), error) {
	inProcess := r.locks.forPlatform(platform)
	inProcess.Lock()

	fl, err := acquireFileLock(r.platformDir(platform))
	if err != nil {
		inProcess.Unlock()
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "acquiring platform lock")
	}

	return func() {
		fl.release()
		inProcess.Unlock()
	}, nil
}

// saveLocked writes info atomically (temp file + rename). Caller must
// already hold the platform's lock.
func (r *Registry) saveLocked(info *PlatformInfo) error {
	path := r.platformJSONPath(info.Name)
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInternal, err, "serializing platform info")
	}
	if err := writeFileAtomic(path, data, 0o600); err != nil {
		return gatewayerr.Wrap(gatewayerr.KindInternal, err, "writing platform.json")
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// TreeHash computes a stable hash over a directory tree's sorted relative
// paths and contents, used to detect a no-op schema re-upload.
func TreeHash(root string) (string, error) {
	var paths []string
	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		paths = append(paths, rel)
		return nil
	}); err != nil {
		return "", err
	}
	sort.Strings(paths)

	h := sha256.New()
	for _, rel := range paths {
		data, err := os.ReadFile(filepath.Join(root, rel))
		if err != nil {
			return "", err
		}
		h.Write([]byte(rel))
		h.Write([]byte{0})
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

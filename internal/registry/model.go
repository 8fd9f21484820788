// Package registry implements the on-disk platform and schema registry:
// platform.json records, per-platform stored schema bundles, and the
// file locking that guards concurrent mutation of a single platform.
package registry

import "time"

// PlatformInfo is the durable record stored at
// "<dataDir>/<platform>/platform.json".
type PlatformInfo struct {
	Name         string                    `json:"name"`
	RegisteredAt time.Time                 `json:"registered_at"`
	Schemas      []string                  `json:"schemas"`
	Databases    map[string]DatabaseRecord `json:"databases"`

	// DBUser/DBPassword hold plaintext dedicated credentials when the
	// platform was registered without StoreInKeyring. When
	// StoreInKeyring is true these are empty and the password lives in
	// the OS keyring under (service=keyringService, user=Name).
	DBUser         string `json:"db_user,omitempty"`
	DBPassword     string `json:"db_password,omitempty"`
	StoreInKeyring bool   `json:"store_in_keyring,omitempty"`
}

// DatabaseRecord tracks one database created under a platform.
type DatabaseRecord struct {
	SchemaName   string    `json:"schema_name"`
	DatabaseName string    `json:"database_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// SchemaRecord is per-named-bundle metadata stored alongside the extracted
// tree at "<dataDir>/<platform>/schemas/<name>/".
type SchemaRecord struct {
	Name        string    `json:"name"`
	StoredAt    time.Time `json:"stored_at"`
	ContentHash string    `json:"content_hash"`
}

func newPlatformInfo(name string) *PlatformInfo {
	return &PlatformInfo{
		Name:         name,
		RegisteredAt: time.Now().UTC(),
		Schemas:      []string{},
		Databases:    map[string]DatabaseRecord{},
	}
}

package schema

import (
	"context"
	"encoding/json"
	"time"
)

const changelogTable = "_stonescriptdb_gateway_changelog"

// ChangeType classifies one recorded schema change.
type ChangeType string

const (
	ChangeMigrationApplied   ChangeType = "migration_applied"
	ChangeFunctionDeployed   ChangeType = "function_deployed"
	ChangeFunctionDropped    ChangeType = "function_dropped"
	ChangeFunctionSkipped    ChangeType = "function_skipped"
	ChangeExtensionInstalled ChangeType = "extension_installed"
	ChangeExtensionSkipped   ChangeType = "extension_skipped"
	ChangeSeederRun          ChangeType = "seeder_run"
	ChangeSeederSkipped      ChangeType = "seeder_skipped"
	ChangeSeederValidated    ChangeType = "seeder_validated"
)

// ChangelogEntry is one row to be written to the changelog table.
type ChangelogEntry struct {
	ChangeType ChangeType
	ObjectName string
	Details    map[string]any
	Forced     bool
}

// ChangelogRecord is one row read back from the changelog table.
type ChangelogRecord struct {
	ID         int
	ChangeType string
	ObjectName string
	Details    map[string]any
	Forced     bool
	ExecutedAt time.Time
}

// ChangelogManager records and reads back every reconciliation action
// taken against a database, for audit and debugging.
type ChangelogManager struct{}

// NewChangelogManager builds a ChangelogManager.
func NewChangelogManager() *ChangelogManager {
	return &ChangelogManager{}
}

// EnsureChangelogTable creates the changelog table and its indexes if
// they do not already exist.
func (c *ChangelogManager) EnsureChangelogTable(ctx context.Context, pool Execer) error {
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS `+changelogTable+` (
			id SERIAL PRIMARY KEY,
			change_type TEXT NOT NULL,
			object_name TEXT NOT NULL,
			change_detail JSONB,
			forced BOOLEAN DEFAULT FALSE,
			executed_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_changelog_change_type ON ` + changelogTable + ` (change_type)`,
		`CREATE INDEX IF NOT EXISTS idx_changelog_object_name ON ` + changelogTable + ` (object_name)`,
		`CREATE INDEX IF NOT EXISTS idx_changelog_executed_at ON ` + changelogTable + ` (executed_at DESC)`,
	} {
		// Index creation failures beyond "already exists" surface on the
		// next real write, so they are not fatal to provisioning.
		_, _ = pool.Exec(ctx, stmt)
	}

	return nil
}

// LogChange writes one changelog entry.
func (c *ChangelogManager) LogChange(ctx context.Context, pool Execer, entry ChangelogEntry) error {
	var detailJSON *string
	if entry.Details != nil {
		raw, err := json.Marshal(entry.Details)
		if err != nil {
			return err
		}
		s := string(raw)
		detailJSON = &s
	}

	_, err := pool.Exec(ctx, `
		INSERT INTO `+changelogTable+`
			(change_type, object_name, change_detail, forced)
		VALUES ($1, $2, $3::jsonb, $4)
	`, string(entry.ChangeType), entry.ObjectName, detailJSON, entry.Forced)
	return err
}

// LogMigration records a migration_applied entry.
func (c *ChangelogManager) LogMigration(ctx context.Context, pool Execer, migrationName, checksum string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeMigrationApplied,
		ObjectName: migrationName,
		Details:    map[string]any{"checksum": checksum},
	})
}

// LogFunctionDeployed records a function_deployed entry.
func (c *ChangelogManager) LogFunctionDeployed(ctx context.Context, pool Execer, functionName, signature, checksum, sourceFile string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeFunctionDeployed,
		ObjectName: functionName,
		Details: map[string]any{
			"signature":   signature,
			"checksum":    checksum,
			"source_file": sourceFile,
		},
	})
}

// LogFunctionDropped records a function_dropped entry, e.g. when a
// signature change requires dropping the old overload before deploying
// the new one.
func (c *ChangelogManager) LogFunctionDropped(ctx context.Context, pool Execer, functionName, oldSignature, reason string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeFunctionDropped,
		ObjectName: functionName,
		Details: map[string]any{
			"old_signature": oldSignature,
			"reason":        reason,
		},
	})
}

// LogFunctionSkipped records a function_skipped entry for an unchanged
// checksum.
func (c *ChangelogManager) LogFunctionSkipped(ctx context.Context, pool Execer, functionName string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{ChangeType: ChangeFunctionSkipped, ObjectName: functionName})
}

// LogExtensionInstalled records an extension_installed entry.
func (c *ChangelogManager) LogExtensionInstalled(ctx context.Context, pool Execer, extensionName, version, schemaName string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeExtensionInstalled,
		ObjectName: extensionName,
		Details: map[string]any{
			"version": version,
			"schema":  schemaName,
		},
	})
}

// LogExtensionSkipped records an extension_skipped entry for an already
// installed extension.
func (c *ChangelogManager) LogExtensionSkipped(ctx context.Context, pool Execer, extensionName string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{ChangeType: ChangeExtensionSkipped, ObjectName: extensionName})
}

// LogSeederRun records a seeder_run entry.
func (c *ChangelogManager) LogSeederRun(ctx context.Context, pool Execer, tableName string, inserted, skipped int) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeSeederRun,
		ObjectName: tableName,
		Details: map[string]any{
			"inserted": inserted,
			"skipped":  skipped,
		},
	})
}

// LogSeederSkipped records a seeder_skipped entry for a non-empty table.
func (c *ChangelogManager) LogSeederSkipped(ctx context.Context, pool Execer, tableName, reason string) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeSeederSkipped,
		ObjectName: tableName,
		Details:    map[string]any{"reason": reason},
	})
}

// LogSeederValidated records a seeder_validated entry comparing the
// expected row count against what was actually found.
func (c *ChangelogManager) LogSeederValidated(ctx context.Context, pool Execer, tableName string, expected, found int) error {
	return c.LogChange(ctx, pool, ChangelogEntry{
		ChangeType: ChangeSeederValidated,
		ObjectName: tableName,
		Details: map[string]any{
			"expected": expected,
			"found":    found,
		},
	})
}

// GetRecentEntries returns the most recent changelog entries, newest
// first.
func (c *ChangelogManager) GetRecentEntries(ctx context.Context, pool Execer, limit int) ([]ChangelogRecord, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, change_type, object_name, change_detail, forced, executed_at
		FROM `+changelogTable+`
		ORDER BY executed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChangelogRows(rows)
}

// GetEntriesByType returns the most recent changelog entries of one
// change type, newest first.
func (c *ChangelogManager) GetEntriesByType(ctx context.Context, pool Execer, changeType ChangeType, limit int) ([]ChangelogRecord, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, change_type, object_name, change_detail, forced, executed_at
		FROM `+changelogTable+`
		WHERE change_type = $1
		ORDER BY executed_at DESC
		LIMIT $2
	`, string(changeType), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanChangelogRows(rows)
}

func scanChangelogRows(rows changelogRowScanner) ([]ChangelogRecord, error) {
	var records []ChangelogRecord
	for rows.Next() {
		var rec ChangelogRecord
		var detailJSON *string
		if err := rows.Scan(&rec.ID, &rec.ChangeType, &rec.ObjectName, &detailJSON, &rec.Forced, &rec.ExecutedAt); err != nil {
			return nil, err
		}
		if detailJSON != nil {
			var details map[string]any
			if err := json.Unmarshal([]byte(*detailJSON), &details); err == nil {
				rec.Details = details
			}
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// changelogRowScanner is the subset of pgx.Rows scanChangelogRows needs.
type changelogRowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

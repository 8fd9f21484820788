package reconciler

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/schema"
)

// Tx is the subset of pgx.Tx a migration transaction needs.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TxPool is the subset of *pgxpool.Pool the reconciler needs: direct
// execution for phases that need no transaction, and Begin for the
// migration phase's per-file transactions.
type TxPool interface {
	schema.Execer
	Begin(ctx context.Context) (Tx, error)
}

// poolAdapter adapts *pgxpool.Pool to TxPool: Begin's declared return type
// is the concrete pgx.Tx interface, which already satisfies Tx structurally,
// but Go requires the method signature to name Tx exactly for poolAdapter
// itself to satisfy TxPool.
type poolAdapter struct{ *pgxpool.Pool }

func (p poolAdapter) Begin(ctx context.Context) (Tx, error) {
	return p.Pool.Begin(ctx)
}

// NewTxPool wraps a live pgxpool.Pool for use with Reconciler.Apply.
func NewTxPool(pool *pgxpool.Pool) TxPool { return poolAdapter{pool} }

// poolLockAcquirer adapts *pgxpool.Pool to LockAcquirer the same way.
type poolLockAcquirer struct{ *pgxpool.Pool }

func (p poolLockAcquirer) Acquire(ctx context.Context) (LockConn, error) {
	return p.Pool.Acquire(ctx)
}

// NewLockAcquirer wraps a live pgxpool.Pool for use with AdvisoryLock.
func NewLockAcquirer(pool *pgxpool.Pool) LockAcquirer { return poolLockAcquirer{pool} }

// Reconciler drives one database's declarative bundle to the fixed
// five-phase plan described by the gateway's schema reconciliation design.
type Reconciler struct {
	differ    *schema.Differ
	seeder    *schema.SeederRunner
	changelog *schema.ChangelogManager
}

// New builds a Reconciler.
func New() *Reconciler {
	return &Reconciler{
		differ:    schema.NewDiffer(),
		seeder:    schema.NewSeederRunner(),
		changelog: schema.NewChangelogManager(),
	}
}

// BuildPlan reads the database's current state, computes the table diff,
// and classifies every difference between it and the desired bundle into
// the ordered plan Apply will execute. A tracked type whose checksum
// differs from the bundle's is added to the diff as an incompatible
// change. Loading and parsing the bundle (schema.LoadBundle) happen
// before this is called; deciding from the returned Plan's diff whether
// it is Blocked is left to the caller.
func (r *Reconciler) BuildPlan(ctx context.Context, pool schema.Execer, desired *schema.DesiredState, seeders []*schema.SeederFile, freshDeploy bool) (*Plan, error) {
	installedExtensions, err := schema.ListInstalledExtensions(ctx, pool)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "listing installed extensions")
	}

	trackedTypes, err := GetTrackedTypes(ctx, pool)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "reading tracked types")
	}

	current, err := r.differ.QueryCurrentSchema(ctx, pool)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "querying current table schema")
	}
	diff := r.differ.Diff(desired.Tables, current)
	trackedTypeChecksums := make(map[string]string, len(trackedTypes))
	for _, t := range trackedTypes {
		trackedTypeChecksums[t.Name] = t.Checksum
	}
	for _, t := range desired.Types {
		if sum, ok := trackedTypeChecksums[t.Name]; ok && sum != t.Checksum {
			diff.IncompatibleChanges = append(diff.IncompatibleChanges, schema.SchemaChange{
				Table:         t.Name,
				ChangeType:    "modify_type",
				Compatibility: schema.CompatIncompatible,
				Reason:        "Custom type definition changed; alter it with a migration",
			})
		}
	}

	applied, err := GetAppliedMigrations(ctx, pool)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "reading applied migrations")
	}
	if err := detectCorruptedHistory(desired.Migrations, applied); err != nil {
		return nil, err
	}
	pendingMigrations, err := planMigrations(desired.Migrations, applied)
	if err != nil {
		return nil, err
	}

	trackedFunctions, err := GetTrackedFunctions(ctx, pool)
	if err != nil {
		return nil, gatewayerr.Wrap(gatewayerr.KindInternal, err, "reading tracked functions")
	}

	return &Plan{
		Diff:                diff,
		ExtensionsToInstall: planExtensions(desired.Extensions, installedExtensions),
		TypesToCreate:       planTypes(desired.Types, trackedTypes),
		MigrationsToApply:   pendingMigrations,
		Functions:           planFunctions(desired.Functions, trackedFunctions),
		Seeders:             seeders,
		FreshDeploy:         freshDeploy,
		Tables:              desired.Tables,
	}, nil
}

// detectCorruptedHistory reports CorruptedHistory when a migration filename
// already recorded as applied no longer matches the checksum of the file
// the bundle now declares for that name — the tracking table and the
// bundle have diverged in a way no automatic plan can resolve.
func detectCorruptedHistory(desired []schema.Migration, applied []schema.ObservedMigration) error {
	desiredByName := make(map[string]schema.Migration, len(desired))
	for _, m := range desired {
		desiredByName[m.Filename] = m
	}
	for _, a := range applied {
		if d, ok := desiredByName[a.Filename]; ok && d.Checksum != a.Checksum {
			return gatewayerr.Newf(gatewayerr.KindCorruptedHistory,
				"migration %q was applied with checksum %s but the bundle now declares checksum %s",
				a.Filename, a.Checksum, d.Checksum)
		}
	}
	return nil
}

// Apply executes a Plan's phases in the fixed order: extensions, types,
// tables/migrations, functions, seeders. forced indicates the caller
// retried a Blocked plan with force=true; it is recorded on the
// extension, type and migration changelog rows so a later audit can see
// which changes bypassed a data-loss block. Function and seeder rows are
// written through the ChangelogManager helpers and always record
// forced=false.
func (r *Reconciler) Apply(ctx context.Context, txPool TxPool, database string, plan *Plan, forced bool) (*Result, error) {
	result := &Result{Phase: PhaseApplying, Diff: plan.Diff}

	if err := EnsureTrackingTables(ctx, txPool); err != nil {
		return result, gatewayerr.Wrap(gatewayerr.KindInternal, err, "provisioning tracking tables").WithDatabase(database)
	}
	if err := EnsureMigrationsTable(ctx, txPool); err != nil {
		return result, gatewayerr.Wrap(gatewayerr.KindInternal, err, "provisioning migrations table").WithDatabase(database)
	}
	if err := r.changelog.EnsureChangelogTable(ctx, txPool); err != nil {
		return result, gatewayerr.Wrap(gatewayerr.KindInternal, err, "provisioning changelog table").WithDatabase(database)
	}

	if err := r.applyExtensions(ctx, txPool, plan.ExtensionsToInstall, forced, result); err != nil {
		result.Phase = PhaseFailed
		return result, err
	}

	if err := r.applyTypes(ctx, txPool, plan.TypesToCreate, forced, result); err != nil {
		result.Phase = PhaseFailed
		return result, err
	}

	if err := r.applyMigrations(ctx, txPool, database, plan.MigrationsToApply, forced, result); err != nil {
		result.Phase = PhaseFailed
		return result, err
	}

	for _, table := range plan.Tables {
		if err := RecordTable(ctx, txPool, table.Name, table.Checksum); err != nil {
			result.Phase = PhaseFailed
			return result, gatewayerr.Wrap(gatewayerr.KindInternal, err, "recording table checksum for "+table.Name).WithDatabase(database)
		}
	}

	if err := r.applyFunctions(ctx, txPool, plan.Functions, forced, result); err != nil {
		result.Phase = PhaseFailed
		return result, err
	}

	if err := r.applySeeders(ctx, txPool, plan.Seeders, plan.FreshDeploy, result); err != nil {
		result.Phase = PhaseFailed
		return result, err
	}

	result.Phase = PhaseApplied
	return result, nil
}

func (r *Reconciler) applyExtensions(ctx context.Context, pool schema.Execer, extensions []schema.Extension, forced bool, result *Result) error {
	for _, ext := range extensions {
		stmt := fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS %q`, ext.Name)
		if ext.Schema != "" {
			stmt += fmt.Sprintf(` SCHEMA %q`, ext.Schema)
		}
		if ext.Version != "" {
			stmt += fmt.Sprintf(` VERSION '%s'`, ext.Version)
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "creating extension "+ext.Name)
		}
		if err := r.changelog.LogChange(ctx, pool, schema.ChangelogEntry{
			ChangeType: schema.ChangeExtensionInstalled,
			ObjectName: ext.Name,
			Details:    map[string]any{"version": ext.Version, "schema": ext.Schema},
			Forced:     forced,
		}); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging extension install")
		}
		result.ExtensionsInstalled = append(result.ExtensionsInstalled, ext.Name)
	}
	return nil
}

func (r *Reconciler) applyTypes(ctx context.Context, pool schema.Execer, types []schema.TypeDef, forced bool, result *Result) error {
	for _, td := range types {
		if _, err := pool.Exec(ctx, td.BodyText); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "creating type "+td.Name)
		}
		if err := RecordType(ctx, pool, td.Name, td.Checksum); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "recording type checksum for "+td.Name)
		}
		if err := r.changelog.LogChange(ctx, pool, schema.ChangelogEntry{
			ChangeType: "type_deployed",
			ObjectName: td.Name,
			Details:    map[string]any{"checksum": td.Checksum, "kind": string(td.Kind)},
			Forced:     forced,
		}); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging type deploy")
		}
		result.TypesDeployed = append(result.TypesDeployed, td.Name)
	}
	return nil
}

func (r *Reconciler) applyMigrations(ctx context.Context, txPool TxPool, database string, migrations []schema.Migration, forced bool, result *Result) error {
	for _, m := range migrations {
		tx, err := txPool.Begin(ctx)
		if err != nil {
			return gatewayerr.Wrap(gatewayerr.KindMigrationFailed, err, "beginning transaction for "+m.Filename).WithDatabase(database)
		}

		if _, err := tx.Exec(ctx, m.BodyText); err != nil {
			_ = tx.Rollback(ctx)
			return gatewayerr.Wrap(gatewayerr.KindMigrationFailed, err, "executing migration "+m.Filename).WithDatabase(database)
		}

		if _, err := tx.Exec(ctx, `INSERT INTO _stonescriptdb_gateway_migrations (migration_file, checksum) VALUES ($1, $2)`, m.Filename, m.Checksum); err != nil {
			_ = tx.Rollback(ctx)
			return gatewayerr.Wrap(gatewayerr.KindMigrationFailed, err, "recording migration "+m.Filename).WithDatabase(database)
		}

		if err := tx.Commit(ctx); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindMigrationFailed, err, "committing migration "+m.Filename).WithDatabase(database)
		}

		if err := r.changelog.LogChange(ctx, txPool, schema.ChangelogEntry{
			ChangeType: schema.ChangeMigrationApplied,
			ObjectName: m.Filename,
			Details:    map[string]any{"checksum": m.Checksum},
			Forced:     forced,
		}); err != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging migration "+m.Filename)
		}
		result.MigrationsApplied = append(result.MigrationsApplied, m.Filename)
	}
	return nil
}

func (r *Reconciler) applyFunctions(ctx context.Context, pool schema.Execer, planned []PlannedFunction, forced bool, result *Result) error {
	for _, pf := range planned {
		switch pf.Action {
		case FunctionDeploy:
			if _, err := pool.Exec(ctx, pf.Function.BodyText); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindFunctionDeployFailed, err, "deploying function "+pf.Signature.Name)
			}
			if err := RecordFunction(ctx, pool, pf.Signature, pf.Function.Checksum); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "recording function checksum for "+pf.Signature.Name)
			}
			if err := r.changelog.LogFunctionDeployed(ctx, pool, pf.Signature.Name, pf.Signature.String(), pf.Function.Checksum, ""); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging function deploy")
			}
			result.FunctionsDeployed = append(result.FunctionsDeployed, pf.Signature.String())

		case FunctionReplace:
			if _, err := pool.Exec(ctx, pf.Function.BodyText); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindFunctionDeployFailed, err, "replacing function "+pf.Signature.Name)
			}
			if err := RecordFunction(ctx, pool, pf.Signature, pf.Function.Checksum); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "recording function checksum for "+pf.Signature.Name)
			}
			if err := r.changelog.LogFunctionDeployed(ctx, pool, pf.Signature.Name, pf.Signature.String(), pf.Function.Checksum, ""); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging function replace")
			}
			result.FunctionsUpdated = append(result.FunctionsUpdated, pf.Signature.String())

		case FunctionDropOldCreate, FunctionDrop:
			stmt := fmt.Sprintf(`DROP FUNCTION IF EXISTS %s(%s)`, pf.Signature.Name, joinParamTypes(pf.Signature.ParamTypes))
			if _, err := pool.Exec(ctx, stmt); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindFunctionDeployFailed, err, "dropping function "+pf.Signature.Name)
			}
			if err := DeleteTrackedFunction(ctx, pool, pf.Signature); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "deleting function tracking row for "+pf.Signature.Name)
			}
			reason := "removed from bundle"
			if pf.Action == FunctionDropOldCreate {
				reason = "signature changed"
			}
			if err := r.changelog.LogFunctionDropped(ctx, pool, pf.Signature.Name, pf.Signature.String(), reason); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging function drop")
			}
			result.FunctionsDropped = append(result.FunctionsDropped, pf.Signature.String())

		case FunctionSkip:
			if err := r.changelog.LogFunctionSkipped(ctx, pool, pf.Signature.Name); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging function skip")
			}
			result.FunctionsSkipped = append(result.FunctionsSkipped, pf.Signature.String())
		}
	}
	return nil
}

func (r *Reconciler) applySeeders(ctx context.Context, pool schema.Execer, seeders []*schema.SeederFile, freshDeploy bool, result *Result) error {
	if len(seeders) == 0 {
		return nil
	}

	if freshDeploy {
		runs, err := r.seeder.RunSeedersOnRegister(ctx, pool, seeders)
		if err != nil {
			return err
		}
		for _, run := range runs {
			if err := r.changelog.LogSeederRun(ctx, pool, run.Table, run.Inserted, run.Skipped); err != nil {
				return gatewayerr.Wrap(gatewayerr.KindInternal, err, "logging seeder run for "+run.Table)
			}
		}
		result.SeederRuns = runs
		return nil
	}

	validations, err := r.seeder.ValidateSeeders(ctx, pool, seeders)
	for _, v := range validations {
		if logErr := r.changelog.LogSeederValidated(ctx, pool, v.Table, v.Expected, v.Found); logErr != nil {
			return gatewayerr.Wrap(gatewayerr.KindInternal, logErr, "logging seeder validation for "+v.Table)
		}
	}
	result.SeederValidations = validations
	if err != nil {
		return err
	}
	return nil
}

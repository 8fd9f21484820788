package gatewayapi

import (
	"context"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/reconciler"
	"github.com/stonescriptdb/gateway/internal/schema"
)

// asGatewayErr normalizes any error into a *gatewayerr.Error, wrapping
// anything that isn't already one instead of leaking a bare error out of
// the boundary functions below.
func asGatewayErr(err error) *gatewayerr.Error {
	if err == nil {
		return nil
	}
	if gerr, ok := gatewayerr.As(err); ok {
		return gerr
	}
	return gatewayerr.Wrap(gatewayerr.KindInternal, err, "unexpected error")
}

// loadSeederFiles parses every seeder the bundle declares into the record
// form the reconciler and seeder runner operate on.
func loadSeederFiles(seeders []schema.Seeder) ([]*schema.SeederFile, *gatewayerr.Error) {
	files := make([]*schema.SeederFile, 0, len(seeders))
	for _, s := range seeders {
		sf, err := schema.ParseSeederFile(s.Table, s.Statements)
		if err != nil {
			return nil, gatewayerr.Wrap(gatewayerr.KindBundleMalformed, err, "parsing seeder for table "+s.Table)
		}
		if sf == nil {
			continue
		}
		files = append(files, sf)
	}
	return files, nil
}

// blockedErr builds the SchemaIncompatible/SchemaDataLoss error a blocked
// plan returns, carrying every bucket of the diff as response context so
// the caller can render "dataloss_changes"/"incompatible_changes" without
// re-deriving them.
func blockedErr(kind gatewayerr.Kind, database string, diff *schema.SchemaDiff) *gatewayerr.Error {
	return gatewayerr.Newf(kind, "schema changes for %q require review before they can be applied", database).
		WithDatabase(database).
		WithContext("safe_changes", diff.SafeChanges).
		WithContext("dataloss_changes", diff.DataLossChanges).
		WithContext("incompatible_changes", diff.IncompatibleChanges)
}

// reconcileDatabase runs the full Loaded -> Parsed -> Diffed ->
// (Blocked|Planned) -> Applying -> (Applied|Failed) state machine for one
// bundle against one already-created database. freshDeploy controls
// whether seeders run unconditionally (register path) or are only
// validated (reconcile path); force allows a plan carrying only
// data-loss changes through. Incompatible changes always block,
// regardless of force.
func (s *Server) reconcileDatabase(ctx context.Context, database, bundleDir string, freshDeploy, force bool) (*reconciler.Result, *gatewayerr.Error) {
	desired, err := schema.LoadBundle(bundleDir)
	if err != nil {
		return nil, asGatewayErr(err).WithDatabase(database)
	}

	seeders, gerr := loadSeederFiles(desired.Seeders)
	if gerr != nil {
		return nil, gerr.WithDatabase(database)
	}

	pool, err := s.pools.GetPool(ctx, database)
	if err != nil {
		return nil, asGatewayErr(err).WithDatabase(database)
	}

	release, err := reconciler.AdvisoryLock(ctx, reconciler.NewLockAcquirer(pool), database)
	if err != nil {
		return nil, asGatewayErr(err).WithDatabase(database)
	}
	defer release()

	plan, err := s.reconciler.BuildPlan(ctx, pool, desired, seeders, freshDeploy)
	if err != nil {
		return nil, asGatewayErr(err).WithDatabase(database)
	}

	if !plan.Diff.IsSafe() {
		if len(plan.Diff.IncompatibleChanges) > 0 {
			return nil, blockedErr(gatewayerr.KindSchemaIncompatible, database, plan.Diff)
		}
		if !force {
			return nil, blockedErr(gatewayerr.KindSchemaDataLoss, database, plan.Diff)
		}
	}

	result, err := s.reconciler.Apply(ctx, reconciler.NewTxPool(pool), database, plan, force)
	if err != nil {
		return result, asGatewayErr(err).WithDatabase(database)
	}
	return result, nil
}

// summarizeDiff renders the schema_validation summary object every
// migrate-shaped response carries.
func summarizeDiff(diff *schema.SchemaDiff) SchemaValidationSummary {
	if diff == nil {
		return SchemaValidationSummary{}
	}
	return SchemaValidationSummary{
		SafeChanges:         len(diff.SafeChanges),
		DataLossChanges:     len(diff.DataLossChanges),
		IncompatibleChanges: len(diff.IncompatibleChanges),
	}
}

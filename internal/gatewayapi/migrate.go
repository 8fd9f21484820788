package gatewayapi

import (
	"context"
	"time"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

// MigrateRequest is the decoded body of POST /migrate. TenantID is a
// pointer: nil means "migrate every database beginning with
// <platform>_" (the "all tenants" entry point); a non-nil value
// (including the empty string or the literal "main") targets exactly one
// database, the platform's main database or a named tenant's.
type MigrateRequest struct {
	Platform   string
	TenantID   *string
	SchemaPath string
	Force      bool
}

// DatabaseOutcome reports one database's result within a multi-database
// migrate.
type DatabaseOutcome struct {
	Database string `json:"database"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// SeederValidationOutcome reports one seeder's reconcile-time validation.
type SeederValidationOutcome struct {
	Table    string `json:"table"`
	Expected int    `json:"expected"`
	Found    int    `json:"found"`
}

// SchemaValidationSummary is the differ's three change buckets, counted.
type SchemaValidationSummary struct {
	SafeChanges         int `json:"safe_changes"`
	DataLossChanges     int `json:"dataloss_changes"`
	IncompatibleChanges int `json:"incompatible_changes"`
}

// MigrateResponse is the success body of POST /migrate, POST /v2/migrate.
// Outcomes is only populated for the "all tenants" path.
type MigrateResponse struct {
	Status            string                    `json:"status"`
	DatabasesUpdated  []string                  `json:"databases_updated"`
	MigrationsApplied int                       `json:"migrations_applied"`
	FunctionsUpdated  int                       `json:"functions_updated"`
	FunctionsSkipped  int                       `json:"functions_skipped"`
	SeederValidations []SeederValidationOutcome `json:"seeder_validations"`
	SchemaValidation  SchemaValidationSummary   `json:"schema_validation"`
	ExecutionTimeMs   int64                     `json:"execution_time_ms"`
	Outcomes          []DatabaseOutcome         `json:"outcomes,omitempty"`
}

// Migrate reconciles an existing database (or, with TenantID nil, every
// existing database of a platform) against the bundle at SchemaPath.
func (s *Server) Migrate(ctx context.Context, req MigrateRequest) (*MigrateResponse, *gatewayerr.Error) {
	start := time.Now()

	if err := registry.ValidatePlatformName(req.Platform); err != nil {
		return nil, asGatewayErr(err)
	}

	if req.TenantID == nil {
		return s.migrateAllTenants(ctx, req.Platform, req.SchemaPath, req.Force, start)
	}

	tenantID := *req.TenantID
	if tenantID != "" && tenantID != "main" {
		if err := registry.ValidateTenantID(tenantID); err != nil {
			return nil, asGatewayErr(err)
		}
	}

	database := s.router.DatabaseName(req.Platform, tenantID)
	resp, _, gerr := s.migrateOne(ctx, database, req.SchemaPath, req.Force)
	if gerr != nil {
		return nil, gerr
	}
	resp.ExecutionTimeMs = time.Since(start).Milliseconds()
	return resp, nil
}

// MigrateV2Request is the decoded body of POST /v2/migrate: the same
// operation as Migrate, but the bundle is resolved from a previously
// stored named schema rather than uploaded fresh.
type MigrateV2Request struct {
	Platform   string
	TenantID   *string
	SchemaName string
	Force      bool
}

// MigrateV2 resolves SchemaName to its stored bundle path and delegates to
// Migrate.
func (s *Server) MigrateV2(ctx context.Context, req MigrateV2Request) (*MigrateResponse, *gatewayerr.Error) {
	bundleDir, err := s.registry.SchemaBundlePath(req.Platform, req.SchemaName)
	if err != nil {
		return nil, asGatewayErr(err)
	}
	return s.Migrate(ctx, MigrateRequest{
		Platform:   req.Platform,
		TenantID:   req.TenantID,
		SchemaPath: bundleDir,
		Force:      req.Force,
	})
}

// migrateOne reconciles exactly one already-existing database.
func (s *Server) migrateOne(ctx context.Context, database, schemaPath string, force bool) (*MigrateResponse, bool, *gatewayerr.Error) {
	exists, err := s.pools.DatabaseExists(ctx, database)
	if err != nil {
		return nil, false, asGatewayErr(err).WithDatabase(database)
	}
	if !exists {
		return nil, false, gatewayerr.Newf(gatewayerr.KindDatabaseNotFound, "database %q does not exist", database).WithDatabase(database)
	}

	result, gerr := s.reconcileDatabase(ctx, database, schemaPath, false, force)
	if gerr != nil {
		return nil, true, gerr
	}

	resp := &MigrateResponse{
		Status:             "completed",
		DatabasesUpdated:   []string{database},
		MigrationsApplied:  len(result.MigrationsApplied),
		FunctionsUpdated:   len(result.FunctionsUpdated) + len(result.FunctionsDeployed),
		FunctionsSkipped:   len(result.FunctionsSkipped),
		SeederValidations:  make([]SeederValidationOutcome, 0, len(result.SeederValidations)),
		SchemaValidation:   summarizeDiff(result.Diff),
	}
	for _, v := range result.SeederValidations {
		resp.SeederValidations = append(resp.SeederValidations, SeederValidationOutcome{Table: v.Table, Expected: v.Expected, Found: v.Found})
	}
	return resp, true, nil
}

// migrateAllTenants enumerates every database beginning with
// "<platform>_" and reconciles each in sequence. A failure on one
// database is recorded in Outcomes but does not stop the rest; per the
// gateway's own resolution of spec.md's open question on this response's
// aggregate status, the caller returns HTTP 200 with the outcome array
// when every database was at least reachable, and a server error
// (carrying the same array) when any database could not be reached at
// all.
func (s *Server) migrateAllTenants(ctx context.Context, platform, schemaPath string, force bool, start time.Time) (*MigrateResponse, *gatewayerr.Error) {
	databases, err := s.pools.ListDatabasesForPlatform(ctx, platform)
	if err != nil {
		return nil, asGatewayErr(err)
	}

	resp := &MigrateResponse{
		Status:            "completed",
		DatabasesUpdated:  []string{},
		SeederValidations: []SeederValidationOutcome{},
		Outcomes:          make([]DatabaseOutcome, 0, len(databases)),
	}
	allReachable := true

	for _, db := range databases {
		one, reachable, gerr := s.migrateOne(ctx, db, schemaPath, force)
		if !reachable || (gerr != nil && (gerr.Kind == gatewayerr.KindConnectionFailed || gerr.Kind == gatewayerr.KindPoolExhausted)) {
			allReachable = false
		}
		if gerr != nil {
			resp.Outcomes = append(resp.Outcomes, DatabaseOutcome{Database: db, Status: "failed", Error: gerr.Message})
			continue
		}

		resp.DatabasesUpdated = append(resp.DatabasesUpdated, db)
		resp.MigrationsApplied += one.MigrationsApplied
		resp.FunctionsUpdated += one.FunctionsUpdated
		resp.FunctionsSkipped += one.FunctionsSkipped
		resp.SeederValidations = append(resp.SeederValidations, one.SeederValidations...)
		resp.SchemaValidation.SafeChanges += one.SchemaValidation.SafeChanges
		resp.SchemaValidation.DataLossChanges += one.SchemaValidation.DataLossChanges
		resp.SchemaValidation.IncompatibleChanges += one.SchemaValidation.IncompatibleChanges
		resp.Outcomes = append(resp.Outcomes, DatabaseOutcome{Database: db, Status: "completed"})
	}

	resp.ExecutionTimeMs = time.Since(start).Milliseconds()

	if !allReachable {
		return resp, gatewayerr.New(gatewayerr.KindConnectionFailed,
			"one or more databases were unreachable during multi-tenant migrate").
			WithContext("outcomes", resp.Outcomes)
	}
	return resp, nil
}

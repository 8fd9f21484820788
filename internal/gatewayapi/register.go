package gatewayapi

import (
	"context"
	"time"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

// registerSchemaName is the name a /register upload is stored under in the
// platform registry. /register carries no schema_name of its own (unlike
// /platform/{p}/schema or /v2/migrate), so every fresh-deploy upload for a
// platform lands under this one bookkeeping name; a later /platform/{p}/schema
// upload with an explicit name is unaffected.
const registerSchemaName = "default"

// RegisterRequest is the decoded body of POST /register: platform, an
// optional tenant id (empty means the platform's main database), and a
// filesystem path to the already-extracted "postgresql/" bundle tree.
type RegisterRequest struct {
	Platform   string
	TenantID   string
	SchemaPath string
}

// SeederOutcome reports one seeder's fresh-deploy result.
type SeederOutcome struct {
	Table    string `json:"table"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
}

// RegisterResponse is the success body of POST /register.
type RegisterResponse struct {
	Status              string          `json:"status"`
	Database            string          `json:"database"`
	ExtensionsInstalled int             `json:"extensions_installed"`
	TypesDeployed       int             `json:"types_deployed"`
	MigrationsApplied   int             `json:"migrations_applied"`
	FunctionsDeployed   int             `json:"functions_deployed"`
	Seeders             []SeederOutcome `json:"seeders"`
	ExecutionTimeMs     int64           `json:"execution_time_ms"`
}

// Register performs a fresh deploy: the target database must not already
// exist. It is created, the platform is auto-registered if this is its
// first deploy, the bundle is stored under the registry's default schema
// name, and every phase of the reconciler's plan runs unconditionally
// (seeders included, since a freshly created database is by definition
// empty).
func (s *Server) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, *gatewayerr.Error) {
	start := time.Now()

	if err := registry.ValidatePlatformName(req.Platform); err != nil {
		return nil, asGatewayErr(err)
	}
	if err := registry.ValidateTenantID(req.TenantID); err != nil {
		return nil, asGatewayErr(err)
	}

	if !s.registry.IsRegistered(req.Platform) {
		if _, err := s.registry.RegisterPlatform(req.Platform, "", "", false); err != nil {
			if gerr, ok := gatewayerr.As(err); !ok || gerr.Kind != gatewayerr.KindPlatformAlreadyExists {
				return nil, asGatewayErr(err)
			}
		}
	}

	database := s.router.DatabaseName(req.Platform, req.TenantID)

	exists, err := s.pools.DatabaseExists(ctx, database)
	if err != nil {
		return nil, asGatewayErr(err)
	}
	if exists {
		return nil, gatewayerr.Newf(gatewayerr.KindDatabaseAlreadyExists, "database %q already exists", database).WithDatabase(database)
	}

	if err := s.pools.CreateDatabase(ctx, database); err != nil {
		return nil, asGatewayErr(err)
	}

	if _, err := s.registry.StoreSchema(req.Platform, registerSchemaName, req.SchemaPath); err != nil {
		return nil, asGatewayErr(err)
	}

	result, gerr := s.reconcileDatabase(ctx, database, req.SchemaPath, true, false)
	if gerr != nil {
		return nil, gerr
	}

	if err := s.registry.RecordDatabase(req.Platform, registerSchemaName, database); err != nil {
		s.log.Warnf("recording database %s under platform %s: %v", database, req.Platform, err)
	}

	resp := &RegisterResponse{
		Status:              "ready",
		Database:            database,
		ExtensionsInstalled: len(result.ExtensionsInstalled),
		TypesDeployed:       len(result.TypesDeployed),
		MigrationsApplied:   len(result.MigrationsApplied),
		FunctionsDeployed:   len(result.FunctionsDeployed),
		Seeders:             make([]SeederOutcome, 0, len(result.SeederRuns)),
		ExecutionTimeMs:     time.Since(start).Milliseconds(),
	}
	for _, run := range result.SeederRuns {
		resp.Seeders = append(resp.Seeders, SeederOutcome{Table: run.Table, Inserted: run.Inserted, Skipped: run.Skipped})
	}
	return resp, nil
}

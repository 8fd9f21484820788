package gatewayapi

import (
	"context"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

// CreateDatabaseRequest is the decoded body of POST /database/create:
// create an empty database for a tenant and record it under a schema
// bundle name the platform has already stored (via
// /platform/{p}/schema), without deploying anything to it. A later
// /v2/migrate targeting the same schema_name performs the actual
// deploy.
type CreateDatabaseRequest struct {
	Platform   string
	TenantID   string
	SchemaName string
}

// CreateDatabaseResponse is the success body of POST /database/create.
type CreateDatabaseResponse struct {
	Database string `json:"database"`
	Status   string `json:"status"`
}

// CreateDatabase creates the routed database for a platform/tenant pair
// and records it against SchemaName without deploying to it.
func (s *Server) CreateDatabase(ctx context.Context, req CreateDatabaseRequest) (*CreateDatabaseResponse, *gatewayerr.Error) {
	if err := registry.ValidatePlatformName(req.Platform); err != nil {
		return nil, asGatewayErr(err)
	}
	if err := registry.ValidateTenantID(req.TenantID); err != nil {
		return nil, asGatewayErr(err)
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

	if err := s.registry.RecordDatabase(req.Platform, req.SchemaName, database); err != nil {
		s.log.Warnf("recording database %s under platform %s: %v", database, req.Platform, err)
	}

	return &CreateDatabaseResponse{Database: database, Status: "created"}, nil
}

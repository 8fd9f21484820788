package gatewayapi

import (
	"context"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

// AdminDatabaseInfo describes one live database found on the Postgres
// server, as opposed to PlatformDatabaseInfo's registry-recorded view.
type AdminDatabaseInfo struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	SizeMB *int64 `json:"size_mb,omitempty"`
}

// AdminListDatabasesResponse is the success body of GET /admin/databases.
type AdminListDatabasesResponse struct {
	Platform  string              `json:"platform"`
	Databases []AdminDatabaseInfo `json:"databases"`
	Count     int                 `json:"count"`
}

// AdminListDatabases lists every live database on the server whose name
// begins with "<platform>_", queried directly against pg_database
// rather than the registry's own bookkeeping.
func (s *Server) AdminListDatabases(ctx context.Context, platform string) (*AdminListDatabasesResponse, *gatewayerr.Error) {
	if err := registry.ValidatePlatformName(platform); err != nil {
		return nil, asGatewayErr(err)
	}

	names, err := s.pools.ListDatabasesForPlatform(ctx, platform)
	if err != nil {
		return nil, asGatewayErr(err)
	}

	resp := &AdminListDatabasesResponse{Platform: platform, Databases: make([]AdminDatabaseInfo, 0, len(names))}
	for _, name := range names {
		dbType := "tenant"
		if s.router.IsMainDatabase(name) {
			dbType = "main"
		}

		info := AdminDatabaseInfo{Name: name, Type: dbType}
		if size, err := s.pools.GetDatabaseSize(ctx, name); err == nil {
			mb := size / (1024 * 1024)
			info.SizeMB = &mb
		}
		resp.Databases = append(resp.Databases, info)
	}
	resp.Count = len(resp.Databases)
	return resp, nil
}

// AdminCreateTenantRequest is the decoded body of POST /admin/create-tenant.
type AdminCreateTenantRequest struct {
	Platform string
	TenantID string
}

// AdminCreateTenantResponse is the success body of POST /admin/create-tenant.
type AdminCreateTenantResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

// AdminCreateTenant creates the routed database for a platform/tenant
// pair with no schema deployed, the administrative equivalent of
// CreateDatabase without requiring a prior schema upload.
func (s *Server) AdminCreateTenant(ctx context.Context, req AdminCreateTenantRequest) (*AdminCreateTenantResponse, *gatewayerr.Error) {
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

	return &AdminCreateTenantResponse{Status: "created", Database: database}, nil
}

// AdminDeletePlatformResponse is the success body of DELETE
// /admin/platform/{platform}.
type AdminDeletePlatformResponse struct {
	Status   string `json:"status"`
	Platform string `json:"platform"`
}

// AdminDeletePlatform removes a platform's registry record. Refuses when
// the platform still has recorded databases — the operator must drop each
// recorded database first. This never touches PostgreSQL itself; it only
// forgets the platform's bookkeeping (platform.json, any keyring
// credentials).
func (s *Server) AdminDeletePlatform(ctx context.Context, platform string) (*AdminDeletePlatformResponse, *gatewayerr.Error) {
	if err := registry.ValidatePlatformName(platform); err != nil {
		return nil, asGatewayErr(err)
	}

	if err := s.registry.DeletePlatform(platform); err != nil {
		return nil, asGatewayErr(err)
	}

	return &AdminDeletePlatformResponse{Status: "deleted", Platform: platform}, nil
}

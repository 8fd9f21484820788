package gatewayapi

import (
	"context"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// RegisterPlatformRequest is the decoded body of POST /platform/register.
type RegisterPlatformRequest struct {
	Platform   string
	DBUser     string
	DBPassword string
}

// RegisterPlatformResponse is the success body of POST /platform/register.
type RegisterPlatformResponse struct {
	Status                  string `json:"status"`
	Platform                string `json:"platform"`
	HasDedicatedCredentials bool   `json:"has_dedicated_credentials"`
	Message                 string `json:"message"`
}

// RegisterPlatform onboards a new platform without deploying a schema.
// Register (POST /register) also auto-registers a platform on first
// deploy; this endpoint exists for callers that want dedicated
// credentials configured up front. Credentials, when given, are stored
// in the OS keyring rather than plaintext in platform.json.
func (s *Server) RegisterPlatform(ctx context.Context, req RegisterPlatformRequest) (*RegisterPlatformResponse, *gatewayerr.Error) {
	if err := registry.ValidatePlatformName(req.Platform); err != nil {
		return nil, asGatewayErr(err)
	}

	dedicated := req.DBUser != ""
	info, err := s.registry.RegisterPlatform(req.Platform, req.DBUser, req.DBPassword, dedicated)
	if err != nil {
		return nil, asGatewayErr(err)
	}

	message := "platform registered with default credentials"
	if dedicated {
		message = "platform registered with dedicated credentials"
	}

	return &RegisterPlatformResponse{
		Status:                  "registered",
		Platform:                info.Name,
		HasDedicatedCredentials: dedicated,
		Message:                 message,
	}, nil
}

// UploadSchemaRequest is the decoded body of POST /platform/{platform}/schema.
type UploadSchemaRequest struct {
	Platform   string
	SchemaName string
	SourceDir  string
}

// UploadSchemaResponse is the success body of POST /platform/{platform}/schema.
type UploadSchemaResponse struct {
	Status     string `json:"status"`
	SchemaName string `json:"schema_name"`
}

// StoreSchema extracts and records a named schema bundle for a platform
// without deploying it to any database. It is later referenced by name
// from POST /v2/migrate and POST /database/create.
func (s *Server) StoreSchema(ctx context.Context, req UploadSchemaRequest) (*UploadSchemaResponse, *gatewayerr.Error) {
	if !s.registry.IsRegistered(req.Platform) {
		return nil, gatewayerr.Newf(gatewayerr.KindPlatformNotFound, "platform %q is not registered", req.Platform)
	}

	changed, err := s.registry.StoreSchema(req.Platform, req.SchemaName, req.SourceDir)
	if err != nil {
		return nil, asGatewayErr(err)
	}

	status := "stored"
	if !changed {
		status = "unchanged"
	}
	return &UploadSchemaResponse{Status: status, SchemaName: req.SchemaName}, nil
}

// ListPlatformSchemasResponse is the success body of GET
// /platform/{platform}/schemas.
type ListPlatformSchemasResponse struct {
	Schemas []string `json:"schemas"`
}

// ListPlatformSchemas lists every schema bundle name stored for a
// platform.
func (s *Server) ListPlatformSchemas(ctx context.Context, platform string) (*ListPlatformSchemasResponse, *gatewayerr.Error) {
	info, err := s.registry.GetPlatformInfo(platform)
	if err != nil {
		return nil, asGatewayErr(err)
	}
	return &ListPlatformSchemasResponse{Schemas: info.Schemas}, nil
}

// PlatformDatabaseInfo describes one database recorded under a platform.
// Type is "main" for the platform's own main database and "tenant" for
// any other.
type PlatformDatabaseInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// ListPlatformDatabasesResponse is the success body of GET
// /platform/{platform}/databases.
type ListPlatformDatabasesResponse struct {
	Databases []PlatformDatabaseInfo `json:"databases"`
}

// ListPlatformDatabases lists every database the registry has recorded
// for a platform.
func (s *Server) ListPlatformDatabases(ctx context.Context, platform string) (*ListPlatformDatabasesResponse, *gatewayerr.Error) {
	records, err := s.registry.ListDatabases(platform, "")
	if err != nil {
		return nil, asGatewayErr(err)
	}

	resp := &ListPlatformDatabasesResponse{Databases: make([]PlatformDatabaseInfo, 0, len(records))}
	for _, rec := range records {
		dbType := "tenant"
		if s.router.IsMainDatabase(rec.DatabaseName) {
			dbType = "main"
		}
		resp.Databases = append(resp.Databases, PlatformDatabaseInfo{Name: rec.DatabaseName, Type: dbType})
	}
	return resp, nil
}

// PlatformSummary describes one registered platform in the /platforms
// listing.
type PlatformSummary struct {
	Name          string `json:"name"`
	SchemaCount   int    `json:"schema_count"`
	DatabaseCount int    `json:"database_count"`
}

// ListPlatformsResponse is the success body of GET /platforms.
type ListPlatformsResponse struct {
	Platforms []PlatformSummary `json:"platforms"`
}

// ListPlatforms lists every registered platform with its schema and
// database counts.
func (s *Server) ListPlatforms(ctx context.Context) (*ListPlatformsResponse, *gatewayerr.Error) {
	names, err := s.registry.ListPlatforms()
	if err != nil {
		return nil, asGatewayErr(err)
	}

	resp := &ListPlatformsResponse{Platforms: make([]PlatformSummary, 0, len(names))}
	for _, name := range names {
		info, err := s.registry.GetPlatformInfo(name)
		if err != nil {
			return nil, asGatewayErr(err)
		}
		resp.Platforms = append(resp.Platforms, PlatformSummary{
			Name:          name,
			SchemaCount:   len(info.Schemas),
			DatabaseCount: len(info.Databases),
		})
	}
	return resp, nil
}

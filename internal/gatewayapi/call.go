package gatewayapi

import (
	"context"
	"time"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/registry"
)

// CallRequest is the decoded body of POST /call: invoke a single
// Postgres function inside the tenant's own database.
type CallRequest struct {
	Platform string
	TenantID string
	Function string
	Params   []any
}

// CallResponse is the success body of POST /call. Rows mirrors
// pgx.Rows decoded into column-name-keyed maps, matching JSON's own
// object shape rather than a positional array.
type CallResponse struct {
	Rows            []map[string]any `json:"rows"`
	RowCount        int              `json:"row_count"`
	ExecutionTimeMs int64            `json:"execution_time_ms"`
}

// Call invokes Function inside the database the platform/tenant pair
// routes to and returns every row it produced.
func (s *Server) Call(ctx context.Context, req CallRequest) (*CallResponse, *gatewayerr.Error) {
	start := time.Now()

	if err := registry.ValidatePlatformName(req.Platform); err != nil {
		return nil, asGatewayErr(err)
	}
	if req.Function == "" {
		return nil, gatewayerr.New(gatewayerr.KindInvalidRequest, "function is required")
	}

	database := s.router.DatabaseName(req.Platform, req.TenantID)

	rows, err := s.pools.InvokeFunction(ctx, database, req.Function, req.Params)
	if err != nil {
		return nil, asGatewayErr(err).WithDatabase(database)
	}
	return &CallResponse{
		Rows:            rows,
		RowCount:        len(rows),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

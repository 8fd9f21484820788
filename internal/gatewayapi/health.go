package gatewayapi

import (
	"context"
	"time"

	"github.com/stonescriptdb/gateway/internal/gatewayerr"
	"github.com/stonescriptdb/gateway/internal/version"
	"github.com/stonescriptdb/gateway/pkg/health"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	PostgresConnected bool   `json:"postgres_connected"`
	ActivePools       int    `json:"active_pools"`
	TotalConnections  uint32 `json:"total_connections"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	Version           string `json:"version"`
}

// Health runs the registered checks and reports the aggregate gateway
// status alongside connection pool statistics.
func (s *Server) Health(ctx context.Context) (*HealthResponse, *gatewayerr.Error) {
	connected := s.pools.Ping(ctx)

	s.health.RunCheck("database", func() error {
		if !connected {
			return gatewayerr.New(gatewayerr.KindConnectionFailed, "admin pool ping failed")
		}
		return nil
	})

	resp := &HealthResponse{
		Status:            string(s.health.GetOverallStatus()),
		PostgresConnected: connected,
		ActivePools:       s.pools.ActivePools(),
		TotalConnections:  s.pools.TotalConnections(),
		UptimeSeconds:     int64(s.pools.Uptime() / time.Second),
		Version:           version.Version,
	}

	if health.Status(resp.Status) == health.StatusUnhealthy {
		return resp, gatewayerr.New(gatewayerr.KindConnectionFailed, "gateway is unhealthy")
	}
	return resp, nil
}

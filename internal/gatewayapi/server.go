// Package gatewayapi implements the operation functions behind the
// gateway's external interface: each exported method takes an
// already-decoded request struct and a context.Context and returns an
// already-encodable response struct plus a *gatewayerr.Error, mirroring
// the boundary spec.md draws between wire decoding (left to cmd/gateway)
// and the gateway's own logic.
package gatewayapi

import (
	"github.com/stonescriptdb/gateway/internal/dbpool"
	"github.com/stonescriptdb/gateway/internal/reconciler"
	"github.com/stonescriptdb/gateway/internal/registry"
	"github.com/stonescriptdb/gateway/internal/routing"
	"github.com/stonescriptdb/gateway/pkg/health"
	"github.com/stonescriptdb/gateway/pkg/logger"
)

// Server holds every collaborator an operation function needs. It carries
// no request-scoped state; a single Server is shared by every request the
// process handles.
type Server struct {
	pools      *dbpool.Manager
	registry   *registry.Registry
	router     *routing.Router
	reconciler *reconciler.Reconciler
	health     *health.Checker
	log        *logger.Logger
}

// New builds a Server around the gateway's long-lived collaborators.
func New(pools *dbpool.Manager, reg *registry.Registry, rec *reconciler.Reconciler, checker *health.Checker, log *logger.Logger) *Server {
	return &Server{
		pools:      pools,
		registry:   reg,
		router:     routing.New(),
		reconciler: rec,
		health:     checker,
		log:        log,
	}
}

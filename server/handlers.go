// Package server exposes the HTTP API: health, status, metrics, event
// queries, render requests, and admin channel management. It is the only
// outward surface; chat transport and rendering stay behind narrow
// interfaces.
package server

import (
	"context"
	"database/sql"

	"github.com/onnwee/snitchvis/backend/config"
	"github.com/onnwee/snitchvis/backend/indexer"
	"github.com/onnwee/snitchvis/backend/render"
	"github.com/onnwee/snitchvis/backend/transport"
)

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db    *sql.DB
	ctx   context.Context
	cfg   config.Config
	coord *indexer.Coordinator
	ix    *indexer.Indexer
	svc   *render.Service
	roles transport.RoleResolver
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, db *sql.DB, cfg config.Config, coord *indexer.Coordinator, ix *indexer.Indexer, svc *render.Service, roles transport.RoleResolver) *Handlers {
	return &Handlers{
		db:    db,
		ctx:   ctx,
		cfg:   cfg,
		coord: coord,
		ix:    ix,
		svc:   svc,
		roles: roles,
	}
}

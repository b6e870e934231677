package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pkg/httputil"
	"github.com/church-space/church-space-sub003/internal/service/fullsync"
	"github.com/church-space/church-space-sub003/internal/service/token"
)

// handleSyncAll runs a full sync of every resource type in dependency order.
//
//	POST /api/sync
func (s *Server) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}

	results, err := s.syncs.SyncAll(r.Context(), orgID)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"results": results})
}

// handleSyncResource runs a full sync of one resource type.
//
//	POST /api/sync/{resourceType}
func (s *Server) handleSyncResource(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}

	rt := domain.ResourceType(chi.URLParam(r, "resourceType"))
	result, err := s.syncs.SyncResource(r.Context(), orgID, rt)
	if err != nil {
		writeSyncError(w, err)
		return
	}
	httputil.OK(w, result)
}

// handleSyncStatus reports the last clean completion per resource type.
//
//	GET /api/sync/status
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}

	statuses, err := s.syncs.Status(r.Context(), orgID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{"statuses": statuses})
}

func writeSyncError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fullsync.ErrUnknownResource):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, token.ErrNotConnected):
		httputil.ErrorCode(w, http.StatusConflict, "organization is not connected", "not_connected")
	case errors.Is(err, token.ErrReconnectRequired):
		httputil.ErrorCode(w, http.StatusConflict, "connection is no longer usable, reconnect required", "reconnect_required")
	default:
		httputil.InternalError(w, err)
	}
}

package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/church-space/church-space-sub003/internal/pkg/httputil"
	"github.com/church-space/church-space-sub003/internal/service/eligibility"
)

// handleRecipients computes the campaign's eligible recipient set without
// dispatching anything.
//
//	POST /api/campaigns/{campaignID}/recipients
func (s *Server) handleRecipients(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}
	campaignID := chi.URLParam(r, "campaignID")

	result, err := s.eligibility.ComputeForCampaign(r.Context(), orgID, campaignID)
	if err != nil {
		if errors.Is(err, eligibility.ErrCampaignNotFound) {
			httputil.NotFound(w, "campaign not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"outcome":    result.Outcome,
		"reason":     result.Reason,
		"count":      len(result.Recipients),
		"recipients": result.Recipients,
	})
}

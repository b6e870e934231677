package api

import (
	"net/http"

	"github.com/church-space/church-space-sub003/internal/pkg/httputil"
)

// orgIDFromRequest resolves the calling organization from the
// X-Organization-ID header, falling back to the organization_id query
// parameter. Writes a 400 and returns "" when absent.
func orgIDFromRequest(w http.ResponseWriter, r *http.Request) string {
	orgID := r.Header.Get("X-Organization-ID")
	if orgID == "" {
		orgID = r.URL.Query().Get("organization_id")
	}
	if orgID == "" {
		httputil.BadRequest(w, "organization id is required")
	}
	return orgID
}

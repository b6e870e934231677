package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/church-space/church-space-sub003/internal/pkg/httputil"
	"github.com/church-space/church-space-sub003/internal/service/webhook"
)

// maxWebhookBody bounds inbound delivery bodies. Upstream batches are small;
// anything past this is not a legitimate delivery.
const maxWebhookBody = 1 << 20

// handleWebhook receives one upstream delivery. The signature covers the raw
// body, so it is read before any decoding.
//
//	POST /webhook/{organizationID}
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	orgID := chi.URLParam(r, "organizationID")

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "body too large")
			return
		}
		httputil.BadRequest(w, "reading request body failed")
		return
	}

	err = s.webhooks.HandleDelivery(r.Context(), webhook.Delivery{
		OrganizationID: orgID,
		EventID:        r.Header.Get("Event-ID"),
		EventName:      r.Header.Get("Event-Name"),
		Signature:      r.Header.Get("Authenticity-Signature"),
		RawBody:        body,
	})
	switch {
	case err == nil:
		httputil.OK(w, map[string]string{"status": "ok"})
	case errors.Is(err, webhook.ErrMissingHeader), errors.Is(err, webhook.ErrMalformedBody):
		httputil.BadRequest(w, err.Error())
	case errors.Is(err, webhook.ErrUnknownSecret):
		httputil.NotFound(w, "no subscription on file for this event")
	case errors.Is(err, webhook.ErrSignatureMismatch):
		httputil.Error(w, http.StatusUnauthorized, "signature verification failed")
	default:
		httputil.InternalError(w, err)
	}
}

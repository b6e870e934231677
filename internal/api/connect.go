package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/pkg/httputil"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
	"github.com/church-space/church-space-sub003/internal/service/token"
)

const oauthStateCookie = "pco_oauth_state"

// handleAuthorize starts the connect flow: a random state (with the
// organization id appended) is set as a short-lived cookie and the caller is
// redirected to the upstream consent screen.
//
//	GET /api/pco/authorize?organization_id=...
func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}

	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		httputil.InternalError(w, err)
		return
	}
	state := hex.EncodeToString(nonce) + "." + orgID

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/pco",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline), http.StatusFound)
}

// handleCallback finishes the connect flow: exchange the code, verify the
// connected user, persist the connection, then register the webhook
// subscriptions. A subscription failure rolls the connection back so a
// half-connected organization never lingers.
//
//	GET /api/pco/callback?code=...&state=...
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	cookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || cookie.Value != state {
		httputil.BadRequest(w, "oauth state mismatch")
		return
	}
	_, orgID, ok := strings.Cut(state, ".")
	if !ok || orgID == "" {
		httputil.BadRequest(w, "malformed oauth state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		httputil.BadRequest(w, "missing authorization code")
		return
	}

	oToken, err := s.oauth.Exchange(r.Context(), code)
	if err != nil {
		logger.Error("oauth code exchange failed", "org_id", orgID, "error", err.Error())
		httputil.Error(w, http.StatusBadGateway, "code exchange failed")
		return
	}

	scope, _ := oToken.Extra("scope").(string)
	tok := &pco.TokenResponse{
		AccessToken:  oToken.AccessToken,
		RefreshToken: oToken.RefreshToken,
		TokenType:    oToken.TokenType,
		Scope:        scope,
	}

	user, err := s.tokens.Connect(r.Context(), orgID, tok)
	if err != nil {
		logger.Error("connect verification failed", "org_id", orgID, "error", err.Error())
		httputil.Error(w, http.StatusForbidden, "connected user could not be verified")
		return
	}

	deliveryURL := strings.TrimRight(s.publicURL, "/") + "/webhook/" + orgID
	if err := s.webhooks.RegisterSubscriptions(r.Context(), orgID, tok.AccessToken, deliveryURL); err != nil {
		logger.Error("webhook registration failed, rolling back connection",
			"org_id", orgID, "error", err.Error())
		// Partial registration leaves live upstream subscriptions and stored
		// secrets behind; tear those down before dropping the credential so
		// a failed connect can't keep receiving verified deliveries.
		if rerr := s.webhooks.RemoveSubscriptions(r.Context(), orgID, tok.AccessToken); rerr != nil {
			logger.Error("subscription rollback failed", "org_id", orgID, "error", rerr.Error())
		}
		if derr := s.tokens.Disconnect(r.Context(), orgID); derr != nil {
			logger.Error("rollback failed", "org_id", orgID, "error", derr.Error())
		}
		httputil.Error(w, http.StatusBadGateway, "webhook registration failed")
		return
	}

	httputil.OK(w, map[string]string{
		"status":      "connected",
		"pco_user_id": user.ID,
	})
}

// handleConnectionStatus reports whether the organization is connected and,
// when it is, the token and sync freshness.
//
//	GET /api/pco/connection
func (s *Server) handleConnectionStatus(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}

	conn, err := s.tokens.Connection(r.Context(), orgID)
	if errors.Is(err, token.ErrNotConnected) {
		httputil.OK(w, map[string]any{"connected": false})
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	statuses, err := s.syncs.Status(r.Context(), orgID)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	lastSynced := make(map[string]time.Time, len(statuses))
	for _, st := range statuses {
		lastSynced[string(st.ResourceType)] = st.SyncedAt
	}

	httputil.OK(w, map[string]any{
		"connected":         true,
		"pco_user_id":       conn.PCOUserID,
		"scope":             conn.Scope,
		"last_refreshed_at": conn.LastRefreshedAt,
		"last_synced":       lastSynced,
	})
}

// handleDisconnect tears the connection down: upstream subscriptions first
// (best-effort), then local secrets and the credential itself.
//
//	DELETE /api/pco/connection
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	orgID := orgIDFromRequest(w, r)
	if orgID == "" {
		return
	}

	conn, err := s.tokens.Connection(r.Context(), orgID)
	if err != nil && !errors.Is(err, token.ErrNotConnected) {
		httputil.InternalError(w, err)
		return
	}
	if conn != nil {
		if err := s.webhooks.RemoveSubscriptions(r.Context(), orgID, conn.AccessToken); err != nil {
			logger.Warn("removing webhook subscriptions failed", "org_id", orgID, "error", err.Error())
		}
	}

	if err := s.tokens.Disconnect(r.Context(), orgID); err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

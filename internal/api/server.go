// Package api exposes the HTTP surface: the webhook receiver, the OAuth
// connect flow, sync triggers, and the recipient eligibility preview.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/oauth2"

	"github.com/church-space/church-space-sub003/internal/config"
	"github.com/church-space/church-space-sub003/internal/service/eligibility"
	"github.com/church-space/church-space-sub003/internal/service/fullsync"
	"github.com/church-space/church-space-sub003/internal/service/token"
	"github.com/church-space/church-space-sub003/internal/service/webhook"
)

// Server is the HTTP server wiring the service layer to routes.
type Server struct {
	tokens      *token.Service
	webhooks    *webhook.Service
	syncs       *fullsync.Service
	eligibility *eligibility.Service
	oauth       *oauth2.Config
	publicURL   string
	handler     http.Handler
	server      *http.Server
}

// NewServer creates the API server and builds its routes.
func NewServer(
	cfg *config.Config,
	tokens *token.Service,
	webhooks *webhook.Service,
	syncs *fullsync.Service,
	elig *eligibility.Service,
) *Server {
	s := &Server{
		tokens:      tokens,
		webhooks:    webhooks,
		syncs:       syncs,
		eligibility: elig,
		publicURL:   cfg.Server.PublicURL,
		oauth: &oauth2.Config{
			ClientID:     cfg.PCO.ClientID,
			ClientSecret: cfg.PCO.ClientSecret,
			RedirectURL:  cfg.PCO.RedirectURL,
			Scopes:       []string{"people"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.PCO.AuthURL,
				TokenURL: cfg.PCO.TokenURL,
			},
		},
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*.churchspace.co", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)

	// Webhook receiver. Authenticated per delivery by HMAC signature, not by
	// the API middleware.
	r.Post("/webhook/{organizationID}", s.handleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Route("/pco", func(r chi.Router) {
			r.Get("/authorize", s.handleAuthorize)
			r.Get("/callback", s.handleCallback)
			r.Get("/connection", s.handleConnectionStatus)
			r.Delete("/connection", s.handleDisconnect)
		})

		r.Post("/sync", s.handleSyncAll)
		r.Post("/sync/{resourceType}", s.handleSyncResource)
		r.Get("/sync/status", s.handleSyncStatus)

		r.Post("/campaigns/{campaignID}/recipients", s.handleRecipients)
	})

	return r
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler { return s.handler }

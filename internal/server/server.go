package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomchat/billing/internal/email"
	"github.com/loomchat/billing/internal/handler"
	"github.com/loomchat/billing/internal/ingest"
	"github.com/loomchat/billing/internal/middleware"
	"github.com/loomchat/billing/internal/provider"
	"github.com/loomchat/billing/internal/store"
)

type Server struct {
	db                *sql.DB
	subscriptionStore *store.SubscriptionStore
	ingestor          *ingest.Service
	subscriptionH     *handler.SubscriptionHandler
	checkoutH         *handler.CheckoutHandler
	portalH           *handler.PortalHandler
	webhookH          *handler.WebhookHandler
	adminH            *handler.AdminHandler
	rateLimiter       *middleware.RateLimiter
	jwtSecret         []byte
	adminToken        string
	logger            *slog.Logger
}

type Config struct {
	// Provider may be nil when the payment vendor is not configured; checkout
	// and portal routes then answer provider_unavailable.
	Provider    provider.BillingProvider
	EmailClient *email.Client
	BaseURL     string
	JWTSecret   []byte
	AdminToken  string
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	subscriptionStore := store.NewSubscriptionStore(db)

	var notifier ingest.Notifier
	if cfg.EmailClient != nil {
		notifier = cfg.EmailClient
	}
	ingestor := ingest.New(subscriptionStore, notifier, logger.With("component", "ingest"))

	return &Server{
		db:                db,
		subscriptionStore: subscriptionStore,
		ingestor:          ingestor,
		subscriptionH:     handler.NewSubscriptionHandler(subscriptionStore, logger.With("component", "subscription")),
		checkoutH:         handler.NewCheckoutHandler(cfg.Provider, logger.With("component", "checkout")),
		portalH:           handler.NewPortalHandler(cfg.Provider, subscriptionStore, cfg.BaseURL+"/account", logger.With("component", "portal")),
		webhookH:          handler.NewWebhookHandler(cfg.Provider, ingestor, logger.With("component", "webhook")),
		adminH:            handler.NewAdminHandler(ingestor, logger.With("component", "admin")),
		rateLimiter:       middleware.NewRateLimiter(),
		jwtSecret:         cfg.JWTSecret,
		adminToken:        cfg.AdminToken,
		logger:            logger,
	}
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// Ingestor exposes the ingest service for out-of-band administration.
func (s *Server) Ingestor() *ingest.Service {
	return s.ingestor
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)

	// Provider webhook (public; signature verification gates processing)
	mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleProviderWebhook)

	// Authenticated API
	authMw := middleware.RequireAuth(s.jwtSecret)
	rateLimitMw := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)

	mux.Handle("GET /api/subscription", authMw(http.HandlerFunc(s.subscriptionH.Get)))
	mux.Handle("POST /api/checkout", rateLimitMw(authMw(http.HandlerFunc(s.checkoutH.Create))))
	mux.Handle("POST /api/portal", authMw(http.HandlerFunc(s.portalH.Create)))
	mux.Handle("POST /api/subscription/cancel", authMw(http.HandlerFunc(s.portalH.Cancel)))

	// Admin override (separate static token)
	adminMw := middleware.RequireAdmin(s.adminToken)
	mux.Handle("POST /api/admin/override", adminMw(http.HandlerFunc(s.adminH.SetOverride)))

	var h http.Handler = mux
	h = middleware.RequestLogger(s.logger)(h)
	h = middleware.RequestID(h)
	return h
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

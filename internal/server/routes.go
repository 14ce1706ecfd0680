package server

import (
	"net/http"
	"time"

	"github.com/finbot/finbot/internal/handler"
	"github.com/finbot/finbot/internal/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

func (s *Server) setupRoutes() http.Handler {
	cfg := s.cfg
	d := s.deps

	log.Info().
		Int("databases", len(cfg.Databases)).
		Str("confirm_store", cfg.ConfirmStore).
		Bool("agent_enabled", d.Conversation != nil).
		Bool("telegram_enabled", d.Telegram != nil).
		Bool("auth_enabled", cfg.EnableAuth && len(cfg.APIKeys) > 0).
		Bool("data_masking", cfg.EnableDataMasking).
		Bool("audit_logging", cfg.EnableAuditLogging).
		Bool("pii_detection", cfg.EnablePIIDetection).
		Msg("service configuration")

	if cfg.EnableAuth && len(cfg.APIKeys) == 0 {
		log.Warn().Msg("WARNING: auth enabled but no API keys configured - all API requests will be rejected")
	}
	if d.Telegram != nil && cfg.TelegramWebhookSecret == "" {
		log.Warn().Msg("WARNING: TELEGRAM_WEBHOOK_SECRET not set - webhook accepts unsigned updates")
	}
	if cfg.AllowedUserID == "" {
		log.Warn().Msg("WARNING: ALLOWED_USER_ID not set - any Telegram user can use the bot")
	}

	// ─── Handlers ────────────────────────────────────────────────────────────────
	healthH := handler.NewHealthHandler(d.Notion, d.Store)
	opsH := handler.NewOperationsHandler(d.Operations)
	summaryH := handler.NewSummaryHandler(d.Tracker)

	var chatH *handler.ChatHandler
	var webhookH *handler.WebhookHandler
	if d.Conversation != nil {
		chatH = handler.NewChatHandler(d.Conversation)
		if d.Telegram != nil {
			webhookH = handler.NewWebhookHandler(
				d.Conversation, d.Telegram,
				cfg.TelegramWebhookSecret, cfg.AllowedUserID,
				time.Duration(cfg.WebhookTimeout)*time.Second,
			)
		}
	}

	// ─── Router ──────────────────────────────────────────────────────────────────
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(d.Audit))
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.CORSOrigins)))
	r.Use(chiMiddleware.RealIP)

	// Public routes
	r.Get("/health", healthH.Health)
	r.Get("/", healthH.Health)
	if webhookH != nil {
		r.Post("/webhook", webhookH.Webhook)
	}

	// Auth + rate limiting for API routes
	apiMiddleware := []func(http.Handler) http.Handler{
		middleware.RateLimit(cfg.RateLimitPerMinute),
	}
	if cfg.EnableAuth {
		apiMiddleware = append(apiMiddleware, middleware.Auth(cfg.APIKeys, cfg.APIKeyHeader))
	}

	r.Group(func(r chi.Router) {
		for _, m := range apiMiddleware {
			r.Use(m)
		}

		r.Route(cfg.APIPrefix, func(r chi.Router) {
			r.Route("/operations", func(r chi.Router) {
				r.Post("/", opsH.Execute)
				r.Post("/confirm", opsH.Confirm)
				r.Post("/cancel", opsH.Cancel)
				r.Get("/pending/{userID}", opsH.Pending)
			})

			r.Get("/summary", summaryH.Summary)
			r.Get("/budget-impact", summaryH.BudgetImpact)

			if chatH != nil {
				r.Post("/chat", chatH.Chat)
			}
		})
	})

	return r
}

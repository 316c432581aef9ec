package router

import (
	"net/http"

	"github.com/SARVESHVARADKAR123/RealChat/internal/config"
	"github.com/SARVESHVARADKAR123/RealChat/internal/handlers"
	"github.com/SARVESHVARADKAR123/RealChat/internal/middleware"
	"github.com/SARVESHVARADKAR123/RealChat/internal/observability"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Handlers struct {
	Conversations *handlers.ConversationHandler
	Messages      *handlers.MessageHandler
	Realtime      *handlers.RealtimeHandler
}

func NewRouter(h Handlers, db observability.Pinger, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(observability.MetricsMiddleware(cfg.ServiceName))
	r.Use(middleware.Recovery())

	r.Get("/health/live", observability.HealthLiveHandler)
	r.Get("/health/ready", observability.HealthReadyHandler(db))
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Group(func(p chi.Router) {
		p.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		p.Use(middleware.JWT(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience))

		convH, msgH := h.Conversations, h.Messages

		p.Route("/api/conversations", func(c chi.Router) {
			c.Get("/", convH.List)
			c.Post("/direct", convH.CreateDirect)
			c.Post("/group", convH.CreateGroup)

			c.Route("/{conversationID}", func(c chi.Router) {
				c.Get("/", convH.Get)
				c.Delete("/", convH.Delete)
				c.Post("/participants", convH.AddParticipant)
				c.Delete("/participants/{userID}", convH.RemoveParticipant)
				c.Get("/messages", msgH.List)
				c.Post("/messages", msgH.Send)
				c.Post("/read", convH.MarkRead)
				c.Get("/unread", convH.Unread)
				c.Post("/typing", convH.Typing)
			})
		})

		p.Route("/api/messages/{messageID}", func(m chi.Router) {
			m.Patch("/", msgH.Edit)
			m.Delete("/", msgH.Delete)
			m.Post("/read", msgH.MarkRead)
			m.Post("/delivered", msgH.MarkDelivered)
		})

		p.Get("/ws", h.Realtime.ServeHTTP)
	})

	return otelhttp.NewHandler(r, cfg.ServiceName)
}

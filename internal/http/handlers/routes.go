package handlers

import (
	"net/http"

	authmw "boxoffice/backend/internal/http/middleware"

	"github.com/go-chi/chi/v5"
)

// Routes registers the public, admin and webhook endpoints on r. Webhook
// callers are throttled by limiter when it is non-nil.
func (h *Handler) Routes(r chi.Router, limiter authmw.Limiter) {
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/auth/admin", h.AuthAdmin)
	r.Get("/events/{id}/tickets", h.ListEventOffers)
	r.Post("/cart/validate", h.ValidateCart)

	r.Group(func(r chi.Router) {
		r.Use(authmw.AdminAuth(h.cfg.JWTSecret))
		r.Get("/admin/events/{id}/tickets", h.GetEventTickets)
		r.Put("/admin/events/{id}/tickets", h.PutEventTickets)
		r.Post("/admin/events/{id}/tickets/sync", h.SyncEventProducts)
		r.Get("/admin/events/{id}/reports", h.EventReport)
		r.Get("/admin/events/{id}/reports/export.csv", h.ExportEventReport)
	})

	r.Group(func(r chi.Router) {
		r.Use(authmw.WebhookAuth(h.cfg.WebhookSecret))
		if limiter != nil {
			r.Use(authmw.RateLimit(limiter))
		}
		r.Post("/hooks/orders", h.IngestOrder)
		r.Post("/hooks/orders/status", h.OrderStatusHook)
		r.Post("/hooks/line-items/snapshot", h.LineItemSnapshot)
	})
}

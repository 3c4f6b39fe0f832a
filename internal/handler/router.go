package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	custommiddleware "github.com/westla/repairdesk-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware API мастерской.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Route("/user", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/logout", h.Logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/dashboard", h.GetDashboard)
			r.Put("/user/profile", h.UpdateProfile)

			r.Route("/services", func(r chi.Router) {
				r.Post("/", h.CreateTicket)
				r.Get("/", h.GetTickets)
				r.Get("/{id}", h.GetTicket)

				r.Group(func(r chi.Router) {
					r.Use(h.authMiddleware.RequireStaff)

					r.Put("/{id}", h.UpdateTicket)
					r.Delete("/{id}", h.DeleteTicket)
					r.Post("/{id}/invoice", h.CreateInvoice)
				})
			})

			r.Route("/invoices", func(r chi.Router) {
				r.Get("/", h.GetInvoices)
				r.Get("/{id}", h.GetInvoice)
				r.Post("/{id}/pay", h.PayInvoice)

				r.With(h.authMiddleware.RequireStaff).
					Put("/{id}/status", h.UpdateInvoiceStatus)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Post("/", h.StartConversation)
				r.Get("/", h.GetConversations)
				r.Get("/{id}", h.GetConversation)
				r.Post("/{id}/messages", h.SendMessage)
				r.Put("/{id}/archive", h.ArchiveConversation)
				r.Put("/{id}/unarchive", h.UnarchiveConversation)
			})

			r.Route("/documents", func(r chi.Router) {
				r.Get("/", h.GetDocuments)
				r.Get("/{id}", h.GetDocument)

				r.Group(func(r chi.Router) {
					r.Use(h.authMiddleware.RequireStaff)

					r.Post("/", h.UploadDocument)
					r.Post("/{id}/share", h.ShareDocument)
					r.Delete("/{id}", h.DeleteDocument)
				})
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}

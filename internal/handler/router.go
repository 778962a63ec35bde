package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/campus-events/internal/auth"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// Routes mounts the API under /api. Every route sees the caller's actor when
// a valid bearer token is sent; writes require one.
func (h *Handler) Routes(authn *auth.Authenticator) http.Handler {
	r := chi.NewRouter()
	r.Use(authn.Authenticate)

	r.Route("/events", func(r chi.Router) {
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(model.RoleOrganizer, model.RoleAdmin))
			r.Post("/", h.CreateEvent)
			r.Put("/{id}", h.UpdateEvent)
			r.Delete("/{id}", h.DeleteEvent)
		})
		r.With(auth.RequireRole(model.RoleOrganizer)).Post("/{id}/remind", h.SendReminders)
	})

	r.Route("/admin/events", func(r chi.Router) {
		r.Use(auth.RequireRole(model.RoleAdmin))
		r.Get("/pending", h.PendingEvents)
		r.Post("/{id}/approve", h.ApproveEvent)
		r.Post("/{id}/reject", h.RejectEvent)
	})

	r.Route("/registrations", func(r chi.Router) {
		r.Use(auth.Require)
		r.Get("/me", h.MyRegistrations)
		r.Post("/{eventId}/register", h.Register)
		r.Delete("/{eventId}", h.CancelRegistration)
		r.Get("/{eventId}/status", h.RegistrationStatus)
		r.Get("/{eventId}/ticket", h.Ticket)
		r.Post("/{eventId}/ticket/resend", h.ResendTicket)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(model.RoleOrganizer, model.RoleAdmin))
			r.Get("/{eventId}/participants", h.Participants)
			r.Get("/{eventId}/participants.csv", h.ExportParticipants)
			r.Post("/{eventId}/checkin", h.CheckIn)
			r.Post("/{eventId}/scan", h.Scan)
		})
	})

	return r
}

package handler

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/service"
)

// Register handles POST /api/registrations/{eventId}/register
// Performs a concurrency-safe registration for the calling user.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	reg, err := h.regs.Register(r.Context(), actor(r), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, reg)
}

// CancelRegistration handles DELETE /api/registrations/{eventId}
func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	reg, err := h.regs.Cancel(r.Context(), a, chi.URLParam(r, "eventId"), a.UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, reg)
}

// MyRegistrations handles GET /api/registrations/me
func (h *Handler) MyRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.regs.ListForUser(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if regs == nil {
		regs = []model.RegistrationView{}
	}
	h.respond(w, r, http.StatusOK, regs)
}

// RegistrationStatus handles GET /api/registrations/{eventId}/status
func (h *Handler) RegistrationStatus(w http.ResponseWriter, r *http.Request) {
	ok, err := h.regs.StatusFor(r.Context(), chi.URLParam(r, "eventId"), actor(r).UserID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]bool{"registered": ok})
}

// Ticket handles GET /api/registrations/{eventId}/ticket
// Returns the caller's ticket as a PNG image.
func (h *Handler) Ticket(w http.ResponseWriter, r *http.Request) {
	t, err := h.regs.Ticket(r.Context(), actor(r), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(t.Image)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(t.Image)
}

type resendResponse struct {
	Regenerated bool   `json:"regenerated"`
	Warning     string `json:"warning,omitempty"`
}

// ResendTicket handles POST /api/registrations/{eventId}/ticket/resend
// A delivery failure is reported as a warning, not an error.
func (h *Handler) ResendTicket(w http.ResponseWriter, r *http.Request) {
	res, err := h.regs.ResendTicket(r.Context(), actor(r), chi.URLParam(r, "eventId"))
	if errors.Is(err, apperr.ErrDeliveryFailure) {
		h.respond(w, r, http.StatusOK, resendResponse{
			Regenerated: res.Regenerated,
			Warning:     "the ticket email could not be delivered, please try again later",
		})
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, resendResponse{Regenerated: res.Regenerated})
}

// Participants handles GET /api/registrations/{eventId}/participants
// Pass includeCancelled=true to list cancelled registrations too.
func (h *Handler) Participants(w http.ResponseWriter, r *http.Request) {
	includeCancelled, _ := strconv.ParseBool(r.URL.Query().Get("includeCancelled"))
	people, err := h.regs.ListForEvent(r.Context(), actor(r), chi.URLParam(r, "eventId"), includeCancelled)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if people == nil {
		people = []model.Participant{}
	}
	h.respond(w, r, http.StatusOK, people)
}

// ExportParticipants handles GET /api/registrations/{eventId}/participants.csv
func (h *Handler) ExportParticipants(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	rows, err := h.export.Participants(r.Context(), actor(r), eventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := service.WriteCSV(&buf, rows); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="participants-%s.csv"`, eventID))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// CheckIn handles POST /api/registrations/{eventId}/checkin
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	var req model.CheckInRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	reg, err := h.regs.SetStatus(r.Context(), actor(r), chi.URLParam(r, "eventId"), req.UserID, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, reg)
}

// Scan handles POST /api/registrations/{eventId}/scan
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req model.ScanRequest
	if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	reg, err := h.regs.Scan(r.Context(), actor(r), chi.URLParam(r, "eventId"), req.Payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, reg)
}

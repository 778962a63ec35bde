// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/auth"
	"github.com/Shivanand-hulikatti/campus-events/internal/blob"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/service"
)

// Reminders sends reminder emails for an event.
type Reminders interface {
	SendEventReminders(ctx context.Context, actor model.Actor, eventID string) (notify.ReminderResult, error)
}

type Deps struct {
	Events        *service.EventService
	Moderation    *service.ModerationService
	Registrations *service.RegistrationService
	Export        *service.ExportService
	Reminders     Reminders
	Posters       blob.Store
	Logger        logger.Logger
	MaxBodyBytes  int64
	MaxUpload     int64
}

// Handler holds all HTTP handlers for the events API.
type Handler struct {
	events     *service.EventService
	moderation *service.ModerationService
	regs       *service.RegistrationService
	export     *service.ExportService
	reminders  Reminders
	posters    blob.Store
	log        logger.Logger
	maxBody    int64
	maxUpload  int64
}

// New constructs a Handler.
func New(d Deps) *Handler {
	if d.MaxBodyBytes <= 0 {
		d.MaxBodyBytes = 1 << 20
	}
	if d.MaxUpload <= 0 {
		d.MaxUpload = 5 << 20
	}
	return &Handler{
		events:     d.Events,
		moderation: d.Moderation,
		regs:       d.Registrations,
		export:     d.Export,
		reminders:  d.Reminders,
		posters:    d.Posters,
		log:        d.Logger,
		maxBody:    d.MaxBodyBytes,
		maxUpload:  d.MaxUpload,
	}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
	return nil
}

// respond writes v as JSON. The body is encoded before the header goes
// out, so a value that cannot be encoded turns into a logged 500.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	if err := writeJSON(w, status, v); err != nil {
		h.log.Error("encode response",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	_ = writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation([]apperr.FieldError{{Field: "body", Msg: "invalid request body: " + err.Error()}})
	}
	if dec.More() {
		return apperr.Validation([]apperr.FieldError{{Field: "body", Msg: "unexpected data after JSON object"}})
	}
	return nil
}

func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindConflict, apperr.KindCapacityExceeded, apperr.KindInvalidState:
		return http.StatusConflict
	case apperr.KindInvalidTransition:
		return http.StatusUnprocessableEntity
	case apperr.KindDeliveryFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes err as a JSON error. Unclassified errors are logged and
// reported as a bare 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		h.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", chimiddleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal", "internal server error")
		return
	}
	h.respond(w, r, statusFor(e.Kind), model.ErrorResponse{
		Error:  e.Message,
		Code:   string(e.Kind),
		Fields: e.Fields,
	})
}

// actor returns the authenticated caller. Routes using it sit behind
// auth.Require, so a missing actor is a wiring bug.
func actor(r *http.Request) model.Actor {
	a, ok := auth.ActorFrom(r.Context())
	if !ok {
		panic(fmt.Sprintf("handler: no actor on %s %s", r.Method, r.URL.Path))
	}
	return a
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	_ = writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

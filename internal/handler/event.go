package handler

import (
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

var eventFormFields = map[string]bool{
	"title": true, "description": true, "date": true, "location": true,
	"category": true, "price": true, "capacity": true, "posterUrl": true,
}

// CreateEvent handles POST /api/events
// Accepts JSON, or multipart form data with an optional "poster" image.
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if isMultipart(r) {
		patch, err := h.decodeEventForm(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		req = createFromPatch(patch)
	} else if err := h.decodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	event, err := h.events.Create(r.Context(), actor(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusCreated, event)
}

// ListEvents handles GET /api/events?q=&category=&status=&organizer=
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	events, err := h.events.List(r.Context(), model.EventFilter{
		Text:        q.Get("q"),
		Category:    q.Get("category"),
		Status:      model.EventStatus(q.Get("status")),
		OrganizerID: q.Get("organizer"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.EventView{}
	}
	h.respond(w, r, http.StatusOK, events)
}

// GetEvent handles GET /api/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, event)
}

// UpdateEvent handles PUT /api/events/{id}
func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var patch model.UpdateEventRequest
	if isMultipart(r) {
		p, err := h.decodeEventForm(w, r)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		patch = p
	} else if err := h.decodeJSON(w, r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}

	event, err := h.events.Update(r.Context(), actor(r), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, event)
}

// DeleteEvent handles DELETE /api/events/{id}
func (h *Handler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	if err := h.events.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, map[string]string{"message": "event deleted"})
}

// SendReminders handles POST /api/events/{id}/remind
func (h *Handler) SendReminders(w http.ResponseWriter, r *http.Request) {
	res, err := h.reminders.SendEventReminders(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, res)
}

// ─── Moderation ───────────────────────────────────────────────────────────────

// PendingEvents handles GET /api/admin/events/pending
func (h *Handler) PendingEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.moderation.Pending(r.Context(), actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if events == nil {
		events = []model.EventView{}
	}
	h.respond(w, r, http.StatusOK, events)
}

// ApproveEvent handles POST /api/admin/events/{id}/approve
func (h *Handler) ApproveEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.moderation.Approve(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, event)
}

// RejectEvent handles POST /api/admin/events/{id}/reject
func (h *Handler) RejectEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.moderation.Reject(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, r, http.StatusOK, event)
}

// ─── Multipart forms ──────────────────────────────────────────────────────────

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// decodeEventForm reads event fields from a multipart form. Fields that are
// absent stay nil; an attached poster is stored and its URL set.
func (h *Handler) decodeEventForm(w http.ResponseWriter, r *http.Request) (model.UpdateEventRequest, error) {
	var patch model.UpdateEventRequest

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+h.maxBody)
	if err := r.ParseMultipartForm(h.maxBody); err != nil {
		return patch, apperr.Validation([]apperr.FieldError{{Field: "body", Msg: "invalid multipart form: " + err.Error()}})
	}
	defer r.MultipartForm.RemoveAll()

	var errs []apperr.FieldError
	for name := range r.MultipartForm.Value {
		if !eventFormFields[name] {
			errs = append(errs, apperr.FieldError{Field: name, Msg: "unknown field"})
		}
	}

	str := func(name string) *string {
		if vs, ok := r.MultipartForm.Value[name]; ok && len(vs) > 0 {
			v := strings.TrimSpace(vs[0])
			return &v
		}
		return nil
	}

	patch.Title = str("title")
	patch.Description = str("description")
	patch.Location = str("location")
	patch.Category = str("category")
	patch.PosterURL = str("posterUrl")

	if v := str("date"); v != nil {
		t, err := time.Parse(time.RFC3339, *v)
		if err != nil {
			errs = append(errs, apperr.FieldError{Field: "date", Msg: "must be an RFC 3339 timestamp"})
		} else {
			patch.Date = &t
		}
	}
	if v := str("price"); v != nil {
		p, err := strconv.ParseFloat(*v, 64)
		if err != nil {
			errs = append(errs, apperr.FieldError{Field: "price", Msg: "must be a number"})
		} else {
			patch.Price = &p
		}
	}
	if v := str("capacity"); v != nil {
		c, err := strconv.Atoi(*v)
		if err != nil {
			errs = append(errs, apperr.FieldError{Field: "capacity", Msg: "must be an integer"})
		} else {
			patch.Capacity = &c
		}
	}
	if err := apperr.Validation(errs); err != nil {
		return patch, err
	}

	file, _, err := r.FormFile("poster")
	if errors.Is(err, http.ErrMissingFile) {
		return patch, nil
	}
	if err != nil {
		return patch, apperr.Validation([]apperr.FieldError{{Field: "poster", Msg: err.Error()}})
	}
	defer file.Close()

	url, err := h.posters.Save(r.Context(), file)
	if err != nil {
		return patch, err
	}
	patch.PosterURL = &url
	return patch, nil
}

func createFromPatch(p model.UpdateEventRequest) model.CreateEventRequest {
	var req model.CreateEventRequest
	if p.Title != nil {
		req.Title = *p.Title
	}
	if p.Description != nil {
		req.Description = *p.Description
	}
	if p.Date != nil {
		req.Date = *p.Date
	}
	if p.Location != nil {
		req.Location = *p.Location
	}
	if p.Category != nil {
		req.Category = *p.Category
	}
	if p.Price != nil {
		req.Price = *p.Price
	}
	if p.Capacity != nil {
		req.Capacity = *p.Capacity
	}
	if p.PosterURL != nil {
		req.PosterURL = *p.PosterURL
	}
	return req
}

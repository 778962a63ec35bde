// Package model defines the core domain types for the event registration
// and ticketing engine.
package model

import (
	"strings"
	"time"
)

// EventStatus is the moderation state of an event.
type EventStatus string

const (
	EventPending  EventStatus = "pending"
	EventApproved EventStatus = "approved"
	EventRejected EventStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventPending, EventApproved, EventRejected:
		return true
	}
	return false
}

// Event represents a published activity created by an organizer.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	StartsAt    time.Time   `json:"date"`
	Location    string      `json:"location"`
	Category    string      `json:"category"`
	Price       float64     `json:"price"`
	Capacity    int         `json:"capacity"`
	PosterURL   string      `json:"posterUrl,omitempty"`
	OrganizerID string      `json:"organizerId"`
	Status      EventStatus `json:"status"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// OwnedBy reports whether userID organizes the event.
func (e *Event) OwnedBy(userID string) bool {
	return userID != "" && e.OrganizerID == userID
}

// EventView is an event together with its live registration count. The
// count comes from the registration ledger and is never stored on the event.
type EventView struct {
	Event
	RegisteredCount int  `json:"registeredCount"`
	SeatsLeft       int  `json:"seatsLeft"`
	Full            bool `json:"full"`
}

// NewEventView composes e with its active registration count.
func NewEventView(e Event, registered int) EventView {
	left := e.Capacity - registered
	if left < 0 {
		left = 0
	}
	return EventView{Event: e, RegisteredCount: registered, SeatsLeft: left, Full: left == 0}
}

// EventFilter selects events. Zero-valued fields do not filter.
type EventFilter struct {
	Text        string
	Category    string
	Status      EventStatus
	OrganizerID string
}

// Normalize trims every filter value.
func (f EventFilter) Normalize() EventFilter {
	return EventFilter{
		Text:        strings.TrimSpace(f.Text),
		Category:    strings.TrimSpace(f.Category),
		Status:      EventStatus(strings.TrimSpace(string(f.Status))),
		OrganizerID: strings.TrimSpace(f.OrganizerID),
	}
}

// CreateEventRequest is the payload for creating a new event.
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
	Location    string    `json:"location"`
	Category    string    `json:"category"`
	Price       float64   `json:"price"`
	Capacity    int       `json:"capacity"`
	PosterURL   string    `json:"posterUrl,omitempty"`
}

// UpdateEventRequest is a partial update. Nil fields are left unchanged.
type UpdateEventRequest struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	Date        *time.Time `json:"date,omitempty"`
	Location    *string    `json:"location,omitempty"`
	Category    *string    `json:"category,omitempty"`
	Price       *float64   `json:"price,omitempty"`
	Capacity    *int       `json:"capacity,omitempty"`
	PosterURL   *string    `json:"posterUrl,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p UpdateEventRequest) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Date == nil &&
		p.Location == nil && p.Category == nil && p.Price == nil &&
		p.Capacity == nil && p.PosterURL == nil
}

// Apply copies the set fields of p onto e.
func (p UpdateEventRequest) Apply(e *Event) {
	if p.Title != nil {
		e.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		e.Description = strings.TrimSpace(*p.Description)
	}
	if p.Date != nil {
		e.StartsAt = p.Date.UTC()
	}
	if p.Location != nil {
		e.Location = strings.TrimSpace(*p.Location)
	}
	if p.Category != nil {
		e.Category = strings.TrimSpace(*p.Category)
	}
	if p.Price != nil {
		e.Price = *p.Price
	}
	if p.Capacity != nil {
		e.Capacity = *p.Capacity
	}
	if p.PosterURL != nil {
		e.PosterURL = strings.TrimSpace(*p.PosterURL)
	}
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

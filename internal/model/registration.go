package model

import (
	"encoding/base64"
	"time"
)

// RegistrationStatus is the attendance state of a registration.
type RegistrationStatus string

const (
	StatusRegistered RegistrationStatus = "registered"
	StatusAttended   RegistrationStatus = "attended"
	StatusLeft       RegistrationStatus = "left"
	StatusCancelled  RegistrationStatus = "cancelled"
)

// transitions lists the allowed next states for each state. left and
// cancelled are terminal.
var transitions = map[RegistrationStatus][]RegistrationStatus{
	StatusRegistered: {StatusAttended, StatusCancelled},
	StatusAttended:   {StatusLeft, StatusCancelled},
}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusRegistered, StatusAttended, StatusLeft, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether the registration holds a seat.
func (s RegistrationStatus) Active() bool {
	return s != StatusCancelled
}

// CanTransition reports whether a registration may move from one status to
// another.
func CanTransition(from, to RegistrationStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Ticket is the scannable artifact attached to a registration. Payload is
// the check-in credential and never changes once issued.
type Ticket struct {
	Payload  string    `json:"payload"`
	Image    []byte    `json:"-"`
	IssuedAt time.Time `json:"issuedAt"`
}

// DataURL returns the image as an inline PNG data URL.
func (t *Ticket) DataURL() string {
	if t == nil || len(t.Image) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(t.Image)
}

// Registration represents a user's claim on one seat of an event.
type Registration struct {
	ID        string             `json:"id"`
	EventID   string             `json:"eventId"`
	UserID    string             `json:"userId"`
	Status    RegistrationStatus `json:"status"`
	Ticket    *Ticket            `json:"ticket,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// HasTicket reports whether a ticket was already issued.
func (r *Registration) HasTicket() bool {
	return r.Ticket != nil && r.Ticket.Payload != ""
}

// EventSnapshot is the slice of an event shown next to a registration. It is
// read at query time, never stored with the registration.
type EventSnapshot struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	StartsAt  time.Time   `json:"date"`
	Location  string      `json:"location"`
	PosterURL string      `json:"posterUrl,omitempty"`
	Status    EventStatus `json:"status"`
}

// SnapshotOf extracts the snapshot fields of e.
func SnapshotOf(e *Event) EventSnapshot {
	return EventSnapshot{
		ID:        e.ID,
		Title:     e.Title,
		StartsAt:  e.StartsAt,
		Location:  e.Location,
		PosterURL: e.PosterURL,
		Status:    e.Status,
	}
}

// RegistrationView is a registration joined with its event.
type RegistrationView struct {
	Registration
	Event     EventSnapshot `json:"event"`
	TicketURL string        `json:"qrCodeDataUrl,omitempty"`
}

// Participant is a registration joined with the attendee's identity.
type Participant struct {
	Registration
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CheckInRequest is the payload for moving a participant's status.
type CheckInRequest struct {
	UserID string             `json:"userId"`
	Status RegistrationStatus `json:"status"`
}

// ScanRequest carries a payload read from a ticket image.
type ScanRequest struct {
	Payload string `json:"payload"`
}

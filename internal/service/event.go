package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/kafka"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

const (
	maxCapacity    = 100_000
	maxTitleLength = 200
)

// EventService orchestrates event-related business operations.
type EventService struct {
	events repository.EventRepository
	audit  audit
	log    logger.Logger
}

// NewEventService constructs an EventService with its dependencies.
func NewEventService(events repository.EventRepository, producer kafka.Producer, l logger.Logger) *EventService {
	return &EventService{events: events, audit: audit{producer: producer, log: l}, log: l}
}

// Create validates the request and stores a pending event owned by actor.
func (s *EventService) Create(ctx context.Context, actor model.Actor, req model.CreateEventRequest) (*model.Event, error) {
	if !actor.CanOrganize() {
		return nil, apperr.Forbidden("only organizers can create events")
	}

	e := &model.Event{
		Title:       strings.TrimSpace(req.Title),
		Description: strings.TrimSpace(req.Description),
		StartsAt:    req.Date.UTC(),
		Location:    strings.TrimSpace(req.Location),
		Category:    strings.TrimSpace(req.Category),
		Price:       req.Price,
		Capacity:    req.Capacity,
		PosterURL:   strings.TrimSpace(req.PosterURL),
		OrganizerID: actor.UserID,
		Status:      model.EventPending,
	}
	if err := validateEvent(e); err != nil {
		return nil, err
	}

	if err := s.events.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.log.Info("event created", "event_id", e.ID, "organizer_id", e.OrganizerID)
	s.audit.lifecycle(ctx, kafka.ActionCreated, actor, e)
	return e, nil
}

// Get returns a single event with its live registration count.
func (s *EventService) Get(ctx context.Context, id string) (*model.EventView, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "id", Msg: "required"}})
	}
	return s.events.GetView(ctx, id)
}

// List returns the events matching every set filter, by start date.
func (s *EventService) List(ctx context.Context, f model.EventFilter) ([]model.EventView, error) {
	f = f.Normalize()
	if f.Status != "" && !f.Status.Valid() {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "status", Msg: "must be pending, approved or rejected"}})
	}
	events, err := s.events.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}

// Update applies patch on behalf of the event's organizer or a moderator.
// Capacity cannot drop below the seats already taken.
func (s *EventService) Update(ctx context.Context, actor model.Actor, id string, patch model.UpdateEventRequest) (*model.Event, error) {
	if patch.Empty() {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "body", Msg: "no fields to update"}})
	}

	updated, err := s.events.Update(ctx, id, func(e *model.Event, active int) error {
		if !actor.CanManage(e) {
			return apperr.Forbidden("not authorized to update this event")
		}
		patch.Apply(e)
		if err := validateEvent(e); err != nil {
			return err
		}
		if e.Capacity < active {
			return apperr.InvalidState("capacity %d is below the %d seats already taken", e.Capacity, active)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("event updated", "event_id", id, "actor_id", actor.UserID)
	s.audit.lifecycle(ctx, kafka.ActionUpdated, actor, updated)
	return updated, nil
}

// Delete removes an event that nobody holds a seat for.
func (s *EventService) Delete(ctx context.Context, actor model.Actor, id string) error {
	removed, err := s.events.Delete(ctx, id, func(e *model.Event, active int) error {
		if !actor.CanManage(e) {
			return apperr.Forbidden("not authorized to delete this event")
		}
		return refuseActive(active)
	})
	if err != nil {
		return err
	}

	s.log.Info("event deleted", "event_id", id, "actor_id", actor.UserID)
	s.audit.lifecycle(ctx, kafka.ActionDeleted, actor, removed)
	return nil
}

func refuseActive(active int) error {
	if active > 0 {
		return apperr.InvalidState("event has %d active registrations", active)
	}
	return nil
}

func validateEvent(e *model.Event) error {
	var errs []apperr.FieldError
	switch {
	case e.Title == "":
		errs = append(errs, apperr.FieldError{Field: "title", Msg: "required"})
	case utf8.RuneCountInString(e.Title) > maxTitleLength:
		errs = append(errs, apperr.FieldError{Field: "title", Msg: fmt.Sprintf("must be at most %d characters", maxTitleLength)})
	}
	if e.StartsAt.IsZero() {
		errs = append(errs, apperr.FieldError{Field: "date", Msg: "required"})
	}
	if e.Location == "" {
		errs = append(errs, apperr.FieldError{Field: "location", Msg: "required"})
	}
	switch {
	case e.Capacity <= 0:
		errs = append(errs, apperr.FieldError{Field: "capacity", Msg: "must be a positive integer"})
	case e.Capacity > maxCapacity:
		errs = append(errs, apperr.FieldError{Field: "capacity", Msg: "cannot exceed 100,000"})
	}
	switch {
	case math.IsNaN(e.Price) || math.IsInf(e.Price, 0):
		errs = append(errs, apperr.FieldError{Field: "price", Msg: "must be a finite number"})
	case e.Price < 0:
		errs = append(errs, apperr.FieldError{Field: "price", Msg: "must not be negative"})
	}
	return apperr.Validation(errs)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/kafka"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
	"github.com/Shivanand-hulikatti/campus-events/internal/telemetry"
	"github.com/Shivanand-hulikatti/campus-events/internal/ticket"
)

// maxStatusRaces bounds how often a status change re-reads a registration
// that moved underneath it.
const maxStatusRaces = 5

type RegistrationDeps struct {
	Events        repository.EventRepository
	Registrations repository.RegistrationRepository
	Users         repository.UserDirectory
	Issuer        *ticket.Issuer
	Outbox        Outbox
	Sender        TicketSender
	Producer      kafka.Producer
	Logger        logger.Logger
}

// RegistrationService owns the registration ledger: booking seats, moving
// attendees through check-in and check-out, and listing who is coming.
type RegistrationService struct {
	events repository.EventRepository
	regs   repository.RegistrationRepository
	users  repository.UserDirectory
	issuer *ticket.Issuer
	outbox Outbox
	sender TicketSender
	audit  audit
	log    logger.Logger
}

func NewRegistrationService(d RegistrationDeps) *RegistrationService {
	return &RegistrationService{
		events: d.Events,
		regs:   d.Registrations,
		users:  d.Users,
		issuer: d.Issuer,
		outbox: d.Outbox,
		sender: d.Sender,
		audit:  audit{producer: d.Producer, log: d.Logger},
		log:    d.Logger,
	}
}

// Register books a seat for actor. Once the booking is stored the ticket is
// issued and its email queued; failures in those steps are logged and never
// undo the registration.
func (s *RegistrationService) Register(ctx context.Context, actor model.Actor, eventID string) (reg *model.Registration, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "registration.Register",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() { telemetry.End(span, err) }()

	if strings.TrimSpace(actor.UserID) == "" {
		return nil, apperr.Forbidden("authentication required")
	}

	reg, err = s.regs.Book(ctx, eventID, actor.UserID)
	if err != nil {
		return nil, err
	}
	s.log.Info("registration created", "registration_id", reg.ID, "event_id", eventID, "user_id", actor.UserID)
	s.audit.registration(ctx, actor, reg, "")

	if t, _, err := s.issuer.Issue(ctx, reg); err != nil {
		s.log.Warn("ticket issuance deferred", "registration_id", reg.ID, "error", err)
	} else {
		reg.Ticket = t
	}

	if err := s.outbox.Enqueue(ctx, notify.Job{RegistrationID: reg.ID}); err != nil {
		s.log.Warn("ticket email not queued", "registration_id", reg.ID, "error", err)
	}
	return reg, nil
}

// SetStatus moves a participant through check-in and check-out. Only the
// event's organizer or a moderator may do it.
func (s *RegistrationService) SetStatus(ctx context.Context, actor model.Actor, eventID, userID string, status model.RegistrationStatus) (*model.Registration, error) {
	if !status.Valid() {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "status", Msg: "must be registered, attended, left or cancelled"}})
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "userId", Msg: "required"}})
	}
	if _, err := s.managedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}

	reg, err := s.lookup(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, reg, status)
}

// Cancel releases the seat of userID. Attendees may cancel their own
// registration; staff may cancel anyone's.
func (s *RegistrationService) Cancel(ctx context.Context, actor model.Actor, eventID, userID string) (*model.Registration, error) {
	if userID == "" {
		userID = actor.UserID
	}
	if userID != actor.UserID {
		if _, err := s.managedEvent(ctx, actor, eventID); err != nil {
			return nil, err
		}
	}

	reg, err := s.lookup(ctx, eventID, userID)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, actor, reg, model.StatusCancelled)
}

// Scan checks in the holder of a scanned ticket. The payload must decode,
// belong to eventID and equal the ticket stored on the registration.
func (s *RegistrationService) Scan(ctx context.Context, actor model.Actor, eventID, payload string) (*model.Registration, error) {
	if _, err := s.managedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}

	p, err := s.issuer.Codec().Decode(payload)
	if err != nil {
		return nil, err
	}
	if p.EventID != eventID {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "payload", Msg: "ticket belongs to a different event"}})
	}

	reg, err := s.regs.Get(ctx, p.RegistrationID)
	if err != nil {
		return nil, err
	}
	if reg.EventID != p.EventID || reg.UserID != p.UserID || !ticket.Matches(reg, payload) {
		return nil, apperr.Validation([]apperr.FieldError{{Field: "payload", Msg: "ticket does not match any registration"}})
	}
	return s.transition(ctx, actor, reg, model.StatusAttended)
}

// transition applies one state-machine step with a compare-and-set write.
// If another writer moved the registration first the step is re-evaluated
// against the new status.
func (s *RegistrationService) transition(ctx context.Context, actor model.Actor, reg *model.Registration, to model.RegistrationStatus) (*model.Registration, error) {
	for range maxStatusRaces {
		from := reg.Status
		if !model.CanTransition(from, to) {
			return nil, apperr.New(apperr.KindInvalidTransition, "cannot move registration from %s to %s", from, to)
		}

		updated, err := s.regs.CompareAndSetStatus(ctx, reg.ID, from, to)
		if errors.Is(err, repository.ErrStaleStatus) {
			if reg, err = s.regs.Get(ctx, reg.ID); err != nil {
				return nil, err
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		s.log.Info("registration status changed",
			"registration_id", updated.ID,
			"from", from,
			"to", to,
			"actor_id", actor.UserID,
		)
		s.audit.registration(ctx, actor, updated, from)
		return updated, nil
	}
	return nil, fmt.Errorf("registration %s: status kept changing concurrently", reg.ID)
}

// lookup finds the registration of userID for eventID, preferring the active
// one. A user with only cancelled registrations gets the latest of those, so
// transitions out of cancelled report InvalidTransition rather than NotFound.
func (s *RegistrationService) lookup(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := s.regs.GetActive(ctx, eventID, userID)
	if err == nil || !errors.Is(err, apperr.ErrNotFound) {
		return reg, err
	}

	all, lerr := s.regs.ListByEvent(ctx, eventID, true)
	if lerr != nil {
		return nil, lerr
	}
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].UserID == userID {
			return &all[i], nil
		}
	}
	return nil, apperr.NotFound("user %s is not registered for event %s", userID, eventID)
}

// managedEvent loads the event and checks actor may run its door.
func (s *RegistrationService) managedEvent(ctx context.Context, actor model.Actor, eventID string) (*model.Event, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(e) {
		return nil, apperr.Forbidden("only the event organizer or an admin can manage participants")
	}
	return e, nil
}

// ListForUser returns actor's registrations with their events, oldest first.
func (s *RegistrationService) ListForUser(ctx context.Context, actor model.Actor) ([]model.RegistrationView, error) {
	views, err := s.regs.ListByUser(ctx, actor.UserID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	for i := range views {
		views[i].TicketURL = views[i].Ticket.DataURL()
	}
	return views, nil
}

// ListForEvent returns the event's participants with their names and emails.
// Cancelled registrations are left out unless includeCancelled is set.
func (s *RegistrationService) ListForEvent(ctx context.Context, actor model.Actor, eventID string, includeCancelled bool) ([]model.Participant, error) {
	if _, err := s.managedEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}
	return participants(ctx, s.regs, s.users, eventID, includeCancelled)
}

// StatusFor reports whether userID holds an active registration for eventID.
func (s *RegistrationService) StatusFor(ctx context.Context, eventID, userID string) (bool, error) {
	_, err := s.regs.GetActive(ctx, eventID, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ticket returns actor's ticket for eventID, issuing it if it is missing.
func (s *RegistrationService) Ticket(ctx context.Context, actor model.Actor, eventID string) (*model.Ticket, error) {
	reg, err := s.regs.GetActive(ctx, eventID, actor.UserID)
	if err != nil {
		return nil, err
	}
	t, _, err := s.issuer.Issue(ctx, reg)
	return t, err
}

// ResendTicket emails actor's ticket for eventID again.
func (s *RegistrationService) ResendTicket(ctx context.Context, actor model.Actor, eventID string) (notify.SendResult, error) {
	reg, err := s.regs.GetActive(ctx, eventID, actor.UserID)
	if err != nil {
		return notify.SendResult{}, err
	}
	return s.sender.SendTicket(ctx, reg)
}

func participants(ctx context.Context, regs repository.RegistrationRepository, users repository.UserDirectory, eventID string, includeCancelled bool) ([]model.Participant, error) {
	list, err := regs.ListByEvent(ctx, eventID, includeCancelled)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	ids := make([]string, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.UserID)
	}
	byID, err := users.GetUsers(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}

	out := make([]model.Participant, 0, len(list))
	for _, r := range list {
		u := byID[r.UserID]
		out = append(out, model.Participant{Registration: r, Name: u.Name, Email: u.Email})
	}
	return out, nil
}

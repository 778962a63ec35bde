// Package notify delivers tickets and reminders by email. Registrations only
// enqueue jobs; workers drain the queue and retry failed deliveries.
package notify

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
	"github.com/Shivanand-hulikatti/campus-events/internal/telemetry"
	"github.com/Shivanand-hulikatti/campus-events/internal/ticket"
)

// SendResult reports whether the ticket had to be generated before sending.
type SendResult struct {
	Regenerated bool `json:"regenerated"`
}

// ReminderResult counts confirmed and failed reminder deliveries.
type ReminderResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

type Deps struct {
	Events        repository.EventRepository
	Registrations repository.RegistrationRepository
	Users         repository.UserDirectory
	Issuer        *ticket.Issuer
	Mailer        Mailer
	Logger        logger.Logger
	// Concurrency bounds the reminder fan-out.
	Concurrency int
}

type Dispatcher struct {
	events      repository.EventRepository
	regs        repository.RegistrationRepository
	users       repository.UserDirectory
	issuer      *ticket.Issuer
	mailer      Mailer
	log         logger.Logger
	concurrency int
}

func NewDispatcher(d Deps) *Dispatcher {
	if d.Concurrency < 1 {
		d.Concurrency = 1
	}
	return &Dispatcher{
		events:      d.Events,
		regs:        d.Registrations,
		users:       d.Users,
		issuer:      d.Issuer,
		mailer:      d.Mailer,
		log:         d.Logger,
		concurrency: d.Concurrency,
	}
}

// SendTicket emails the ticket of reg to its attendee, issuing the ticket
// first when it does not exist yet. A transport failure is returned as a
// DeliveryFailure; the registration is never touched beyond ticket issuance.
func (d *Dispatcher) SendTicket(ctx context.Context, reg *model.Registration) (res SendResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "notify.SendTicket",
		trace.WithAttributes(attribute.String("registration.id", reg.ID)))
	defer func() { telemetry.End(span, err) }()

	event, err := d.events.Get(ctx, reg.EventID)
	if err != nil {
		return SendResult{}, err
	}
	user, err := d.users.GetUser(ctx, reg.UserID)
	if err != nil {
		return SendResult{}, err
	}

	created, err := d.deliver(ctx, event, user, reg, false)
	return SendResult{Regenerated: created}, err
}

// SendEventReminders emails every registered attendee of the event. Only the
// event's organizer may trigger it. Individual failures are counted and never
// stop the batch.
func (d *Dispatcher) SendEventReminders(ctx context.Context, actor model.Actor, eventID string) (res ReminderResult, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "notify.SendEventReminders",
		trace.WithAttributes(attribute.String("event.id", eventID)))
	defer func() { telemetry.End(span, err) }()

	event, err := d.events.Get(ctx, eventID)
	if err != nil {
		return ReminderResult{}, err
	}
	if !event.OwnedBy(actor.UserID) {
		return ReminderResult{}, apperr.Forbidden("only the event organizer can send reminders")
	}

	regs, err := d.regs.ListByStatus(ctx, eventID, model.StatusRegistered)
	if err != nil {
		return ReminderResult{}, err
	}
	ids := make([]string, 0, len(regs))
	for _, r := range regs {
		ids = append(ids, r.UserID)
	}
	users, err := d.users.GetUsers(ctx, ids)
	if err != nil {
		return ReminderResult{}, err
	}

	var sent, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.concurrency)

	for i := range regs {
		reg := &regs[i]
		g.Go(func() error {
			user, ok := users[reg.UserID]
			if !ok {
				d.log.Warn("reminder skipped, attendee not found", "event_id", eventID, "user_id", reg.UserID)
				failed.Add(1)
				return nil
			}
			if _, err := d.deliver(ctx, event, &user, reg, true); err != nil {
				failed.Add(1)
				return nil
			}
			sent.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	res = ReminderResult{Sent: int(sent.Load()), Failed: int(failed.Load())}
	d.log.Info("event reminders sent", "event_id", eventID, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

func (d *Dispatcher) deliver(ctx context.Context, event *model.Event, user *model.User, reg *model.Registration, reminder bool) (created bool, err error) {
	if user.Email == "" {
		d.log.Warn("ticket not sent, attendee has no email", "registration_id", reg.ID, "user_id", user.ID)
		return false, apperr.New(apperr.KindDeliveryFailure, "attendee %s has no email address", user.ID)
	}

	t, created, err := d.issuer.Issue(ctx, reg)
	if err != nil {
		return false, err
	}

	msg, err := ticketMessage(user.Email, event, reg.ID, t, reminder)
	if err != nil {
		return created, err
	}

	if err := d.mailer.Send(ctx, msg); err != nil {
		d.log.Warn("ticket email failed",
			"registration_id", reg.ID,
			"event_id", event.ID,
			"to", user.Email,
			"error", err,
		)
		return created, apperr.Wrap(apperr.KindDeliveryFailure, err, "could not deliver ticket to %s", user.Email)
	}

	d.log.Debug("ticket email sent", "registration_id", reg.ID, "to", user.Email, "reminder", reminder)
	return created, nil
}

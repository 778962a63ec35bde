// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer. Every operation takes the
// calling actor explicitly.
package service

import (
	"context"

	"github.com/Shivanand-hulikatti/campus-events/internal/kafka"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
)

// Outbox receives delivery jobs for registrations that already committed.
type Outbox interface {
	Enqueue(ctx context.Context, job notify.Job) error
}

// TicketSender emails a registration's ticket.
type TicketSender interface {
	SendTicket(ctx context.Context, reg *model.Registration) (notify.SendResult, error)
}

// audit publishes to the audit stream. The change it describes has already
// been stored, so a publish failure is logged and swallowed.
type audit struct {
	producer kafka.Producer
	log      logger.Logger
}

func (a audit) lifecycle(ctx context.Context, action string, actor model.Actor, e *model.Event) {
	err := a.producer.PublishEventLifecycle(ctx, kafka.EventLifecycleMessage{
		Action:    action,
		ActorID:   actor.UserID,
		ActorRole: actor.Role,
		Event:     *e,
	})
	if err != nil {
		a.log.Error("audit publish failed", "action", action, "event_id", e.ID, "error", err)
	}
}

func (a audit) registration(ctx context.Context, actor model.Actor, reg *model.Registration, from model.RegistrationStatus) {
	err := a.producer.PublishRegistration(ctx, kafka.RegistrationMessage{
		RegistrationID: reg.ID,
		EventID:        reg.EventID,
		UserID:         reg.UserID,
		From:           from,
		To:             reg.Status,
		ActorID:        actor.UserID,
	})
	if err != nil {
		a.log.Error("audit publish failed", "registration_id", reg.ID, "status", reg.Status, "error", err)
	}
}

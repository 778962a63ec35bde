package service

import (
	"context"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/kafka"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

// ModerationService gates events before they open for registration.
type ModerationService struct {
	events repository.EventRepository
	audit  audit
	log    logger.Logger
}

func NewModerationService(events repository.EventRepository, producer kafka.Producer, l logger.Logger) *ModerationService {
	return &ModerationService{events: events, audit: audit{producer: producer, log: l}, log: l}
}

// Approve opens the event for registration. Approving an approved event is
// a no-op.
func (s *ModerationService) Approve(ctx context.Context, actor model.Actor, id string) (*model.Event, error) {
	if !actor.IsModerator() {
		return nil, apperr.Forbidden("only moderators can approve events")
	}

	current, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == model.EventApproved {
		return current, nil
	}

	approved, err := s.events.Update(ctx, id, func(e *model.Event, _ int) error {
		e.Status = model.EventApproved
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("event approved", "event_id", id, "moderator_id", actor.UserID)
	s.audit.lifecycle(ctx, kafka.ActionApproved, actor, approved)
	return approved, nil
}

// Reject deletes the event and returns its final state, marked rejected.
// The audit stream keeps the full record.
func (s *ModerationService) Reject(ctx context.Context, actor model.Actor, id string) (*model.Event, error) {
	if !actor.IsModerator() {
		return nil, apperr.Forbidden("only moderators can reject events")
	}

	removed, err := s.events.Delete(ctx, id, func(_ *model.Event, active int) error {
		return refuseActive(active)
	})
	if err != nil {
		return nil, err
	}
	removed.Status = model.EventRejected

	s.log.Info("event rejected", "event_id", id, "moderator_id", actor.UserID)
	s.audit.lifecycle(ctx, kafka.ActionRejected, actor, removed)
	return removed, nil
}

// Pending lists events awaiting moderation.
func (s *ModerationService) Pending(ctx context.Context, actor model.Actor) ([]model.EventView, error) {
	if !actor.IsModerator() {
		return nil, apperr.Forbidden("only moderators can view the moderation queue")
	}
	return s.events.List(ctx, model.EventFilter{Status: model.EventPending})
}

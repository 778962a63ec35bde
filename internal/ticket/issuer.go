package ticket

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
	"github.com/Shivanand-hulikatti/campus-events/internal/telemetry"
)

// Issuer attaches a ticket to a registration at most once.
type Issuer struct {
	regs  repository.RegistrationRepository
	codec *Codec
	log   logger.Logger
	now   func() time.Time
	group singleflight.Group
}

func NewIssuer(regs repository.RegistrationRepository, codec *Codec, log logger.Logger) *Issuer {
	return &Issuer{
		regs:  regs,
		codec: codec,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Codec returns the codec tickets are rendered with.
func (i *Issuer) Codec() *Codec { return i.codec }

type issueResult struct {
	ticket  *model.Ticket
	created bool
}

// Issue returns the ticket of reg, generating and storing one if none exists.
// created reports whether this call generated it. Concurrent calls for one
// registration collapse in process, and the store keeps the first ticket
// written across processes.
func (i *Issuer) Issue(ctx context.Context, reg *model.Registration) (t *model.Ticket, created bool, err error) {
	if reg.HasTicket() {
		return reg.Ticket, false, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "ticket.Issue")
	defer func() { telemetry.End(span, err) }()

	// Shared work outlives any single caller.
	shared := context.WithoutCancel(ctx)
	v, err, joined := i.group.Do(reg.ID, func() (any, error) {
		return i.issue(shared, reg.ID)
	})
	if err != nil {
		return nil, false, err
	}
	res := v.(issueResult)
	return res.ticket, res.created && !joined, nil
}

func (i *Issuer) issue(ctx context.Context, registrationID string) (issueResult, error) {
	current, err := i.regs.Get(ctx, registrationID)
	if err != nil {
		return issueResult{}, err
	}
	if current.HasTicket() {
		return issueResult{ticket: current.Ticket}, nil
	}

	payload, err := i.codec.Encode(PayloadFor(current))
	if err != nil {
		return issueResult{}, fmt.Errorf("encode ticket: %w", err)
	}
	image, err := i.codec.Render(payload)
	if err != nil {
		return issueResult{}, err
	}

	stored, err := i.regs.AttachTicket(ctx, registrationID, model.Ticket{
		Payload:  payload,
		Image:    image,
		IssuedAt: i.now(),
	})
	if err != nil {
		return issueResult{}, fmt.Errorf("store ticket: %w", err)
	}
	if !stored.HasTicket() {
		return issueResult{}, fmt.Errorf("store ticket: registration %s has no ticket after write", registrationID)
	}

	created := stored.Ticket.Payload == payload
	if created {
		i.log.Debug("ticket issued", "registration_id", registrationID, "event_id", stored.EventID)
	}
	return issueResult{ticket: stored.Ticket, created: created}, nil
}

package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/kafka"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/notify"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository/memory"
	"github.com/Shivanand-hulikatti/campus-events/internal/ticket"
)

var (
	admin     = model.Actor{UserID: "admin-1", Role: model.RoleAdmin}
	organizer = model.Actor{UserID: "org-1", Role: model.RoleOrganizer}
	stranger  = model.Actor{UserID: "org-2", Role: model.RoleOrganizer}
)

func attendee(id string) model.Actor {
	return model.Actor{UserID: id, Role: model.RoleCustomer}
}

// recordingProducer keeps every audit message in memory.
type recordingProducer struct {
	mu            sync.Mutex
	lifecycle     []kafka.EventLifecycleMessage
	registrations []kafka.RegistrationMessage
}

func (p *recordingProducer) PublishEventLifecycle(_ context.Context, msg kafka.EventLifecycleMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lifecycle = append(p.lifecycle, msg)
	return nil
}

func (p *recordingProducer) PublishRegistration(_ context.Context, msg kafka.RegistrationMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registrations = append(p.registrations, msg)
	return nil
}

func (p *recordingProducer) Close() error { return nil }

type failingOutbox struct{}

func (failingOutbox) Enqueue(context.Context, notify.Job) error { return notify.ErrQueueFull }

type env struct {
	store      *memory.Store
	producer   *recordingProducer
	queue      *notify.MemoryQueue
	events     *EventService
	moderation *ModerationService
	regs       *RegistrationService
	export     *ExportService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	l := logger.NewNop()
	s := memory.NewStore()
	p := &recordingProducer{}
	q := notify.NewMemoryQueue(256)
	issuer := ticket.NewIssuer(s.Registrations(), ticket.NewCodec(128, "medium"), l)
	disp := notify.NewDispatcher(notify.Deps{
		Events: s.Events(), Registrations: s.Registrations(), Users: s.Users(),
		Issuer: issuer, Mailer: notify.LogMailer{Logger: l}, Logger: l, Concurrency: 2,
	})

	return &env{
		store:      s,
		producer:   p,
		queue:      q,
		events:     NewEventService(s.Events(), p, l),
		moderation: NewModerationService(s.Events(), p, l),
		regs: NewRegistrationService(RegistrationDeps{
			Events: s.Events(), Registrations: s.Registrations(), Users: s.Users(),
			Issuer: issuer, Outbox: q, Sender: disp, Producer: p, Logger: l,
		}),
		export: NewExportService(s.Events(), s.Registrations(), s.Users()),
	}
}

func (e *env) createEvent(t *testing.T, capacity int) *model.Event {
	t.Helper()
	ev, err := e.events.Create(context.Background(), organizer, model.CreateEventRequest{
		Title:    "Spring Hackathon",
		Date:     time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		Location: "Engineering Building",
		Category: "tech",
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	return ev
}

func (e *env) approvedEvent(t *testing.T, capacity int) *model.Event {
	t.Helper()
	ev := e.createEvent(t, capacity)
	if _, err := e.moderation.Approve(context.Background(), admin, ev.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	return ev
}

func TestRegistrationScenario(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.createEvent(t, 2)

	if _, err := e.regs.Register(ctx, attendee("a"), ev.ID); !errors.Is(err, apperr.ErrInvalidState) {
		t.Fatalf("pending event: got %v, want InvalidState", err)
	}
	if _, err := e.moderation.Approve(ctx, admin, ev.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := e.regs.Register(ctx, attendee("a"), ev.ID); err != nil {
		t.Fatalf("register a: %v", err)
	}
	if _, err := e.regs.Register(ctx, attendee("b"), ev.ID); err != nil {
		t.Fatalf("register b: %v", err)
	}
	if _, err := e.regs.Register(ctx, attendee("c"), ev.ID); !errors.Is(err, apperr.ErrCapacityExceeded) {
		t.Fatalf("register c: got %v, want CapacityExceeded", err)
	}
	if _, err := e.regs.Register(ctx, attendee("a"), ev.ID); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("register a again: got %v, want Conflict", err)
	}

	view, _ := e.events.Get(ctx, ev.ID)
	if view.RegisteredCount != 2 {
		t.Fatalf("registeredCount = %d", view.RegisteredCount)
	}
}

func TestRegisterIssuesTicketAndQueuesEmail(t *testing.T) {
	e := newEnv(t)
	ev := e.approvedEvent(t, 5)

	reg, err := e.regs.Register(context.Background(), attendee("a"), ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !reg.HasTicket() {
		t.Fatal("ticket not issued")
	}
	job, err := e.queue.Dequeue(context.Background())
	if err != nil || job.RegistrationID != reg.ID {
		t.Fatalf("job = %+v, err %v", job, err)
	}
	if len(e.producer.registrations) != 1 || e.producer.registrations[0].To != model.StatusRegistered {
		t.Fatalf("audit = %+v", e.producer.registrations)
	}
}

func TestRegisterSucceedsWhenQueueFails(t *testing.T) {
	e := newEnv(t)
	ev := e.approvedEvent(t, 5)
	e.regs.outbox = failingOutbox{}

	if _, err := e.regs.Register(context.Background(), attendee("a"), ev.ID); err != nil {
		t.Fatalf("register must not fail on queue errors: %v", err)
	}
	ok, _ := e.regs.StatusFor(context.Background(), ev.ID, "a")
	if !ok {
		t.Fatal("registration was not kept")
	}
}

func TestConcurrentRegistrationRespectsCapacity(t *testing.T) {
	e := newEnv(t)
	const capacity, attempts = 7, 40
	ev := e.approvedEvent(t, capacity)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := e.regs.Register(context.Background(), attendee(string(rune('A'+i))), ev.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrCapacityExceeded):
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != capacity || full != attempts-capacity {
		t.Fatalf("ok=%d full=%d, want %d and %d", ok, full, capacity, attempts-capacity)
	}
}

func TestConcurrentDuplicateRegistration(t *testing.T) {
	e := newEnv(t)
	ev := e.approvedEvent(t, 10)

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := e.regs.Register(context.Background(), attendee("same"), ev.ID)
			errs <- err
		}()
	}
	first, second := <-errs, <-errs
	if (first == nil) == (second == nil) {
		t.Fatalf("expected exactly one success, got %v and %v", first, second)
	}
	if !errors.Is(first, apperr.ErrConflict) && !errors.Is(second, apperr.ErrConflict) {
		t.Fatalf("expected a Conflict, got %v and %v", first, second)
	}
}

func TestStateMachine(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.approvedEvent(t, 5)
	if _, err := e.regs.Register(ctx, attendee("a"), ev.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := e.regs.SetStatus(ctx, organizer, ev.ID, "a", model.StatusAttended); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if _, err := e.regs.SetStatus(ctx, organizer, ev.ID, "a", model.StatusRegistered); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("attended -> registered: got %v", err)
	}
	if _, err := e.regs.SetStatus(ctx, admin, ev.ID, "a", model.StatusLeft); err != nil {
		t.Fatalf("check out: %v", err)
	}
	if _, err := e.regs.SetStatus(ctx, organizer, ev.ID, "a", model.StatusCancelled); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("left -> cancelled: got %v", err)
	}
	if _, err := e.regs.SetStatus(ctx, stranger, ev.ID, "a", model.StatusAttended); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("stranger: got %v", err)
	}
	if _, err := e.regs.SetStatus(ctx, organizer, ev.ID, "a", "vip"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("unknown status: got %v", err)
	}
}

func TestCancelFreesSeatAndIsTerminal(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.approvedEvent(t, 1)
	if _, err := e.regs.Register(ctx, attendee("a"), ev.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := e.regs.Cancel(ctx, attendee("b"), ev.ID, "a"); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("other attendee cancelling: got %v", err)
	}
	if _, err := e.regs.Cancel(ctx, attendee("a"), ev.ID, ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if ok, _ := e.regs.StatusFor(ctx, ev.ID, "a"); ok {
		t.Fatal("cancelled registration still reported active")
	}
	if _, err := e.regs.SetStatus(ctx, organizer, ev.ID, "a", model.StatusAttended); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("cancelled -> attended: got %v", err)
	}
	if _, err := e.regs.Register(ctx, attendee("b"), ev.ID); err != nil {
		t.Fatalf("seat not released: %v", err)
	}
}

func TestScanChecksIn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.approvedEvent(t, 5)
	other := e.approvedEvent(t, 5)
	reg, err := e.regs.Register(ctx, attendee("a"), ev.ID)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := e.regs.Scan(ctx, organizer, other.ID, reg.Ticket.Payload); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("wrong event: got %v", err)
	}
	if _, err := e.regs.Scan(ctx, organizer, ev.ID, "garbage"); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("garbage: got %v", err)
	}

	got, err := e.regs.Scan(ctx, organizer, ev.ID, reg.Ticket.Payload)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if got.Status != model.StatusAttended {
		t.Fatalf("status = %s", got.Status)
	}
	if _, err := e.regs.Scan(ctx, organizer, ev.ID, reg.Ticket.Payload); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Fatalf("second scan: got %v", err)
	}
}

func TestTicketIsStable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.approvedEvent(t, 5)
	reg, _ := e.regs.Register(ctx, attendee("a"), ev.ID)

	first, err := e.regs.Ticket(ctx, attendee("a"), ev.ID)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := e.regs.Ticket(ctx, attendee("a"), ev.ID)
	if first.Payload != reg.Ticket.Payload || second.Payload != first.Payload {
		t.Fatal("ticket payload changed")
	}

	res, err := e.regs.ResendTicket(ctx, attendee("a"), ev.ID)
	if err != nil || res.Regenerated {
		t.Fatalf("resend: res=%+v err=%v", res, err)
	}
}

func TestListings(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ev := e.approvedEvent(t, 5)
	e.store.PutUser(model.User{ID: "a", Name: "Ada", Email: "ada@campus.test"})
	e.store.PutUser(model.User{ID: "b", Name: "Ben", Email: "ben@campus.test"})
	e.regs.Register(ctx, attendee("a"), ev.ID)
	e.regs.Register(ctx, attendee("b"), ev.ID)
	e.regs.Cancel(ctx, attendee("b"), ev.ID, "")

	mine, err := e.regs.ListForUser(ctx, attendee("a"))
	if err != nil || len(mine) != 1 {
		t.Fatalf("mine = %+v, err %v", mine, err)
	}
	if mine[0].Event.Title != "Spring Hackathon" || mine[0].TicketURL == "" {
		t.Fatalf("view not joined: %+v", mine[0].Event)
	}

	people, err := e.regs.ListForEvent(ctx, organizer, ev.ID, false)
	if err != nil || len(people) != 1 || people[0].Name != "Ada" {
		t.Fatalf("participants = %+v, err %v", people, err)
	}
	all, _ := e.regs.ListForEvent(ctx, admin, ev.ID, true)
	if len(all) != 2 {
		t.Fatalf("with cancelled = %d", len(all))
	}
	if _, err := e.regs.ListForEvent(ctx, attendee("a"), ev.ID, false); !errors.Is(err, apperr.ErrForbidden) {
		t.Fatalf("attendee listing: got %v", err)
	}
}

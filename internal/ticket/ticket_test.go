package ticket

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository/memory"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func TestEncodeIsStableAndDecodes(t *testing.T) {
	c := NewCodec(128, "medium")
	p := Payload{RegistrationID: "r1", EventID: "e1", UserID: "u1"}

	first, err := c.Encode(p)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	second, _ := c.Encode(p)
	if first != second {
		t.Fatalf("encoding not stable: %q vs %q", first, second)
	}
	if want := `{"registrationId":"r1","eventId":"e1","userId":"u1"}`; first != want {
		t.Fatalf("payload = %s, want %s", first, want)
	}

	got, err := c.Decode(" " + first + "\n")
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != p {
		t.Fatalf("decoded %+v, want %+v", got, p)
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	c := NewCodec(128, "")
	tests := []string{
		"",
		"not json",
		`{"registrationId":"r1","eventId":"e1"}`,
		`{"registrationId":"r1","eventId":"e1","userId":"u1","admin":true}`,
		`{"registrationId":"r1","eventId":"e1","userId":"u1"}{}`,
	}
	for _, in := range tests {
		if _, err := c.Decode(in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Decode(%q) = %v, want validation error", in, err)
		}
	}
}

func TestEncodeRequiresIDs(t *testing.T) {
	if _, err := NewCodec(128, "").Encode(Payload{EventID: "e1"}); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRenderProducesPNG(t *testing.T) {
	png, err := NewCodec(128, "high").Render(`{"registrationId":"r1","eventId":"e1","userId":"u1"}`)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !bytes.HasPrefix(png, pngMagic) {
		t.Fatalf("not a png: % x", png[:8])
	}
}

func newRegistration(t *testing.T) (*memory.Store, *model.Registration) {
	t.Helper()
	s := memory.NewStore()
	ctx := context.Background()
	e := &model.Event{
		Title: "Open Day", Location: "Main Hall", Capacity: 5, OrganizerID: "org-1",
		Status: model.EventApproved, StartsAt: time.Now().Add(48 * time.Hour),
	}
	if err := s.Events().Create(ctx, e); err != nil {
		t.Fatal(err)
	}
	reg, err := s.Registrations().Book(ctx, e.ID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	return s, reg
}

func TestIssueTwiceReturnsSameTicket(t *testing.T) {
	s, reg := newRegistration(t)
	issuer := NewIssuer(s.Registrations(), NewCodec(128, "medium"), logger.NewNop())
	ctx := context.Background()

	first, created, err := issuer.Issue(ctx, reg)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !created {
		t.Fatal("first issue should create the ticket")
	}

	// A stale copy without the ticket must still get the stored artifact.
	second, created, err := issuer.Issue(ctx, reg)
	if err != nil {
		t.Fatalf("issue again: %v", err)
	}
	if created {
		t.Fatal("second issue must reuse the ticket")
	}
	if first.Payload != second.Payload || !bytes.Equal(first.Image, second.Image) {
		t.Fatal("ticket changed between issues")
	}

	stored, _ := s.Registrations().Get(ctx, reg.ID)
	if stored.Ticket.Payload != first.Payload {
		t.Fatal("stored ticket differs from issued one")
	}
	decoded, err := issuer.Codec().Decode(stored.Ticket.Payload)
	if err != nil || decoded.RegistrationID != reg.ID || decoded.UserID != "user-1" {
		t.Fatalf("decoded %+v, err %v", decoded, err)
	}
}

func TestIssueConcurrentYieldsOnePayload(t *testing.T) {
	s, reg := newRegistration(t)
	issuer := NewIssuer(s.Registrations(), NewCodec(128, "medium"), logger.NewNop())

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		payloads = map[string]int{}
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tk, _, err := issuer.Issue(context.Background(), reg)
			if err != nil {
				t.Errorf("issue: %v", err)
				return
			}
			mu.Lock()
			payloads[tk.Payload]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(payloads) != 1 {
		t.Fatalf("expected one payload, got %d", len(payloads))
	}
}

// gatedRegistrations holds Get until release is closed and honors the
// caller's context once it proceeds.
type gatedRegistrations struct {
	repository.RegistrationRepository
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedRegistrations) Get(ctx context.Context, id string) (*model.Registration, error) {
	g.once.Do(func() { close(g.entered) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.RegistrationRepository.Get(ctx, id)
}

func TestIssueSurvivesFirstCallerCancel(t *testing.T) {
	s, reg := newRegistration(t)
	regs := &gatedRegistrations{
		RegistrationRepository: s.Registrations(),
		entered:                make(chan struct{}),
		release:                make(chan struct{}),
	}
	issuer := NewIssuer(regs, NewCodec(128, "medium"), logger.NewNop())

	firstCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, _, err := issuer.Issue(firstCtx, reg)
		first <- err
	}()
	<-regs.entered

	second := make(chan *model.Ticket, 1)
	go func() {
		tk, _, err := issuer.Issue(context.Background(), reg)
		if err != nil {
			t.Errorf("second caller: %v", err)
		}
		second <- tk
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	close(regs.release)

	if err := <-first; err != nil {
		t.Fatalf("first caller: %v", err)
	}
	if tk := <-second; tk == nil || tk.Payload == "" {
		t.Fatalf("second caller got %+v", tk)
	}
	stored, _ := s.Registrations().Get(context.Background(), reg.ID)
	if !stored.HasTicket() {
		t.Fatal("ticket was not stored")
	}
}

func TestMatches(t *testing.T) {
	reg := &model.Registration{Ticket: &model.Ticket{Payload: `{"a":1}`}}
	if !Matches(reg, " {\"a\":1} ") {
		t.Fatal("expected match")
	}
	if Matches(reg, `{"a":2}`) || Matches(&model.Registration{}, `{"a":1}`) {
		t.Fatal("unexpected match")
	}
}

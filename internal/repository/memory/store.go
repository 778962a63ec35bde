// Package memory is an in-process implementation of the repository
// contracts. A single mutex guards events and registrations together, which
// makes Book's count-then-insert atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

type Store struct {
	mu     sync.RWMutex
	events map[string]*model.Event
	regs   []*model.Registration // creation order
	byID   map[string]*model.Registration
	users  map[string]model.User
	now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		events: make(map[string]*model.Event),
		byID:   make(map[string]*model.Registration),
		users:  make(map[string]model.User),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Events() repository.EventRepository               { return eventRepo{s} }
func (s *Store) Registrations() repository.RegistrationRepository { return registrationRepo{s} }
func (s *Store) Users() repository.UserDirectory                  { return userDirectory{s} }
func (s *Store) Close()                                           {}

// PutUser seeds the user directory. The identity provider owns users; this
// exists for local runs and tests.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func cloneEvent(e *model.Event) *model.Event {
	c := *e
	return &c
}

func cloneRegistration(r *model.Registration) *model.Registration {
	c := *r
	if r.Ticket != nil {
		t := *r.Ticket
		t.Image = append([]byte(nil), r.Ticket.Image...)
		c.Ticket = &t
	}
	return &c
}

// activeCountLocked counts non-cancelled registrations. Callers hold s.mu.
func (s *Store) activeCountLocked(eventID string) int {
	n := 0
	for _, r := range s.regs {
		if r.EventID == eventID && r.Status.Active() {
			n++
		}
	}
	return n
}

func (s *Store) activeLocked(eventID, userID string) *model.Registration {
	for _, r := range s.regs {
		if r.EventID == eventID && r.UserID == userID && r.Status.Active() {
			return r
		}
	}
	return nil
}

// ─── Events ──────────────────────────────────────────────────────────────────

type eventRepo struct{ s *Store }

func (r eventRepo) Create(_ context.Context, e *model.Event) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.events[e.ID] = cloneEvent(e)
	return nil
}

func (r eventRepo) Get(_ context.Context, id string) (*model.Event, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event %s not found", id)
	}
	return cloneEvent(e), nil
}

func (r eventRepo) GetView(_ context.Context, id string) (*model.EventView, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event %s not found", id)
	}
	v := model.NewEventView(*e, s.activeCountLocked(id))
	return &v, nil
}

func (r eventRepo) List(_ context.Context, f model.EventFilter) ([]model.EventView, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Casers keep state, so each call gets its own.
	fold := cases.Fold()
	needle := fold.String(f.Text)
	var out []model.EventView
	for _, e := range s.events {
		if needle != "" && !strings.Contains(fold.String(e.Title), needle) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.OrganizerID != "" && e.OrganizerID != f.OrganizerID {
			continue
		}
		out = append(out, model.NewEventView(*e, s.activeCountLocked(e.ID)))
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartsAt.Equal(b.StartsAt) {
			return a.StartsAt.Before(b.StartsAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (r eventRepo) Update(_ context.Context, id string, fn repository.EventMutator) (*model.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event %s not found", id)
	}
	next := cloneEvent(current)
	if err := fn(next, s.activeCountLocked(id)); err != nil {
		return nil, err
	}
	next.ID = id
	next.UpdatedAt = s.now()
	s.events[id] = next
	return cloneEvent(next), nil
}

func (r eventRepo) Delete(_ context.Context, id string, guard repository.EventMutator) (*model.Event, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.events[id]
	if !ok {
		return nil, apperr.NotFound("event %s not found", id)
	}
	removed := cloneEvent(current)
	if guard != nil {
		if err := guard(removed, s.activeCountLocked(id)); err != nil {
			return nil, err
		}
	}
	delete(s.events, id)

	kept := s.regs[:0]
	for _, reg := range s.regs {
		if reg.EventID == id {
			delete(s.byID, reg.ID)
			continue
		}
		kept = append(kept, reg)
	}
	s.regs = kept
	return removed, nil
}

// ─── Registrations ───────────────────────────────────────────────────────────

type registrationRepo struct{ s *Store }

func (r registrationRepo) Book(_ context.Context, eventID, userID string) (*model.Registration, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return nil, apperr.NotFound("event %s not found", eventID)
	}
	if e.Status != model.EventApproved {
		return nil, apperr.InvalidState("event %s is %s, registrations open after approval", eventID, e.Status)
	}
	if s.activeLocked(eventID, userID) != nil {
		return nil, apperr.New(apperr.KindConflict, "user is already registered for this event")
	}
	if s.activeCountLocked(eventID) >= e.Capacity {
		return nil, apperr.New(apperr.KindCapacityExceeded, "event is fully booked (capacity %d)", e.Capacity)
	}

	now := s.now()
	reg := &model.Registration{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		Status:    model.StatusRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.regs = append(s.regs, reg)
	s.byID[reg.ID] = reg
	return cloneRegistration(reg), nil
}

func (r registrationRepo) Get(_ context.Context, id string) (*model.Registration, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("registration %s not found", id)
	}
	return cloneRegistration(reg), nil
}

func (r registrationRepo) GetActive(_ context.Context, eventID, userID string) (*model.Registration, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	reg := s.activeLocked(eventID, userID)
	if reg == nil {
		return nil, apperr.NotFound("no active registration for user %s on event %s", userID, eventID)
	}
	return cloneRegistration(reg), nil
}

func (r registrationRepo) CompareAndSetStatus(_ context.Context, id string, from, to model.RegistrationStatus) (*model.Registration, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("registration %s not found", id)
	}
	if reg.Status != from {
		return nil, repository.ErrStaleStatus
	}
	reg.Status = to
	reg.UpdatedAt = s.now()
	return cloneRegistration(reg), nil
}

func (r registrationRepo) AttachTicket(_ context.Context, id string, t model.Ticket) (*model.Registration, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.byID[id]
	if !ok {
		return nil, apperr.NotFound("registration %s not found", id)
	}
	if !reg.HasTicket() {
		stored := t
		stored.Image = append([]byte(nil), t.Image...)
		reg.Ticket = &stored
		reg.UpdatedAt = s.now()
	}
	return cloneRegistration(reg), nil
}

func (r registrationRepo) ListByEvent(_ context.Context, eventID string, includeCancelled bool) ([]model.Registration, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Registration
	for _, reg := range s.regs {
		if reg.EventID != eventID || (!includeCancelled && !reg.Status.Active()) {
			continue
		}
		out = append(out, *cloneRegistration(reg))
	}
	return out, nil
}

func (r registrationRepo) ListByStatus(_ context.Context, eventID string, status model.RegistrationStatus) ([]model.Registration, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Registration
	for _, reg := range s.regs {
		if reg.EventID == eventID && reg.Status == status {
			out = append(out, *cloneRegistration(reg))
		}
	}
	return out, nil
}

func (r registrationRepo) ListByUser(_ context.Context, userID string) ([]model.RegistrationView, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.RegistrationView
	for _, reg := range s.regs {
		if reg.UserID != userID || !reg.Status.Active() {
			continue
		}
		e, ok := s.events[reg.EventID]
		if !ok {
			continue
		}
		out = append(out, model.RegistrationView{
			Registration: *cloneRegistration(reg),
			Event:        model.SnapshotOf(e),
		})
	}
	return out, nil
}

// ─── Users ───────────────────────────────────────────────────────────────────

type userDirectory struct{ s *Store }

func (d userDirectory) GetUser(_ context.Context, id string) (*model.User, error) {
	s := d.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.NotFound("user %s not found", id)
	}
	return &u, nil
}

func (d userDirectory) GetUsers(_ context.Context, ids []string) (map[string]model.User, error) {
	s := d.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]model.User, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u
		}
	}
	return out, nil
}

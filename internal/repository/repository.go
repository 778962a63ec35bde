// Package repository declares the storage contracts of the engine. The
// postgres and memory subpackages implement them; both must enforce the
// capacity and uniqueness invariants atomically inside Book.
package repository

import (
	"context"
	"errors"

	"github.com/Shivanand-hulikatti/campus-events/internal/model"
)

// ErrStaleStatus is returned by RegistrationRepository.CompareAndSetStatus
// when the stored status no longer matches the expected one.
var ErrStaleStatus = errors.New("registration status changed concurrently")

// EventMutator edits an event loaded under the store's per-event lock.
// activeCount is the number of non-cancelled registrations at that moment.
type EventMutator func(e *model.Event, activeCount int) error

type EventRepository interface {
	Create(ctx context.Context, e *model.Event) error
	Get(ctx context.Context, id string) (*model.Event, error)
	// GetView returns the event and its active registration count.
	GetView(ctx context.Context, id string) (*model.EventView, error)
	// List returns events matching every set filter, by start date ascending.
	List(ctx context.Context, f model.EventFilter) ([]model.EventView, error)
	// Update locks the event, applies fn and persists the result.
	Update(ctx context.Context, id string, fn EventMutator) (*model.Event, error)
	// Delete locks the event, lets guard veto the removal, then deletes it
	// and returns the removed record.
	Delete(ctx context.Context, id string, guard EventMutator) (*model.Event, error)
}

type RegistrationRepository interface {
	// Book creates a registered record for (eventID, userID). It fails with
	// NotFound, InvalidState (event not approved), Conflict (active duplicate)
	// or CapacityExceeded, checked in that order as one atomic unit.
	Book(ctx context.Context, eventID, userID string) (*model.Registration, error)
	Get(ctx context.Context, id string) (*model.Registration, error)
	// GetActive returns the non-cancelled registration of userID for eventID.
	GetActive(ctx context.Context, eventID, userID string) (*model.Registration, error)
	// CompareAndSetStatus moves a registration from one status to another,
	// failing with ErrStaleStatus when the stored status is not from.
	CompareAndSetStatus(ctx context.Context, id string, from, to model.RegistrationStatus) (*model.Registration, error)
	// AttachTicket stores t only if the registration has no ticket yet and
	// returns the registration as stored afterwards.
	AttachTicket(ctx context.Context, id string, t model.Ticket) (*model.Registration, error)
	// ListByEvent returns registrations by creation time. Cancelled ones are
	// included only when includeCancelled is set.
	ListByEvent(ctx context.Context, eventID string, includeCancelled bool) ([]model.Registration, error)
	// ListByStatus returns the event's registrations in one status.
	ListByStatus(ctx context.Context, eventID string, status model.RegistrationStatus) ([]model.Registration, error)
	// ListByUser returns the user's non-cancelled registrations joined with
	// their events, by creation time.
	ListByUser(ctx context.Context, userID string) ([]model.RegistrationView, error)
}

// UserDirectory reads accounts owned by the identity provider.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*model.User, error)
	// GetUsers returns the users found among ids, keyed by id.
	GetUsers(ctx context.Context, ids []string) (map[string]model.User, error)
}

// Store bundles the repositories of one storage backend.
type Store interface {
	Events() EventRepository
	Registrations() RegistrationRepository
	Users() UserDirectory
	Close()
}

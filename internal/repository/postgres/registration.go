package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

const registrationColumns = `g.id, g.event_id, g.user_id, g.status,
	g.ticket_payload, g.ticket_image, g.ticket_issued_at, g.created_at, g.updated_at`

// RegistrationRepository handles persistence for registrations.
type RegistrationRepository struct {
	db *pgxpool.Pool
}

// NewRegistrationRepository constructs a RegistrationRepository.
func NewRegistrationRepository(db *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{db: db}
}

func scanRegistration(row pgx.Row, extra ...any) (*model.Registration, error) {
	var (
		reg      model.Registration
		payload  *string
		image    []byte
		issuedAt *time.Time
	)
	dest := []any{
		&reg.ID, &reg.EventID, &reg.UserID, &reg.Status,
		&payload, &image, &issuedAt, &reg.CreatedAt, &reg.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if payload != nil {
		t := &model.Ticket{Payload: *payload, Image: image}
		if issuedAt != nil {
			t.IssuedAt = *issuedAt
		}
		reg.Ticket = t
	}
	return &reg, nil
}

func collectRegistrations(rows pgx.Rows) ([]model.Registration, error) {
	defer rows.Close()

	var regs []model.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration: %w", err)
		}
		regs = append(regs, *reg)
	}
	return regs, rows.Err()
}

// Book performs a concurrency-safe registration inside one transaction.
//
// A naive read-count-then-insert lets two transactions read the same count
// and both insert, over-admitting the event. SELECT ... FOR UPDATE takes a
// row lock on the event, so concurrent bookings for the same event queue up
// behind each other while bookings for other events proceed. The partial
// unique index on (event_id, user_id) backs the duplicate check in case a
// caller bypasses the lock.
func (r *RegistrationRepository) Book(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status   model.EventStatus
		capacity int
	)
	err = tx.QueryRow(ctx,
		`SELECT status, capacity FROM events WHERE id = $1 FOR UPDATE`,
		eventID,
	).Scan(&status, &capacity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("event %s not found", eventID)
		}
		return nil, fmt.Errorf("lock event row: %w", err)
	}
	if status != model.EventApproved {
		return nil, apperr.InvalidState("event %s is %s, registrations open after approval", eventID, status)
	}

	var dup bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM registrations
			WHERE event_id = $1 AND user_id = $2 AND status <> 'cancelled')`,
		eventID, userID,
	).Scan(&dup)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if dup {
		return nil, apperr.New(apperr.KindConflict, "user is already registered for this event")
	}

	var active int
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'cancelled'`,
		eventID,
	).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("count registrations: %w", err)
	}
	if active >= capacity {
		return nil, apperr.New(apperr.KindCapacityExceeded, "event is fully booked (capacity %d)", capacity)
	}

	now := time.Now().UTC()
	reg := &model.Registration{
		ID:        uuid.New().String(),
		EventID:   eventID,
		UserID:    userID,
		Status:    model.StatusRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO registrations (id, event_id, user_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		reg.ID, reg.EventID, reg.UserID, reg.Status, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.New(apperr.KindConflict, "user is already registered for this event")
		}
		return nil, fmt.Errorf("insert registration: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) Get(ctx context.Context, id string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations g WHERE g.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("registration %s not found", id)
		}
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) GetActive(ctx context.Context, eventID, userID string) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`SELECT `+registrationColumns+` FROM registrations g
		 WHERE g.event_id = $1 AND g.user_id = $2 AND g.status <> 'cancelled'`,
		eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("no active registration for user %s on event %s", userID, eventID)
		}
		return nil, fmt.Errorf("get active registration: %w", err)
	}
	return reg, nil
}

func (r *RegistrationRepository) CompareAndSetStatus(ctx context.Context, id string, from, to model.RegistrationStatus) (*model.Registration, error) {
	reg, err := scanRegistration(r.db.QueryRow(ctx,
		`UPDATE registrations g SET status = $3, updated_at = now()
		 WHERE g.id = $1 AND g.status = $2
		 RETURNING `+registrationColumns,
		id, from, to))
	if err == nil {
		return reg, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update registration status: %w", err)
	}
	// Nothing matched: either the row is gone or its status moved on.
	if _, getErr := r.Get(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, repository.ErrStaleStatus
}

// AttachTicket writes the ticket only when none is stored, then returns the
// row as it is, so a losing concurrent issuer sees the winner's ticket.
func (r *RegistrationRepository) AttachTicket(ctx context.Context, id string, t model.Ticket) (*model.Registration, error) {
	_, err := r.db.Exec(ctx,
		`UPDATE registrations
		 SET ticket_payload = $2, ticket_image = $3, ticket_issued_at = $4, updated_at = now()
		 WHERE id = $1 AND ticket_payload IS NULL`,
		id, t.Payload, t.Image, t.IssuedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("attach ticket: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *RegistrationRepository) ListByEvent(ctx context.Context, eventID string, includeCancelled bool) ([]model.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations g WHERE g.event_id = $1`
	if !includeCancelled {
		query += ` AND g.status <> 'cancelled'`
	}
	query += ` ORDER BY g.created_at ASC, g.id ASC`

	rows, err := r.db.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return collectRegistrations(rows)
}

func (r *RegistrationRepository) ListByStatus(ctx context.Context, eventID string, status model.RegistrationStatus) ([]model.Registration, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+` FROM registrations g
		 WHERE g.event_id = $1 AND g.status = $2
		 ORDER BY g.created_at ASC, g.id ASC`,
		eventID, status)
	if err != nil {
		return nil, fmt.Errorf("list registrations by status: %w", err)
	}
	return collectRegistrations(rows)
}

// ListByUser joins each active registration with its event in one query.
func (r *RegistrationRepository) ListByUser(ctx context.Context, userID string) ([]model.RegistrationView, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+registrationColumns+`, e.id, e.title, e.starts_at, e.location, e.poster_url, e.status
		 FROM registrations g
		 JOIN events e ON e.id = g.event_id
		 WHERE g.user_id = $1 AND g.status <> 'cancelled'
		 ORDER BY g.created_at ASC, g.id ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list user registrations: %w", err)
	}
	defer rows.Close()

	var views []model.RegistrationView
	for rows.Next() {
		var snap model.EventSnapshot
		reg, err := scanRegistration(rows,
			&snap.ID, &snap.Title, &snap.StartsAt, &snap.Location, &snap.PosterURL, &snap.Status)
		if err != nil {
			return nil, fmt.Errorf("scan user registration: %w", err)
		}
		views = append(views, model.RegistrationView{Registration: *reg, Event: snap})
	}
	return views, rows.Err()
}

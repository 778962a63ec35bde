package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

const eventColumns = `e.id, e.title, e.description, e.starts_at, e.location, e.category,
	e.price, e.capacity, e.poster_url, e.organizer_id, e.status, e.created_at, e.updated_at`

const activeCountExpr = `(SELECT COUNT(*) FROM registrations r
	WHERE r.event_id = e.id AND r.status <> 'cancelled')`

// EventRepository handles persistence for events.
type EventRepository struct {
	db *pgxpool.Pool
}

// NewEventRepository constructs an EventRepository.
func NewEventRepository(db *pgxpool.Pool) *EventRepository {
	return &EventRepository{db: db}
}

func scanEvent(row pgx.Row, extra ...any) (*model.Event, error) {
	var e model.Event
	dest := []any{
		&e.ID, &e.Title, &e.Description, &e.StartsAt, &e.Location, &e.Category,
		&e.Price, &e.Capacity, &e.PosterURL, &e.OrganizerID, &e.Status, &e.CreatedAt, &e.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	return &e, nil
}

// Create inserts a new event with a generated UUID.
func (r *EventRepository) Create(ctx context.Context, e *model.Event) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err := r.db.Exec(ctx,
		`INSERT INTO events (id, title, description, starts_at, location, category,
			price, capacity, poster_url, organizer_id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.ID, e.Title, e.Description, e.StartsAt, e.Location, e.Category,
		e.Price, e.Capacity, e.PosterURL, e.OrganizerID, e.Status, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Get returns a single event or NotFound.
func (r *EventRepository) Get(ctx context.Context, id string) (*model.Event, error) {
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("event %s not found", id)
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// GetView returns the event with its active registration count.
func (r *EventRepository) GetView(ctx context.Context, id string) (*model.EventView, error) {
	var count int
	e, err := scanEvent(r.db.QueryRow(ctx,
		`SELECT `+eventColumns+`, `+activeCountExpr+` FROM events e WHERE e.id = $1`, id), &count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("event %s not found", id)
		}
		return nil, fmt.Errorf("get event view: %w", err)
	}
	v := model.NewEventView(*e, count)
	return &v, nil
}

// List returns events matching every set filter ordered by start date.
func (r *EventRepository) List(ctx context.Context, f model.EventFilter) ([]model.EventView, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.Text != "" {
		add(`e.title ILIKE $%d`, likePattern(f.Text))
	}
	if f.Category != "" {
		add(`e.category = $%d`, f.Category)
	}
	if f.Status != "" {
		add(`e.status = $%d`, string(f.Status))
	}
	if f.OrganizerID != "" {
		add(`e.organizer_id = $%d`, f.OrganizerID)
	}

	query := `SELECT ` + eventColumns + `, ` + activeCountExpr + ` FROM events e`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, ` AND `)
	}
	query += ` ORDER BY e.starts_at ASC, e.created_at ASC, e.id ASC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var views []model.EventView
	for rows.Next() {
		var count int
		e, err := scanEvent(rows, &count)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		views = append(views, model.NewEventView(*e, count))
	}
	return views, rows.Err()
}

// lockEvent loads the event row FOR UPDATE together with its active count.
// Book takes the same lock, so the count is stable until the tx ends.
func lockEvent(ctx context.Context, tx pgx.Tx, id string) (*model.Event, int, error) {
	e, err := scanEvent(tx.QueryRow(ctx,
		`SELECT `+eventColumns+` FROM events e WHERE e.id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, 0, apperr.NotFound("event %s not found", id)
		}
		return nil, 0, fmt.Errorf("lock event row: %w", err)
	}

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM registrations WHERE event_id = $1 AND status <> 'cancelled'`, id,
	).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return e, count, nil
}

// Update applies fn to the locked event row and persists the result.
func (r *EventRepository) Update(ctx context.Context, id string, fn repository.EventMutator) (*model.Event, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	e, count, err := lockEvent(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(e, count); err != nil {
		return nil, err
	}
	e.ID = id
	e.UpdatedAt = time.Now().UTC()

	_, err = tx.Exec(ctx,
		`UPDATE events SET title = $2, description = $3, starts_at = $4, location = $5,
			category = $6, price = $7, capacity = $8, poster_url = $9, status = $10, updated_at = $11
		 WHERE id = $1`,
		e.ID, e.Title, e.Description, e.StartsAt, e.Location,
		e.Category, e.Price, e.Capacity, e.PosterURL, e.Status, e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("update event: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return e, nil
}

// Delete removes the locked event after guard approves. Registrations
// cascade through the foreign key.
func (r *EventRepository) Delete(ctx context.Context, id string, guard repository.EventMutator) (*model.Event, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	e, count, err := lockEvent(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if guard != nil {
		if err := guard(e, count); err != nil {
			return nil, err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE id = $1`, id); err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return e, nil
}

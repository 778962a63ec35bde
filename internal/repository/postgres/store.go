// Package postgres implements the repository contracts with pgx directly
// (no ORM). Capacity and uniqueness are enforced with row locks on the event
// plus a partial unique index on active registrations.
package postgres

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

const uniqueViolation = "23505"

// Store bundles the pgx repositories over one pool.
type Store struct {
	db            *pgxpool.Pool
	events        *EventRepository
	registrations *RegistrationRepository
	users         *UserRepository
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:            db,
		events:        NewEventRepository(db),
		registrations: NewRegistrationRepository(db),
		users:         NewUserRepository(db),
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Events() repository.EventRepository               { return s.events }
func (s *Store) Registrations() repository.RegistrationRepository { return s.registrations }
func (s *Store) Users() repository.UserDirectory                  { return s.users }
func (s *Store) Close()                                           { s.db.Close() }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// likePattern escapes LIKE wildcards in s and wraps it for a substring match.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

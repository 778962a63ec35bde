package service

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

var csvHeader = []string{"name", "email", "status", "registeredAt"}

// ExportRow is one line of the attendee export.
type ExportRow struct {
	Name         string                   `json:"name"`
	Email        string                   `json:"email"`
	Status       model.RegistrationStatus `json:"status"`
	RegisteredAt time.Time                `json:"registeredAt"`
}

// ExportService produces the attendee list of an event for its organizer.
type ExportService struct {
	events repository.EventRepository
	regs   repository.RegistrationRepository
	users  repository.UserDirectory
}

func NewExportService(events repository.EventRepository, regs repository.RegistrationRepository, users repository.UserDirectory) *ExportService {
	return &ExportService{events: events, regs: regs, users: users}
}

// Participants returns one row per active registration, oldest first.
func (s *ExportService) Participants(ctx context.Context, actor model.Actor, eventID string) ([]ExportRow, error) {
	e, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(e) {
		return nil, apperr.Forbidden("only the event organizer or an admin can export participants")
	}

	list, err := participants(ctx, s.regs, s.users, eventID, false)
	if err != nil {
		return nil, err
	}
	rows := make([]ExportRow, 0, len(list))
	for _, p := range list {
		rows = append(rows, ExportRow{
			Name:         p.Name,
			Email:        p.Email,
			Status:       p.Status,
			RegisteredAt: p.CreatedAt,
		})
	}
	return rows, nil
}

// WriteCSV writes rows as RFC 4180 CSV with a header line. Timestamps are
// RFC 3339 in UTC.
func WriteCSV(w io.Writer, rows []ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range rows {
		record := []string{r.Name, r.Email, string(r.Status), r.RegisteredAt.UTC().Format(time.RFC3339)}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

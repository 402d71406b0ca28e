package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type eventRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewEventRepo creates the PostgreSQL event repository.
func NewEventRepo(db *sqlx.DB, timeout time.Duration) persistence.EventRepo {
	return &eventRepo{db: db, timeout: timeout}
}

func (r *eventRepo) Insert(ctx context.Context, event *models.Event) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO ip_event (id, ip_id, event_type, title, event_date, source, source_url)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING created_at`,
		event.ID, event.IPID, event.EventType, event.Title, event.EventDate,
		event.Source, event.SourceURL).Scan(&event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (r *eventRepo) Exists(ctx context.Context, ipID uuid.UUID, title string, eventDate time.Time, source string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (
		     SELECT 1 FROM ip_event
		     WHERE ip_id = $1 AND title = $2 AND event_date = $3 AND source = $4)`,
		ipID, title, eventDate, source)
	if err != nil {
		return false, fmt.Errorf("failed to check event: %w", err)
	}
	return exists, nil
}

func (r *eventRepo) ListByIP(ctx context.Context, ipID uuid.UUID) ([]models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var events []models.Event
	err := r.db.SelectContext(ctx, &events,
		`SELECT id, ip_id, event_type, title, event_date, source, source_url, created_at
		 FROM ip_event WHERE ip_id = $1 ORDER BY event_date`, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

func (r *eventRepo) ListWindow(ctx context.Context, ipID uuid.UUID, from, to time.Time) ([]models.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var events []models.Event
	err := r.db.SelectContext(ctx, &events,
		`SELECT id, ip_id, event_type, title, event_date, source, source_url, created_at
		 FROM ip_event
		 WHERE ip_id = $1 AND event_date >= $2 AND event_date <= $3
		 ORDER BY event_date`,
		ipID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list events in window: %w", err)
	}
	return events, nil
}

package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evently-app/evently-api/internal/models"
)

const eventColumns = `id, name, description, category, requires_location, selection_time, event_time, organizer, selection_limit, entrant_limit, created_at, updated_at`

// EventRepository handles persistence of event records.
type EventRepository struct {
	db        *sqlx.DB
	batchSize int
}

// NewEventRepository constructs the repository. batchSize bounds the
// number of identifiers per bulk query; callers passing larger ID sets
// get chunked reads.
func NewEventRepository(db *sqlx.DB, batchSize int) *EventRepository {
	if batchSize <= 0 {
		batchSize = defaultQueryBatchSize
	}
	return &EventRepository{db: db, batchSize: batchSize}
}

// Create inserts a new event record.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	query := `INSERT INTO events (id, name, description, category, requires_location, selection_time, event_time, organizer, selection_limit, entrant_limit, created_at, updated_at)
VALUES (:id, :name, :description, :category, :requires_location, :selection_time, :event_time, :organizer, :selection_limit, :entrant_limit, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// GetByID returns an event by identifier.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf("SELECT %s FROM events WHERE id = $1", eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

// GetByIDs returns the events matching the given identifiers. The read
// is chunked at the repository batch size; missing IDs are skipped.
func (r *EventRepository) GetByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	events := make([]models.Event, 0, len(ids))
	for _, chunk := range chunkIDs(ids, r.batchSize) {
		query, args, err := sqlx.In(
			fmt.Sprintf("SELECT %s FROM events WHERE id IN (?)", eventColumns), chunk)
		if err != nil {
			return nil, fmt.Errorf("build events query: %w", err)
		}
		var batch []models.Event
		if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("get events by ids: %w", err)
		}
		events = append(events, batch...)
	}
	return events, nil
}

// List returns events filtered by the provided criteria, newest event
// time first.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	var conditions []string
	var args []interface{}

	if filter.Organizer != "" {
		conditions = append(conditions, fmt.Sprintf("organizer = $%d", len(args)+1))
		args = append(args, filter.Organizer)
	}
	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("event_time > $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("event_time < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM events%s ORDER BY event_time DESC LIMIT %d OFFSET %d",
		eventColumns, clause, size, offset)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := "SELECT COUNT(*) FROM events" + clause
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// Delete removes an event and everything keyed by it: entrant
// memberships, notifications and their seen markers. The source system
// left these behind as a known gap; here the cascade runs in one
// transaction.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete event: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	steps := []string{
		`DELETE FROM notification_seen WHERE notification_id IN (SELECT id FROM notifications WHERE event_id = $1)`,
		`DELETE FROM notifications WHERE event_id = $1`,
		`DELETE FROM event_entrants WHERE event_id = $1`,
		`DELETE FROM events WHERE id = $1`,
	}
	for _, step := range steps {
		if _, err := tx.ExecContext(ctx, step, id); err != nil {
			return fmt.Errorf("delete event %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete event: %w", err)
	}
	return nil
}

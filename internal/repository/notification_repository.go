package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/evently-app/evently-api/internal/models"
)

const notificationColumns = `id, event_id, channel, title, description, creation_time`

// NotificationRepository persists broadcast notifications. Records are
// append-only: once written they are never updated, only their seen
// markers grow.
type NotificationRepository struct {
	db        *sqlx.DB
	batchSize int
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB, batchSize int) *NotificationRepository {
	if batchSize <= 0 {
		batchSize = defaultQueryBatchSize
	}
	return &NotificationRepository{db: db, batchSize: batchSize}
}

// Create inserts a new notification record.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if notification.ID == "" {
		notification.ID = uuid.NewString()
	}
	if notification.CreationTime.IsZero() {
		notification.CreationTime = time.Now().UTC()
	}
	query := `INSERT INTO notifications (id, event_id, channel, title, description, creation_time)
VALUES (:id, :event_id, :channel, :title, :description, :creation_time)`
	if _, err := r.db.NamedExecContext(ctx, query, notification); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// GetByID returns a notification with its seen markers.
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM notifications WHERE id = $1", notificationColumns)
	var notification models.Notification
	if err := r.db.GetContext(ctx, &notification, query, id); err != nil {
		return nil, err
	}
	if err := r.attachSeen(ctx, []*models.Notification{&notification}); err != nil {
		return nil, err
	}
	return &notification, nil
}

// ListByEventIDs returns notifications for the given events, newest
// first. The read is chunked at the repository batch size, so callers
// may pass arbitrarily large ID sets.
func (r *NotificationRepository) ListByEventIDs(ctx context.Context, eventIDs []string) ([]models.Notification, error) {
	var notifications []models.Notification
	for _, chunk := range chunkIDs(eventIDs, r.batchSize) {
		query, args, err := sqlx.In(
			fmt.Sprintf("SELECT %s FROM notifications WHERE event_id IN (?)", notificationColumns), chunk)
		if err != nil {
			return nil, fmt.Errorf("build notifications query: %w", err)
		}
		var batch []models.Notification
		if err := r.db.SelectContext(ctx, &batch, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("list notifications: %w", err)
		}
		notifications = append(notifications, batch...)
	}

	sort.Slice(notifications, func(i, j int) bool {
		return notifications[i].CreationTime.After(notifications[j].CreationTime)
	})

	refs := make([]*models.Notification, len(notifications))
	for i := range notifications {
		refs[i] = &notifications[i]
	}
	if err := r.attachSeen(ctx, refs); err != nil {
		return nil, err
	}
	return notifications, nil
}

// ListAll returns every notification, newest first.
func (r *NotificationRepository) ListAll(ctx context.Context) ([]models.Notification, error) {
	query := fmt.Sprintf("SELECT %s FROM notifications ORDER BY creation_time DESC", notificationColumns)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query); err != nil {
		return nil, fmt.Errorf("list all notifications: %w", err)
	}
	refs := make([]*models.Notification, len(notifications))
	for i := range notifications {
		refs[i] = &notifications[i]
	}
	if err := r.attachSeen(ctx, refs); err != nil {
		return nil, err
	}
	return notifications, nil
}

// MarkSeen records that the email acknowledged the notification.
// Acknowledging twice is a no-op.
func (r *NotificationRepository) MarkSeen(ctx context.Context, notificationID, email string) error {
	const query = `INSERT INTO notification_seen (notification_id, entrant_email, seen_at)
VALUES ($1, $2, $3) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, notificationID, models.NormalizeEmail(email), time.Now().UTC()); err != nil {
		return fmt.Errorf("mark notification seen: %w", err)
	}
	return nil
}

type seenRow struct {
	NotificationID string `db:"notification_id"`
	Email          string `db:"entrant_email"`
}

func (r *NotificationRepository) attachSeen(ctx context.Context, notifications []*models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	ids := make([]string, len(notifications))
	byID := make(map[string]*models.Notification, len(notifications))
	for i, n := range notifications {
		ids[i] = n.ID
		byID[n.ID] = n
	}
	for _, chunk := range chunkIDs(ids, r.batchSize) {
		query, args, err := sqlx.In(`SELECT notification_id, entrant_email FROM notification_seen WHERE notification_id IN (?)`, chunk)
		if err != nil {
			return fmt.Errorf("build seen query: %w", err)
		}
		var rows []seenRow
		if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
			return fmt.Errorf("list seen markers: %w", err)
		}
		for _, row := range rows {
			if n, ok := byID[row.NotificationID]; ok {
				n.SeenBy = append(n.SeenBy, row.Email)
			}
		}
	}
	return nil
}

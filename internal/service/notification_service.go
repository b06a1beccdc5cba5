package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/evently-app/evently-api/internal/models"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
)

type notificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	GetByID(ctx context.Context, id string) (*models.Notification, error)
	ListByEventIDs(ctx context.Context, eventIDs []string) ([]models.Notification, error)
	ListAll(ctx context.Context) ([]models.Notification, error)
	MarkSeen(ctx context.Context, notificationID, email string) error
}

type channelResolver interface {
	EnrolledEventIDs(ctx context.Context, email string, now time.Time) ([]string, error)
	VisibleNotifications(ctx context.Context, notifications []models.Notification, email string, now time.Time) ([]models.Notification, bool, error)
}

// NotificationService handles broadcast creation and per-entrant
// notification feeds. Who sees a broadcast is decided when the feed is
// read, never when the broadcast is written.
type NotificationService struct {
	repo      notificationRepository
	events    eventReader
	channels  channelResolver
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewNotificationService constructs the service.
func NewNotificationService(repo notificationRepository, events eventReader, channels channelResolver, validate *validator.Validate, logger *zap.Logger) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{repo: repo, events: events, channels: channels, validator: validate, logger: logger, now: time.Now}
	svc.validator.RegisterValidation("channel", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseChannel(fl.Field().String())
		return ok
	})
	return svc
}

// BroadcastRequest describes an organizer broadcast payload.
type BroadcastRequest struct {
	EventID     string `json:"event_id" validate:"required"`
	Channel     string `json:"channel" validate:"required,channel"`
	Title       string `json:"title" validate:"required"`
	Description string `json:"description"`
}

// Broadcast records a notification addressed to one of the event's
// channels.
func (s *NotificationService) Broadcast(ctx context.Context, req BroadcastRequest) (*models.Notification, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid broadcast payload")
	}
	if _, err := s.events.GetByID(ctx, req.EventID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	channel, _ := models.ParseChannel(req.Channel)
	notification := &models.Notification{
		EventID:     req.EventID,
		Channel:     channel,
		Title:       req.Title,
		Description: req.Description,
	}
	if err := s.repo.Create(ctx, notification); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create notification")
	}
	s.logger.Info("notification broadcast",
		zap.String("notification_id", notification.ID),
		zap.String("event_id", notification.EventID),
		zap.String("channel", string(channel)))
	return notification, nil
}

// ListForEntrant returns the notifications visible to the entrant,
// newest first. The bool reports whether channel resolution came from
// the cache.
func (s *NotificationService) ListForEntrant(ctx context.Context, email string) ([]models.Notification, bool, error) {
	now := s.now()
	eventIDs, err := s.channels.EnrolledEventIDs(ctx, email, now)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve channels")
	}
	if len(eventIDs) == 0 {
		return []models.Notification{}, false, nil
	}

	notifications, err := s.repo.ListByEventIDs(ctx, eventIDs)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}

	visible, cached, err := s.channels.VisibleNotifications(ctx, notifications, email, now)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to filter notifications")
	}
	return visible, cached, nil
}

// ListAll returns every notification in the system. Admin surface.
func (s *NotificationService) ListAll(ctx context.Context) ([]models.Notification, error) {
	notifications, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// MarkSeen records that the entrant has read the notification. Marking
// twice is a no-op.
func (s *NotificationService) MarkSeen(ctx context.Context, notificationID, email string) error {
	if _, err := s.repo.GetByID(ctx, notificationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	if err := s.repo.MarkSeen(ctx, notificationID, models.NormalizeEmail(email)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification seen")
	}
	return nil
}

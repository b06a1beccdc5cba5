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

type eventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	GetByID(ctx context.Context, id string) (*models.Event, error)
	GetByIDs(ctx context.Context, ids []string) ([]models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	Delete(ctx context.Context, id string) error
}

type eventEntrantReader interface {
	GetList(ctx context.Context, eventID string) (*models.EntrantList, error)
	ListEventIDsByEntrant(ctx context.Context, email string) ([]string, error)
}

// EventService handles the organizer-facing event surface: creation,
// browsing and deletion. Events are immutable after creation; there is
// no update path on purpose.
type EventService struct {
	repo      eventRepository
	entrants  eventEntrantReader
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs the service.
func NewEventService(repo eventRepository, entrants eventEntrantReader, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &EventService{repo: repo, entrants: entrants, validator: validate, logger: logger, now: time.Now}
	svc.validator.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseCategory(fl.Field().String())
		return ok
	})
	return svc
}

// CreateEventRequest describes the create payload.
type CreateEventRequest struct {
	Name             string    `json:"name" validate:"required"`
	Description      string    `json:"description"`
	Category         string    `json:"category" validate:"required,category"`
	RequiresLocation bool      `json:"requires_location"`
	SelectionTime    time.Time `json:"selection_time" validate:"required"`
	EventTime        time.Time `json:"event_time" validate:"required"`
	Organizer        string    `json:"organizer" validate:"required"`
	SelectionLimit   int       `json:"selection_limit" validate:"required,gt=0"`
	EntrantLimit     *int      `json:"entrant_limit"`
}

// EventListRequest describes filters for listing events.
type EventListRequest struct {
	Organizer string
	Category  string
	From      *time.Time
	To        *time.Time
	// Enrolled narrows the listing to events the given entrant is on.
	Enrolled string
	Page     int
	PageSize int
}

// Create validates and stores a new event.
func (s *EventService) Create(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	if !req.EventTime.After(req.SelectionTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "event time must come after selection time")
	}
	if req.EntrantLimit != nil && *req.EntrantLimit < req.SelectionLimit {
		return nil, appErrors.Clone(appErrors.ErrValidation, "entrant limit must not be below selection limit")
	}

	category, _ := models.ParseCategory(req.Category)
	event := &models.Event{
		Name:             req.Name,
		Description:      req.Description,
		Category:         category,
		RequiresLocation: req.RequiresLocation,
		SelectionTime:    req.SelectionTime,
		EventTime:        req.EventTime,
		Organizer:        req.Organizer,
		SelectionLimit:   req.SelectionLimit,
		EntrantLimit:     req.EntrantLimit,
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}
	s.logger.Info("event created",
		zap.String("event_id", event.ID),
		zap.String("organizer", event.Organizer),
		zap.Int("selection_limit", event.SelectionLimit))
	return event, nil
}

// Get returns an event together with its entrant counts and current
// waitlist status.
func (s *EventService) Get(ctx context.Context, id string) (*models.EventDetail, error) {
	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	list, err := s.entrants.GetList(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entrant list")
	}
	return &models.EventDetail{
		Event:          *event,
		EnrolledCount:  len(list.Enrolled),
		SelectedCount:  len(list.Selected),
		AcceptedCount:  len(list.Accepted),
		CancelledCount: len(list.Cancelled),
		WaitlistStatus: event.Status(s.now()),
	}, nil
}

// Entrants returns the raw entrant list document for an event.
func (s *EventService) Entrants(ctx context.Context, id string) (*models.EntrantList, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	list, err := s.entrants.GetList(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entrant list")
	}
	return list, nil
}

// List returns events matching the filters with pagination. The
// enrolled-entrant filter is answered from the membership table and
// bypasses the paged query.
func (s *EventService) List(ctx context.Context, req EventListRequest) ([]models.Event, *models.Pagination, error) {
	if req.Enrolled != "" {
		ids, err := s.entrants.ListEventIDsByEntrant(ctx, models.NormalizeEmail(req.Enrolled))
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrolled events")
		}
		events, err := s.repo.GetByIDs(ctx, ids)
		if err != nil {
			return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
		}
		pagination := &models.Pagination{Page: 1, PageSize: len(events), TotalCount: len(events)}
		return events, pagination, nil
	}

	filter := models.EventFilter{
		Organizer: req.Organizer,
		From:      req.From,
		To:        req.To,
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if req.Category != "" {
		category, ok := models.ParseCategory(req.Category)
		if !ok {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown category")
		}
		filter.Category = category
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 {
		filter.PageSize = 20
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}
	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return events, pagination, nil
}

// Delete removes the event together with its entrant memberships and
// notifications.
func (s *EventService) Delete(ctx context.Context, id string) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}
	s.logger.Info("event deleted", zap.String("event_id", id))
	return nil
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evently-app/evently-api/internal/models"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
	"github.com/evently-app/evently-api/pkg/jobs"
)

type eventReader interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

type entrantStore interface {
	GetList(ctx context.Context, eventID string) (*models.EntrantList, error)
	Add(ctx context.Context, eventID, email string, set models.EntrantSet) error
	Remove(ctx context.Context, eventID, email string, set models.EntrantSet) error
	AddEnrolledCapped(ctx context.Context, eventID, email string, coord *models.GeoPoint, limit *int) (bool, error)
	CancelSelected(ctx context.Context, eventID, email string) error
	FillSelections(ctx context.Context, eventID string, selectionLimit int, pool func(*models.EntrantList) []string, pick func(pool []string, n int) []string) ([]string, error)
}

type redrawDispatcher interface {
	Enqueue(job jobs.Job) error
}

// LifecycleService orchestrates the entrant state machine for an
// event: enrollment admission, the selection draw and the
// accept/cancel transitions. Cancellations schedule an asynchronous
// replacement draw; callers observe the refilled selected set by
// re-reading the entrant list, never synchronously.
type LifecycleService struct {
	events   eventReader
	entrants entrantStore
	queue    redrawDispatcher
	engine   *DrawEngine
	metrics  *MetricsService
	logger   *zap.Logger
	now      func() time.Time
}

// NewLifecycleService constructs the service.
func NewLifecycleService(events eventReader, entrants entrantStore, queue redrawDispatcher, engine *DrawEngine, metrics *MetricsService, logger *zap.Logger) *LifecycleService {
	if engine == nil {
		engine = NewDrawEngine(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LifecycleService{
		events:   events,
		entrants: entrants,
		queue:    queue,
		engine:   engine,
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the service clock. Test hook.
func (s *LifecycleService) WithClock(now func() time.Time) *LifecycleService {
	s.now = now
	return s
}

func (s *LifecycleService) fetchEvent(ctx context.Context, eventID string) (*models.Event, error) {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}
	return event, nil
}

func (s *LifecycleService) fetchList(ctx context.Context, event *models.Event) (*models.EntrantList, error) {
	list, err := s.entrants.GetList(ctx, event.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load entrant list")
	}
	// A broken invariant means some orchestration path wrote garbage.
	// Surface it loudly instead of papering over the state.
	if err := list.Validate(event.SelectionLimit, event.EntrantLimit); err != nil {
		s.logger.Error("entrant list invariant violated",
			zap.String("event_id", event.ID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInvariant.Code, appErrors.ErrInvariant.Status, appErrors.ErrInvariant.Message)
	}
	return list, nil
}

// Enroll admits the entrant onto the event's waitlist. Admission checks
// run in order: selection deadline, mandatory location, duplicate
// enrollment, capacity. The capacity check is enforced by the store
// write itself, so two racing enrollments cannot overshoot the limit.
func (s *LifecycleService) Enroll(ctx context.Context, eventID, email string, coord *models.GeoPoint) error {
	email = models.NormalizeEmail(email)

	event, err := s.fetchEvent(ctx, eventID)
	if err != nil {
		return err
	}
	if event.SelectionClosed(s.now()) {
		s.metrics.RecordRejection(appErrors.ErrDeadlineExceeded.Code)
		return appErrors.ErrDeadlineExceeded
	}
	if event.RequiresLocation && coord == nil {
		s.metrics.RecordRejection(appErrors.ErrLocationRequired.Code)
		return appErrors.ErrLocationRequired
	}

	list, err := s.fetchList(ctx, event)
	if err != nil {
		return err
	}
	if list.IsEnrolled(email) {
		s.metrics.RecordRejection(appErrors.ErrAlreadyEnrolled.Code)
		return appErrors.ErrAlreadyEnrolled
	}

	inserted, err := s.entrants.AddEnrolledCapped(ctx, eventID, email, coord, event.EntrantLimit)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll entrant")
	}
	if !inserted {
		// The duplicate case was ruled out above, so a rejected write
		// means the waitlist filled up under us.
		s.metrics.RecordRejection(appErrors.ErrCapacityExceeded.Code)
		return appErrors.ErrCapacityExceeded
	}

	s.metrics.RecordEnrollment()
	s.logger.Info("entrant enrolled", zap.String("event_id", eventID), zap.String("entrant", email))
	return nil
}

// SeedEnroll adds the entrant to the enrolled set skipping every
// admission check. Privileged bypass for fixtures and seeding; not part
// of the public contract.
func (s *LifecycleService) SeedEnroll(ctx context.Context, eventID, email string, coord *models.GeoPoint) error {
	_, err := s.entrants.AddEnrolledCapped(ctx, eventID, models.NormalizeEmail(email), coord, nil)
	return err
}

// Unenroll removes the entrant from the enrolled set. It deliberately
// leaves the selected, accepted and cancelled sets untouched, matching
// the source system's behaviour.
func (s *LifecycleService) Unenroll(ctx context.Context, eventID, email string) error {
	if err := s.entrants.Remove(ctx, eventID, models.NormalizeEmail(email), models.SetEnrolled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll entrant")
	}
	return nil
}

// Draw fills the selected set up to the event's selection limit with a
// uniform random sample of the not-yet-selected enrollees. The deficit
// is recomputed and the winners are written inside one store
// transaction, so two racing draws cannot push the selected set past
// the limit. Drawing before the selection time is allowed; whether to
// pre-compute is the organizer's call, not enforced here.
func (s *LifecycleService) Draw(ctx context.Context, eventID string) ([]string, error) {
	event, err := s.fetchEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if _, err := s.fetchList(ctx, event); err != nil {
		return nil, err
	}

	winners, err := s.entrants.FillSelections(ctx, eventID, event.SelectionLimit, (*models.EntrantList).CandidatePool, s.engine.Pick)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record winners")
	}

	s.metrics.RecordDraw()
	s.logger.Info("selection draw complete",
		zap.String("event_id", eventID),
		zap.Int("winners", len(winners)))
	return winners, nil
}

// Accept marks a selected entrant as having taken their spot. Accepting
// twice is a no-op; accepting without having been selected fails. A
// cancellation is final: a cancelled entrant may win a later draw, but
// the invitation cannot be accepted again.
func (s *LifecycleService) Accept(ctx context.Context, eventID, email string) error {
	email = models.NormalizeEmail(email)

	event, err := s.fetchEvent(ctx, eventID)
	if err != nil {
		return err
	}
	list, err := s.fetchList(ctx, event)
	if err != nil {
		return err
	}
	if !list.IsSelected(email) {
		return appErrors.ErrNotSelected
	}
	if list.IsCancelled(email) {
		return appErrors.Clone(appErrors.ErrNotSelected, "entrant cancelled their invitation")
	}
	if list.IsAccepted(email) {
		return nil
	}

	if err := s.entrants.Add(ctx, eventID, email, models.SetAccepted); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to accept invitation")
	}
	s.logger.Info("entrant accepted", zap.String("event_id", eventID), zap.String("entrant", email))
	return nil
}

// Cancel declines a won spot: the entrant leaves the selected set,
// joins the cancelled set and a replacement draw is scheduled. The
// redraw runs asynchronously; the freed slot is not refilled by the
// time this returns. Once the store write lands the cancellation is
// final and cannot be rolled back by abandoning the request.
func (s *LifecycleService) Cancel(ctx context.Context, eventID, email string) error {
	email = models.NormalizeEmail(email)

	event, err := s.fetchEvent(ctx, eventID)
	if err != nil {
		return err
	}
	list, err := s.fetchList(ctx, event)
	if err != nil {
		return err
	}
	if !list.IsSelected(email) {
		return appErrors.ErrNotSelected
	}

	if err := s.entrants.CancelSelected(ctx, eventID, email); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel invitation")
	}
	s.logger.Info("entrant cancelled", zap.String("event_id", eventID), zap.String("entrant", email))

	if s.queue != nil {
		err := s.queue.Enqueue(jobs.Job{
			ID:      uuid.NewString(),
			Type:    RedrawJobType,
			Payload: RedrawJob{EventID: eventID, Entrant: email},
		})
		if err != nil {
			// The cancellation is committed; the vacancy will be
			// picked up by the next draw or redraw on this event.
			s.logger.Error("failed to schedule redraw",
				zap.String("event_id", eventID),
				zap.String("entrant", email),
				zap.Error(err))
		}
	}
	return nil
}

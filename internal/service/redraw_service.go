package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/evently-app/evently-api/internal/models"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
	"github.com/evently-app/evently-api/pkg/jobs"
)

// RedrawJobType is the job type dispatched when a winner cancels.
const RedrawJobType = "redraw"

// RedrawJob is the payload of a replacement draw job.
type RedrawJob struct {
	EventID string `json:"event_id"`
	Entrant string `json:"entrant"`
}

type redrawStore interface {
	GetList(ctx context.Context, eventID string) (*models.EntrantList, error)
	FillSelections(ctx context.Context, eventID string, selectionLimit int, pool func(*models.EntrantList) []string, pick func(pool []string, n int) []string) ([]string, error)
}

// RedrawService refills freed selection slots after cancellations. The
// whole refill runs inside one store transaction that re-reads the
// entrant list, so a stale or duplicated job observes an already full
// selected set and lands as a no-op.
type RedrawService struct {
	events   eventReader
	entrants redrawStore
	engine   *DrawEngine
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewRedrawService constructs the service.
func NewRedrawService(events eventReader, entrants redrawStore, engine *DrawEngine, metrics *MetricsService, logger *zap.Logger) *RedrawService {
	if engine == nil {
		engine = NewDrawEngine(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedrawService{
		events:   events,
		entrants: entrants,
		engine:   engine,
		metrics:  metrics,
		logger:   logger,
	}
}

// Handler adapts the service to the job queue. Returned errors trigger
// the queue's retry; Run itself is idempotent so retries are safe.
func (s *RedrawService) Handler() jobs.Handler {
	return func(ctx context.Context, job jobs.Job) error {
		payload, ok := job.Payload.(RedrawJob)
		if !ok {
			// Malformed payloads never become valid; drop without retry.
			s.logger.Error("redraw job with unexpected payload",
				zap.String("job_id", job.ID),
				zap.Any("payload", job.Payload))
			return nil
		}
		return s.Run(ctx, payload.EventID, payload.Entrant)
	}
}

// Run performs one replacement draw for the event. The cancelled
// entrant is recorded for tracing only; the deficit is recomputed from
// the current selected set, not from the triggering cancellation.
func (s *RedrawService) Run(ctx context.Context, eventID, cancelled string) error {
	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Event deleted between cancel and redraw. Nothing to refill.
			s.logger.Warn("redraw for missing event", zap.String("event_id", eventID))
			return nil
		}
		return fmt.Errorf("load event %s: %w", eventID, err)
	}

	replacements, err := s.entrants.FillSelections(ctx, eventID, event.SelectionLimit, (*models.EntrantList).ReplacementPool, s.engine.Pick)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "replacement draw failed")
	}

	if len(replacements) == 0 {
		s.metrics.RecordRedraw("noop")
		s.logger.Info("redraw found nothing to do",
			zap.String("event_id", eventID),
			zap.String("cancelled", cancelled))
		return nil
	}

	s.metrics.RecordRedraw("filled")
	s.logger.Info("replacement draw complete",
		zap.String("event_id", eventID),
		zap.String("cancelled", cancelled),
		zap.Strings("replacements", replacements))
	return nil
}

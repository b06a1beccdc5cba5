package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evently-app/evently-api/internal/models"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
)

type channelEventReader interface {
	GetByIDs(ctx context.Context, ids []string) ([]models.Event, error)
}

type channelEntrantReader interface {
	ListEventIDsByEntrant(ctx context.Context, email string) ([]string, error)
	GetLists(ctx context.Context, eventIDs []string) (map[string]*models.EntrantList, error)
}

type channelCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// resolvedChannels is the cached resolution result for one entrant.
// Enrolled carries every event the entrant is on, including pending
// ones that resolve to no channel, so notification visibility can be
// answered from the same cache entry.
type resolvedChannels struct {
	Enrolled []string                  `json:"enrolled"`
	Channels map[string]models.Channel `json:"channels"`
}

// ChannelService resolves, per entrant, which notification channel each
// of their events currently maps to. Resolution happens at read time
// from the live entrant lists; the Redis cache only bounds how often
// that evaluation runs, writes never invalidate it.
type ChannelService struct {
	events   channelEventReader
	entrants channelEntrantReader
	cache    channelCache
	cacheTTL time.Duration
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewChannelService constructs the service. A nil cache disables
// caching entirely.
func NewChannelService(events channelEventReader, entrants channelEntrantReader, cache channelCache, cacheTTL time.Duration, metrics *MetricsService, logger *zap.Logger) *ChannelService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChannelService{
		events:   events,
		entrants: entrants,
		cache:    cache,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		logger:   logger,
	}
}

func channelCacheKey(email string) string {
	return "channels:" + email
}

// Resolve maps every event the entrant is enrolled in to its current
// channel. Selected entrants resolve to Winners; once the selection
// time has passed, unselected enrollees resolve to Losers; a
// cancellation overrides either. Events still pending selection where
// the entrant was not picked resolve to no channel and are absent from
// the map. The second return reports whether the result came from the
// cache.
func (s *ChannelService) Resolve(ctx context.Context, email string, now time.Time) (map[string]models.Channel, bool, error) {
	resolved, cached, err := s.resolve(ctx, email, now)
	if err != nil {
		return nil, false, err
	}
	return resolved.Channels, cached, nil
}

func (s *ChannelService) resolve(ctx context.Context, email string, now time.Time) (*resolvedChannels, bool, error) {
	email = models.NormalizeEmail(email)
	key := channelCacheKey(email)

	if s.cache != nil {
		var cached resolvedChannels
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, true, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			// Degrade to a direct resolution when Redis misbehaves.
			s.logger.Warn("channel cache lookup failed", zap.String("entrant", email), zap.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
	}

	eventIDs, err := s.entrants.ListEventIDsByEntrant(ctx, email)
	if err != nil {
		return nil, false, fmt.Errorf("list events for %s: %w", email, err)
	}

	resolved := &resolvedChannels{
		Enrolled: eventIDs,
		Channels: make(map[string]models.Channel, len(eventIDs)),
	}
	if len(eventIDs) > 0 {
		events, err := s.events.GetByIDs(ctx, eventIDs)
		if err != nil {
			return nil, false, fmt.Errorf("load events for %s: %w", email, err)
		}
		lists, err := s.entrants.GetLists(ctx, eventIDs)
		if err != nil {
			return nil, false, fmt.Errorf("load entrant lists for %s: %w", email, err)
		}

		for i := range events {
			event := &events[i]
			list := lists[event.ID]
			if list == nil {
				continue
			}
			switch {
			case list.IsCancelled(email):
				resolved.Channels[event.ID] = models.ChannelCancelled
			case list.IsSelected(email):
				resolved.Channels[event.ID] = models.ChannelWinners
			case event.SelectionClosed(now):
				resolved.Channels[event.ID] = models.ChannelLosers
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, resolved, s.cacheTTL); err != nil {
			s.logger.Warn("channel cache store failed", zap.String("entrant", email), zap.Error(err))
		}
	}
	return resolved, false, nil
}

// VisibleNotifications returns, newest first, the notifications the
// entrant may see: those on an enrolled event broadcast to everyone, or
// to the channel the entrant currently resolves to. The second return
// reports whether channel resolution was served from the cache.
func (s *ChannelService) VisibleNotifications(ctx context.Context, notifications []models.Notification, email string, now time.Time) ([]models.Notification, bool, error) {
	email = models.NormalizeEmail(email)

	resolved, cached, err := s.resolve(ctx, email, now)
	if err != nil {
		return nil, false, err
	}

	enrolled := make(map[string]struct{}, len(resolved.Enrolled))
	for _, id := range resolved.Enrolled {
		enrolled[id] = struct{}{}
	}

	visible := make([]models.Notification, 0, len(notifications))
	for _, n := range notifications {
		if _, ok := enrolled[n.EventID]; !ok {
			continue
		}
		if n.Channel == models.ChannelAll || n.Channel == resolved.Channels[n.EventID] {
			visible = append(visible, n)
		}
	}
	return visible, cached, nil
}

// EnrolledEventIDs exposes the cached enrolled-event set backing
// resolution, for callers that need to scope a notification query.
func (s *ChannelService) EnrolledEventIDs(ctx context.Context, email string, now time.Time) ([]string, error) {
	resolved, _, err := s.resolve(ctx, email, now)
	if err != nil {
		return nil, err
	}
	return resolved.Enrolled, nil
}

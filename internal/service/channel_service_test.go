package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evently-app/evently-api/internal/models"
	appErrors "github.com/evently-app/evently-api/pkg/errors"
)

type mockCache struct {
	entries map[string][]byte
	sets    int
}

func (m *mockCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.entries[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.entries[key] = raw
	m.sets++
	return nil
}

func newChannelFixture(events ...*models.Event) (*ChannelService, *mockEntrantStore, *mockCache) {
	repo := &mockEventRepo{events: make(map[string]*models.Event)}
	for _, e := range events {
		repo.events[e.ID] = e
	}
	store := newMockEntrantStore()
	cache := &mockCache{}
	svc := NewChannelService(repo, store, cache, time.Minute, nil, nil)
	return svc, store, cache
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	event := testEvent("ev-1")
	beforeSelection := event.SelectionTime.Add(-time.Hour)
	afterSelection := event.SelectionTime.Add(time.Hour)

	t.Run("selected entrants are winners", func(t *testing.T) {
		svc, store, _ := newChannelFixture(event)
		store.lists["ev-1"] = &models.EntrantList{
			EventID:  "ev-1",
			Enrolled: []string{"alice@example.com"},
			Selected: []string{"alice@example.com"},
		}

		resolved, cached, err := svc.Resolve(ctx, "alice@example.com", beforeSelection)
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, models.ChannelWinners, resolved["ev-1"])
	})

	t.Run("unselected entrants become losers only after the deadline", func(t *testing.T) {
		svc, store, _ := newChannelFixture(event)
		store.lists["ev-1"] = &models.EntrantList{
			EventID:  "ev-1",
			Enrolled: []string{"bob@example.com"},
		}

		resolved, _, err := svc.Resolve(ctx, "bob@example.com", beforeSelection)
		require.NoError(t, err)
		assert.NotContains(t, resolved, "ev-1")

		svc2, store2, _ := newChannelFixture(event)
		store2.lists["ev-1"] = store.lists["ev-1"]
		resolved, _, err = svc2.Resolve(ctx, "bob@example.com", afterSelection)
		require.NoError(t, err)
		assert.Equal(t, models.ChannelLosers, resolved["ev-1"])
	})

	t.Run("cancellation overrides selection", func(t *testing.T) {
		svc, store, _ := newChannelFixture(event)
		store.lists["ev-1"] = &models.EntrantList{
			EventID:   "ev-1",
			Enrolled:  []string{"carol@example.com"},
			Cancelled: []string{"carol@example.com"},
		}

		resolved, _, err := svc.Resolve(ctx, "carol@example.com", afterSelection)
		require.NoError(t, err)
		assert.Equal(t, models.ChannelCancelled, resolved["ev-1"])
	})

	t.Run("serves repeated lookups from the cache", func(t *testing.T) {
		svc, store, cache := newChannelFixture(event)
		store.lists["ev-1"] = &models.EntrantList{
			EventID:  "ev-1",
			Enrolled: []string{"alice@example.com"},
			Selected: []string{"alice@example.com"},
		}

		_, cached, err := svc.Resolve(ctx, "alice@example.com", afterSelection)
		require.NoError(t, err)
		assert.False(t, cached)
		assert.Equal(t, 1, cache.sets)

		// A store write does not invalidate; the TTL bounds staleness.
		store.lists["ev-1"].Selected = nil
		resolved, cached, err := svc.Resolve(ctx, "alice@example.com", afterSelection)
		require.NoError(t, err)
		assert.True(t, cached)
		assert.Equal(t, models.ChannelWinners, resolved["ev-1"])
	})
}

func TestVisibleNotifications(t *testing.T) {
	ctx := context.Background()
	event := testEvent("ev-1")
	other := testEvent("ev-2")
	afterSelection := event.SelectionTime.Add(time.Hour)

	svc, store, _ := newChannelFixture(event, other)
	store.lists["ev-1"] = &models.EntrantList{
		EventID:  "ev-1",
		Enrolled: []string{"alice@example.com"},
		Selected: []string{"alice@example.com"},
	}
	store.lists["ev-2"] = &models.EntrantList{
		EventID:  "ev-2",
		Enrolled: []string{"someone@else.com"},
	}

	notifications := []models.Notification{
		{ID: "n-1", EventID: "ev-1", Channel: models.ChannelAll, Title: "welcome"},
		{ID: "n-2", EventID: "ev-1", Channel: models.ChannelWinners, Title: "you won"},
		{ID: "n-3", EventID: "ev-1", Channel: models.ChannelLosers, Title: "sorry"},
		{ID: "n-4", EventID: "ev-2", Channel: models.ChannelAll, Title: "not yours"},
	}

	visible, _, err := svc.VisibleNotifications(ctx, notifications, "alice@example.com", afterSelection)
	require.NoError(t, err)

	ids := make([]string, 0, len(visible))
	for _, n := range visible {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"n-1", "n-2"}, ids)
}

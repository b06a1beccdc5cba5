package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evently-app/evently-api/internal/models"
	"github.com/evently-app/evently-api/internal/service"
	"github.com/evently-app/evently-api/pkg/response"
)

// waitlistStub backs both event lookup and channel resolution for one
// event.
type waitlistStub struct {
	event *models.Event
	list  *models.EntrantList
}

func (s *waitlistStub) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if s.event != nil && s.event.ID == id {
		return s.event, nil
	}
	return nil, sql.ErrNoRows
}

func (s *waitlistStub) GetByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	var out []models.Event
	for _, id := range ids {
		if s.event != nil && s.event.ID == id {
			out = append(out, *s.event)
		}
	}
	return out, nil
}

func (s *waitlistStub) ListEventIDsByEntrant(ctx context.Context, email string) ([]string, error) {
	if s.list != nil && s.list.IsEnrolled(email) {
		return []string{s.event.ID}, nil
	}
	return nil, nil
}

func (s *waitlistStub) GetLists(ctx context.Context, eventIDs []string) (map[string]*models.EntrantList, error) {
	out := make(map[string]*models.EntrantList, len(eventIDs))
	for _, id := range eventIDs {
		if s.list != nil && s.list.EventID == id {
			out[id] = s.list
		} else {
			out[id] = models.NewEntrantList(id)
		}
	}
	return out, nil
}

type notificationRepoStub struct {
	notifications []*models.Notification
	seen          map[string][]string
	seq           int
}

func newNotificationRepoStub() *notificationRepoStub {
	return &notificationRepoStub{seen: make(map[string][]string)}
}

func (s *notificationRepoStub) Create(ctx context.Context, notification *models.Notification) error {
	s.seq++
	notification.ID = fmt.Sprintf("n-%d", s.seq)
	notification.CreationTime = time.Now().UTC().Add(time.Duration(s.seq) * time.Second)
	s.notifications = append(s.notifications, notification)
	return nil
}

func (s *notificationRepoStub) GetByID(ctx context.Context, id string) (*models.Notification, error) {
	for _, n := range s.notifications {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *notificationRepoStub) ListByEventIDs(ctx context.Context, eventIDs []string) ([]models.Notification, error) {
	wanted := make(map[string]struct{}, len(eventIDs))
	for _, id := range eventIDs {
		wanted[id] = struct{}{}
	}
	var out []models.Notification
	for i := len(s.notifications) - 1; i >= 0; i-- {
		if _, ok := wanted[s.notifications[i].EventID]; ok {
			out = append(out, *s.notifications[i])
		}
	}
	return out, nil
}

func (s *notificationRepoStub) ListAll(ctx context.Context) ([]models.Notification, error) {
	var out []models.Notification
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	return out, nil
}

func (s *notificationRepoStub) MarkSeen(ctx context.Context, notificationID, email string) error {
	s.seen[notificationID] = append(s.seen[notificationID], email)
	return nil
}

func newNotificationHandler(stub *waitlistStub, repo *notificationRepoStub) *NotificationHandler {
	channels := service.NewChannelService(stub, stub, nil, 0, nil, nil)
	return NewNotificationHandler(service.NewNotificationService(repo, stub, channels, nil, nil))
}

func broadcast(t *testing.T, h *NotificationHandler, repo *notificationRepoStub, channel, title string) {
	t.Helper()
	w := postJSON(t, h.Broadcast, "/notifications", nil, service.BroadcastRequest{
		EventID: "ev-1",
		Channel: channel,
		Title:   title,
	})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestNotificationHandlerBroadcast(t *testing.T) {
	stub := &waitlistStub{event: fixtureEvent()}

	t.Run("created", func(t *testing.T) {
		repo := newNotificationRepoStub()
		h := newNotificationHandler(stub, repo)

		w := postJSON(t, h.Broadcast, "/notifications", nil, service.BroadcastRequest{
			EventID: "ev-1",
			Channel: "winners",
			Title:   "You are in",
		})
		require.Equal(t, http.StatusCreated, w.Code)
		require.Len(t, repo.notifications, 1)
		assert.Equal(t, models.ChannelWinners, repo.notifications[0].Channel)
	})

	t.Run("rejects an unknown channel", func(t *testing.T) {
		h := newNotificationHandler(stub, newNotificationRepoStub())

		w := postJSON(t, h.Broadcast, "/notifications", nil, service.BroadcastRequest{
			EventID: "ev-1",
			Channel: "vip",
			Title:   "x",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var envelope response.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.NotNil(t, envelope.Error)
		assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	})

	t.Run("unknown event maps to 404", func(t *testing.T) {
		h := newNotificationHandler(stub, newNotificationRepoStub())

		w := postJSON(t, h.Broadcast, "/notifications", nil, service.BroadcastRequest{
			EventID: "missing",
			Channel: "all",
			Title:   "x",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestNotificationHandlerList(t *testing.T) {
	stub := &waitlistStub{
		event: fixtureEvent(),
		list: &models.EntrantList{
			EventID:  "ev-1",
			Enrolled: []string{"alice@example.com", "bob@example.com"},
			Selected: []string{"alice@example.com"},
		},
	}
	repo := newNotificationRepoStub()
	h := newNotificationHandler(stub, repo)
	broadcast(t, h, repo, "all", "general")
	broadcast(t, h, repo, "winners", "congrats")
	broadcast(t, h, repo, "losers", "next time")

	t.Run("without an email returns everything", func(t *testing.T) {
		w := doRequest(t, h.List, http.MethodGet, "/notifications", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Data []models.Notification `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Len(t, envelope.Data, 3)
	})

	t.Run("with an email returns the visible feed", func(t *testing.T) {
		w := doRequest(t, h.List, http.MethodGet, "/notifications?email=alice@example.com", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Data []models.Notification  `json:"data"`
			Meta map[string]interface{} `json:"meta"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))

		titles := make([]string, 0, len(envelope.Data))
		for _, n := range envelope.Data {
			titles = append(titles, n.Title)
		}
		assert.ElementsMatch(t, []string{"general", "congrats"}, titles)
		assert.Equal(t, false, envelope.Meta["channels_cached"])
	})

	t.Run("a stranger sees an empty feed", func(t *testing.T) {
		w := doRequest(t, h.List, http.MethodGet, "/notifications?email=nobody@example.com", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Data []models.Notification `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Empty(t, envelope.Data)
	})
}

func TestNotificationHandlerMarkSeen(t *testing.T) {
	stub := &waitlistStub{event: fixtureEvent()}
	repo := newNotificationRepoStub()
	h := newNotificationHandler(stub, repo)
	broadcast(t, h, repo, "all", "general")

	params := gin.Params{{Key: "id", Value: "n-1"}}

	t.Run("records the read", func(t *testing.T) {
		w := postJSON(t, h.MarkSeen, "/notifications/n-1/seen", params, EntrantRequest{Email: "Alice@Example.com"})
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"alice@example.com"}, repo.seen["n-1"])
	})

	t.Run("rejects a malformed email", func(t *testing.T) {
		w := postJSON(t, h.MarkSeen, "/notifications/n-1/seen", params, map[string]string{"email": "nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown notification maps to 404", func(t *testing.T) {
		w := postJSON(t, h.MarkSeen, "/notifications/missing/seen", gin.Params{{Key: "id", Value: "missing"}}, EntrantRequest{Email: "alice@example.com"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

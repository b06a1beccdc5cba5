package handler

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evently-app/evently-api/internal/models"
	"github.com/evently-app/evently-api/internal/service"
	"github.com/evently-app/evently-api/pkg/response"
)

type eventStoreStub struct {
	events  map[string]*models.Event
	listed  []models.Event
	deleted []string
}

func newEventStoreStub(events ...*models.Event) *eventStoreStub {
	s := &eventStoreStub{events: make(map[string]*models.Event)}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *eventStoreStub) Create(ctx context.Context, event *models.Event) error {
	event.ID = "ev-new"
	s.events[event.ID] = event
	return nil
}

func (s *eventStoreStub) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if e, ok := s.events[id]; ok {
		return e, nil
	}
	return nil, sql.ErrNoRows
}

func (s *eventStoreStub) GetByIDs(ctx context.Context, ids []string) ([]models.Event, error) {
	var out []models.Event
	for _, id := range ids {
		if e, ok := s.events[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *eventStoreStub) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	return s.listed, len(s.listed), nil
}

func (s *eventStoreStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type entrantReaderStub struct {
	list       *models.EntrantList
	enrolledIn []string
}

func (s *entrantReaderStub) GetList(ctx context.Context, eventID string) (*models.EntrantList, error) {
	if s.list != nil {
		return s.list, nil
	}
	return models.NewEntrantList(eventID), nil
}

func (s *entrantReaderStub) ListEventIDsByEntrant(ctx context.Context, email string) ([]string, error) {
	return s.enrolledIn, nil
}

func newEventHandler(store *eventStoreStub, entrants *entrantReaderStub) *EventHandler {
	return NewEventHandler(service.NewEventService(store, entrants, nil, nil))
}

func doRequest(t *testing.T, handler gin.HandlerFunc, method, target string, params gin.Params) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, nil)
	require.NoError(t, err)
	c.Request = req
	c.Params = params
	handler(c)
	c.Writer.WriteHeaderNow()
	return w
}

func TestEventHandlerCreate(t *testing.T) {
	payload := service.CreateEventRequest{
		Name:           "Swim Camp",
		Category:       "sports",
		SelectionTime:  time.Now().Add(time.Hour),
		EventTime:      time.Now().Add(2 * time.Hour),
		Organizer:      "org@example.com",
		SelectionLimit: 2,
	}

	t.Run("created", func(t *testing.T) {
		store := newEventStoreStub()
		h := newEventHandler(store, &entrantReaderStub{})

		w := postJSON(t, h.Create, "/events", nil, payload)
		require.Equal(t, http.StatusCreated, w.Code)
		assert.Contains(t, store.events, "ev-new")

		var envelope struct {
			Data models.Event `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Equal(t, models.CategorySports, envelope.Data.Category)
	})

	t.Run("rejects an unknown category", func(t *testing.T) {
		h := newEventHandler(newEventStoreStub(), &entrantReaderStub{})
		bad := payload
		bad.Category = "knitting"

		w := postJSON(t, h.Create, "/events", nil, bad)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var envelope response.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.NotNil(t, envelope.Error)
		assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	})

	t.Run("rejects an event time before the selection time", func(t *testing.T) {
		h := newEventHandler(newEventStoreStub(), &entrantReaderStub{})
		bad := payload
		bad.EventTime = bad.SelectionTime.Add(-time.Minute)

		w := postJSON(t, h.Create, "/events", nil, bad)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventHandlerGet(t *testing.T) {
	event := fixtureEvent()
	entrants := &entrantReaderStub{list: &models.EntrantList{
		EventID:  event.ID,
		Enrolled: []string{"a@x.com", "b@x.com"},
		Selected: []string{"a@x.com"},
	}}
	h := newEventHandler(newEventStoreStub(event), entrants)

	t.Run("returns counts and status", func(t *testing.T) {
		w := doRequest(t, h.Get, http.MethodGet, "/events/ev-1", gin.Params{{Key: "id", Value: "ev-1"}})
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Data models.EventDetail `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		assert.Equal(t, 2, envelope.Data.EnrolledCount)
		assert.Equal(t, 1, envelope.Data.SelectedCount)
		assert.Equal(t, models.EventStatusOpen, envelope.Data.WaitlistStatus)
	})

	t.Run("unknown event maps to 404", func(t *testing.T) {
		w := doRequest(t, h.Get, http.MethodGet, "/events/missing", gin.Params{{Key: "id", Value: "missing"}})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestEventHandlerList(t *testing.T) {
	event := fixtureEvent()

	t.Run("pages the general listing", func(t *testing.T) {
		store := newEventStoreStub()
		store.listed = []models.Event{*event}
		h := newEventHandler(store, &entrantReaderStub{})

		w := doRequest(t, h.List, http.MethodGet, "/events?page=1&limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope response.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.NotNil(t, envelope.Pagination)
		assert.Equal(t, 1, envelope.Pagination.TotalCount)
	})

	t.Run("narrows to the entrant's enrollments", func(t *testing.T) {
		store := newEventStoreStub(event)
		h := newEventHandler(store, &entrantReaderStub{enrolledIn: []string{event.ID}})

		w := doRequest(t, h.List, http.MethodGet, "/events?enrolled=alice@example.com", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var envelope struct {
			Data []models.Event `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.Len(t, envelope.Data, 1)
		assert.Equal(t, event.ID, envelope.Data[0].ID)
	})

	t.Run("rejects a malformed from time", func(t *testing.T) {
		h := newEventHandler(newEventStoreStub(), &entrantReaderStub{})

		w := doRequest(t, h.List, http.MethodGet, "/events?from=yesterday", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var envelope response.Envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
		require.NotNil(t, envelope.Error)
		assert.Equal(t, "VALIDATION_ERROR", envelope.Error.Code)
	})

	t.Run("rejects an unknown category filter", func(t *testing.T) {
		h := newEventHandler(newEventStoreStub(), &entrantReaderStub{})

		w := doRequest(t, h.List, http.MethodGet, "/events?category=knitting", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEventHandlerDelete(t *testing.T) {
	event := fixtureEvent()

	t.Run("deletes and responds 204", func(t *testing.T) {
		store := newEventStoreStub(event)
		h := newEventHandler(store, &entrantReaderStub{})

		w := doRequest(t, h.Delete, http.MethodDelete, "/events/ev-1", gin.Params{{Key: "id", Value: "ev-1"}})
		require.Equal(t, http.StatusNoContent, w.Code)
		assert.Equal(t, []string{"ev-1"}, store.deleted)
	})

	t.Run("unknown event maps to 404", func(t *testing.T) {
		h := newEventHandler(newEventStoreStub(), &entrantReaderStub{})

		w := doRequest(t, h.Delete, http.MethodDelete, "/events/missing", gin.Params{{Key: "id", Value: "missing"}})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evently-app/evently-api/internal/models"
)

func newEventRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func eventColumnList() []string {
	return []string{"id", "name", "description", "category", "requires_location", "selection_time", "event_time", "organizer", "selection_limit", "entrant_limit", "created_at", "updated_at"}
}

func eventRow(id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(eventColumnList()).
		AddRow(id, "Swim Camp", "", "SPORTS", false, now.Add(time.Hour), now.Add(2*time.Hour), "org@example.com", 10, nil, now, now)
}

func TestEventRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 0)
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.Event{
		Name:           "Swim Camp",
		Category:       models.CategorySports,
		SelectionTime:  time.Now().Add(time.Hour),
		EventTime:      time.Now().Add(2 * time.Hour),
		Organizer:      "org@example.com",
		SelectionLimit: 10,
	}
	require.NoError(t, repo.Create(context.Background(), event))
	assert.NotEmpty(t, event.ID)

	mock.ExpectQuery("SELECT id, name, description, category").
		WithArgs(event.ID).
		WillReturnRows(eventRow(event.ID))

	found, err := repo.GetByID(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, event.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryGetByIDsChunks(t *testing.T) {
	db, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 2)
	mock.ExpectQuery("SELECT id, name, description, category, .+ FROM events WHERE id IN").
		WithArgs("ev-1", "ev-2").
		WillReturnRows(eventRow("ev-1"))
	mock.ExpectQuery("SELECT id, name, description, category, .+ FROM events WHERE id IN").
		WithArgs("ev-3").
		WillReturnRows(eventRow("ev-3"))

	events, err := repo.GetByIDs(context.Background(), []string{"ev-1", "ev-2", "ev-3"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 0)
	mock.ExpectQuery("SELECT id, name, description, category, .+ FROM events WHERE organizer = .+ AND category = .+ ORDER BY event_time DESC").
		WithArgs("org@example.com", models.CategorySports).
		WillReturnRows(eventRow("ev-1"))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE organizer = .+ AND category = .+`).
		WithArgs("org@example.com", models.CategorySports).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	events, total, err := repo.List(context.Background(), models.EventFilter{
		Organizer: "org@example.com",
		Category:  models.CategorySports,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepositoryDeleteCascades(t *testing.T) {
	db, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	repo := NewEventRepository(db, 0)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notification_seen WHERE notification_id IN").
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM notifications WHERE event_id").
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM event_entrants WHERE event_id").
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("DELETE FROM events WHERE id").
		WithArgs("ev-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "ev-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

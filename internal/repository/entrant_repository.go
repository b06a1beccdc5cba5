package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/evently-app/evently-api/internal/models"
)

// defaultQueryBatchSize bounds identifier-keyed bulk reads. It matches
// the 30-element whereIn limit of the source platform so the chunking
// contract stays the same.
const defaultQueryBatchSize = 30

// EntrantRepository persists the per-event entrant membership sets.
//
// Each membership is one row in event_entrants; adding an entrant to a
// set is an INSERT .. ON CONFLICT DO NOTHING and removing one is a
// DELETE. Both are atomic and commutative, like the array-union and
// array-remove primitives of the source store. Relationships between
// two different sets are not enforced by single writes; multi-set
// operations here run in one transaction.
type EntrantRepository struct {
	db        *sqlx.DB
	batchSize int
}

// NewEntrantRepository constructs the repository.
func NewEntrantRepository(db *sqlx.DB, batchSize int) *EntrantRepository {
	if batchSize <= 0 {
		batchSize = defaultQueryBatchSize
	}
	return &EntrantRepository{db: db, batchSize: batchSize}
}

type entrantRow struct {
	EventID string            `db:"event_id"`
	Email   string            `db:"entrant_email"`
	List    models.EntrantSet `db:"list"`
	Lat     sql.NullFloat64   `db:"lat"`
	Lng     sql.NullFloat64   `db:"lng"`
}

func assembleLists(rows []entrantRow) map[string]*models.EntrantList {
	lists := make(map[string]*models.EntrantList)
	for _, row := range rows {
		list, ok := lists[row.EventID]
		if !ok {
			list = models.NewEntrantList(row.EventID)
			lists[row.EventID] = list
		}
		switch row.List {
		case models.SetEnrolled:
			list.Enrolled = append(list.Enrolled, row.Email)
			if row.Lat.Valid && row.Lng.Valid {
				if list.Locations == nil {
					list.Locations = make(map[string]models.GeoPoint)
				}
				list.Locations[row.Email] = models.GeoPoint{Lat: row.Lat.Float64, Lng: row.Lng.Float64}
			}
		case models.SetSelected:
			list.Selected = append(list.Selected, row.Email)
		case models.SetAccepted:
			list.Accepted = append(list.Accepted, row.Email)
		case models.SetCancelled:
			list.Cancelled = append(list.Cancelled, row.Email)
		}
	}
	return lists
}

// GetList returns the entrant list for one event. An event with no
// memberships yields an empty list, mirroring the document created
// alongside each event in the source system.
func (r *EntrantRepository) GetList(ctx context.Context, eventID string) (*models.EntrantList, error) {
	const query = `SELECT event_id, entrant_email, list, lat, lng FROM event_entrants WHERE event_id = $1`
	var rows []entrantRow
	if err := r.db.SelectContext(ctx, &rows, query, eventID); err != nil {
		return nil, fmt.Errorf("get entrant list: %w", err)
	}
	if list, ok := assembleLists(rows)[eventID]; ok {
		return list, nil
	}
	return models.NewEntrantList(eventID), nil
}

// GetLists returns entrant lists for the given events, keyed by event
// ID. Reads are chunked at the repository batch size. Events with no
// memberships map to empty lists.
func (r *EntrantRepository) GetLists(ctx context.Context, eventIDs []string) (map[string]*models.EntrantList, error) {
	lists := make(map[string]*models.EntrantList, len(eventIDs))
	for _, chunk := range chunkIDs(eventIDs, r.batchSize) {
		query, args, err := sqlx.In(`SELECT event_id, entrant_email, list, lat, lng FROM event_entrants WHERE event_id IN (?)`, chunk)
		if err != nil {
			return nil, fmt.Errorf("build entrant lists query: %w", err)
		}
		var rows []entrantRow
		if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("get entrant lists: %w", err)
		}
		for id, list := range assembleLists(rows) {
			lists[id] = list
		}
	}
	for _, id := range eventIDs {
		if _, ok := lists[id]; !ok {
			lists[id] = models.NewEntrantList(id)
		}
	}
	return lists, nil
}

// ListEventIDsByEntrant returns the IDs of every event the email is
// enrolled in.
func (r *EntrantRepository) ListEventIDsByEntrant(ctx context.Context, email string) ([]string, error) {
	const query = `SELECT event_id FROM event_entrants WHERE entrant_email = $1 AND list = $2 ORDER BY added_at`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, email, models.SetEnrolled); err != nil {
		return nil, fmt.Errorf("list events by entrant: %w", err)
	}
	return ids, nil
}

// Add puts the email into the given set. Adding an existing member is a
// no-op, so the write is safe to retry.
func (r *EntrantRepository) Add(ctx context.Context, eventID, email string, set models.EntrantSet) error {
	const query = `INSERT INTO event_entrants (event_id, entrant_email, list, added_at)
VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, eventID, email, set, time.Now().UTC()); err != nil {
		return fmt.Errorf("add entrant to %s: %w", set, err)
	}
	return nil
}

// Remove deletes the email from the given set. Removing a non-member is
// a no-op.
func (r *EntrantRepository) Remove(ctx context.Context, eventID, email string, set models.EntrantSet) error {
	const query = `DELETE FROM event_entrants WHERE event_id = $1 AND entrant_email = $2 AND list = $3`
	if _, err := r.db.ExecContext(ctx, query, eventID, email, set); err != nil {
		return fmt.Errorf("remove entrant from %s: %w", set, err)
	}
	return nil
}

// AddEnrolledCapped enrolls the email unless the enrolled set already
// holds limit members. The capacity check and the insert are one
// statement, so concurrent enrollments cannot overshoot the limit the
// way the source system's fetch-then-append could. A nil limit means
// unbounded. Returns false when the row was not inserted, either
// because capacity was reached or the entrant was already enrolled.
func (r *EntrantRepository) AddEnrolledCapped(ctx context.Context, eventID, email string, coord *models.GeoPoint, limit *int) (bool, error) {
	var lat, lng interface{}
	if coord != nil {
		lat, lng = coord.Lat, coord.Lng
	}

	if limit == nil {
		const query = `INSERT INTO event_entrants (event_id, entrant_email, list, lat, lng, added_at)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`
		res, err := r.db.ExecContext(ctx, query, eventID, email, models.SetEnrolled, lat, lng, time.Now().UTC())
		if err != nil {
			return false, fmt.Errorf("enroll entrant: %w", err)
		}
		affected, _ := res.RowsAffected()
		return affected > 0, nil
	}

	const query = `INSERT INTO event_entrants (event_id, entrant_email, list, lat, lng, added_at)
SELECT $1, $2, $3, $4, $5, $6
WHERE (SELECT COUNT(*) FROM event_entrants WHERE event_id = $1 AND list = $3) < $7
ON CONFLICT DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, eventID, email, models.SetEnrolled, lat, lng, time.Now().UTC(), *limit)
	if err != nil {
		return false, fmt.Errorf("enroll entrant: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// CancelSelected moves the email from selected to cancelled in one
// transaction. From an external reader's point of view the two writes
// are still sequential; within the store they commit together.
func (r *EntrantRepository) CancelSelected(ctx context.Context, eventID, email string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM event_entrants WHERE event_id = $1 AND entrant_email = $2 AND list = $3`,
		eventID, email, models.SetSelected); err != nil {
		return fmt.Errorf("cancel: remove from selected: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO event_entrants (event_id, entrant_email, list, added_at)
VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
		eventID, email, models.SetCancelled, time.Now().UTC()); err != nil {
		return fmt.Errorf("cancel: add to cancelled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel: %w", err)
	}
	return nil
}

// FillSelections tops the selected set up to selectionLimit inside a
// transaction. It re-reads current membership with the rows locked,
// recomputes the deficit, draws winners via pick from the eligible set
// chosen by pool (the candidate pool for an organizer draw, the
// replacement pool for a redraw) and inserts them. Running it again
// after the deficit is filled is a no-op, which is what makes both
// concurrent draws and duplicate or out-of-order redraw jobs safe.
func (r *EntrantRepository) FillSelections(ctx context.Context, eventID string, selectionLimit int, pool func(*models.EntrantList) []string, pick func(pool []string, n int) []string) ([]string, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin fill selections: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var rows []entrantRow
	if err := tx.SelectContext(ctx,
		&rows,
		`SELECT event_id, entrant_email, list, lat, lng FROM event_entrants WHERE event_id = $1 FOR UPDATE`,
		eventID); err != nil {
		return nil, fmt.Errorf("fill selections: read memberships: %w", err)
	}
	list, ok := assembleLists(rows)[eventID]
	if !ok {
		list = models.NewEntrantList(eventID)
	}

	deficit := selectionLimit - len(list.Selected)
	if deficit <= 0 {
		// A concurrent redraw already refilled the selections.
		return nil, tx.Commit()
	}
	eligible := pool(list)
	if len(eligible) == 0 {
		// Nobody left to draw; the event runs under-filled.
		return nil, tx.Commit()
	}
	if deficit > len(eligible) {
		deficit = len(eligible)
	}

	winners := pick(eligible, deficit)
	now := time.Now().UTC()
	for _, email := range winners {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO event_entrants (event_id, entrant_email, list, added_at)
VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
			eventID, email, models.SetSelected, now); err != nil {
			return nil, fmt.Errorf("fill selections: add winner: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit fill selections: %w", err)
	}
	return winners, nil
}

// chunkIDs splits ids into slices of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		size = defaultQueryBatchSize
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}

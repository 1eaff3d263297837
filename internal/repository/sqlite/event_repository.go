package sqlite

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/elax46/frigate/internal/models"
)

// defaultLimit caps an event query when the caller supplies no limit.
const defaultLimit = 100

// EventRepository implements repository.EventRepository for SQLite.
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new SQLite event repository.
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert adds a new event record and its zones to the database.
func (r *EventRepository) Insert(event *models.Event) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO events (id, camera, label, start_time, end_time, thumbnail)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.ID, event.Camera, event.Label, event.StartTime, event.EndTime, event.Thumbnail)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	for _, zone := range event.Zones {
		_, err := tx.Exec(`
			INSERT INTO event_zones (event_id, zone)
			VALUES (?, ?)
		`, event.ID, zone)
		if err != nil {
			return fmt.Errorf("failed to insert zone: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an event by its identifier. Returns (nil, nil) when no
// event exists with that id.
func (r *EventRepository) GetByID(id string) (*models.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var event models.Event
	err := r.db.Conn().QueryRow(`
		SELECT id, camera, label, start_time, end_time, thumbnail
		FROM events WHERE id = ?
	`, id).Scan(&event.ID, &event.Camera, &event.Label, &event.StartTime, &event.EndTime, &event.Thumbnail)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	zones, err := r.zonesFor([]string{event.ID})
	if err != nil {
		return nil, err
	}
	event.Zones = zones[event.ID]
	if event.Zones == nil {
		event.Zones = []string{}
	}

	return &event, nil
}

// GetAll retrieves events matching the filter, ordered by start time
// descending. Filter options combine with AND; an empty filter returns the
// most recent events up to the limit.
func (r *EventRepository) GetAll(filter *models.EventFilter) ([]models.Event, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT e.id, e.camera, e.label, e.start_time, e.end_time, e.thumbnail
		FROM events e
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.Camera != "" {
		query += " AND e.camera = ?"
		args = append(args, filter.Camera)
	}

	if filter.Label != "" {
		query += " AND e.label = ?"
		args = append(args, filter.Label)
	}

	if filter.Zone != "" {
		// exact membership in the zone set
		query += " AND EXISTS (SELECT 1 FROM event_zones z WHERE z.event_id = e.id AND z.zone = ?)"
		args = append(args, filter.Zone)
	}

	if filter.After != 0 {
		query += " AND e.start_time >= ?"
		args = append(args, filter.After)
	}

	if filter.Before != 0 {
		query += " AND e.start_time <= ?"
		args = append(args, filter.Before)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	query += " ORDER BY e.start_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []models.Event{}
	ids := []string{}
	for rows.Next() {
		var event models.Event
		if err := rows.Scan(&event.ID, &event.Camera, &event.Label, &event.StartTime, &event.EndTime, &event.Thumbnail); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.Zones = []string{}
		events = append(events, event)
		ids = append(ids, event.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	zones, err := r.zonesFor(ids)
	if err != nil {
		return nil, err
	}
	for i := range events {
		if z, ok := zones[events[i].ID]; ok {
			events[i].Zones = z
		}
	}

	return events, nil
}

// Summary returns event counts grouped by camera, label, local day and
// zone. Events without zones are counted under an empty zone name.
func (r *EventRepository) Summary() ([]models.EventSummary, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT e.camera, e.label,
			strftime('%Y-%m-%d', datetime(e.start_time, 'unixepoch', 'localtime')) AS day,
			COALESCE(z.zone, '') AS zone,
			COUNT(e.id) AS count
		FROM events e
		LEFT JOIN event_zones z ON z.event_id = e.id
		GROUP BY e.camera, e.label, day, zone
		ORDER BY e.camera, e.label, day, zone
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query summary: %w", err)
	}
	defer rows.Close()

	summaries := []models.EventSummary{}
	for rows.Next() {
		var s models.EventSummary
		if err := rows.Scan(&s.Camera, &s.Label, &s.Day, &s.Zone, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan summary row: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate summary rows: %w", err)
	}

	return summaries, nil
}

// zonesFor loads the zone sets for the given event ids.
func (r *EventRepository) zonesFor(ids []string) (map[string][]string, error) {
	zones := make(map[string][]string, len(ids))
	if len(ids) == 0 {
		return zones, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Conn().Query(`
		SELECT event_id, zone FROM event_zones WHERE event_id IN (`+placeholders+`) ORDER BY zone
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, zone string
		if err := rows.Scan(&id, &zone); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		zones[id] = append(zones[id], zone)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zones: %w", err)
	}

	return zones, nil
}

package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"trafficmonitor/internal/model"
)

// IncidentRepository implements repository.IncidentRepository for SQLite.
type IncidentRepository struct {
	db *DB
}

// NewIncidentRepository creates a new SQLite incident repository.
func NewIncidentRepository(db *DB) *IncidentRepository {
	return &IncidentRepository{db: db}
}

// Insert adds a new incident record. A zero timestamp is set to now.
func (r *IncidentRepository) Insert(inc *model.Incident) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if inc.Timestamp.IsZero() {
		inc.Timestamp = time.Now()
	}
	inc.Timestamp = inc.Timestamp.UTC()

	result, err := r.db.Conn().Exec(`
		INSERT INTO incidents (incident_type, severity, timestamp, session_id, camera_id)
		VALUES (?, ?, ?, ?, ?)
	`, inc.IncidentType, inc.Severity, inc.Timestamp, inc.SessionID, inc.CameraID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert incident: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	inc.ID = id
	return id, nil
}

// GetByID retrieves an incident by its ID. It returns nil when none exists.
func (r *IncidentRepository) GetByID(id int64) (*model.Incident, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var inc model.Incident
	err := r.db.Conn().QueryRow(`
		SELECT incident_id, camera_id, incident_type, severity, timestamp, session_id
		FROM incidents WHERE incident_id = ?
	`, id).Scan(&inc.ID, &inc.CameraID, &inc.IncidentType, &inc.Severity, &inc.Timestamp, &inc.SessionID)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get incident: %w", err)
	}
	return &inc, nil
}

// GetAll retrieves incidents matching filter, newest first.
func (r *IncidentRepository) GetAll(filter *model.IncidentFilter) ([]model.Incident, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildIncidentWhere(filter)
	query := `
		SELECT incident_id, camera_id, incident_type, severity, timestamp, session_id
		FROM incidents
		WHERE 1=1` + where + `
		ORDER BY timestamp DESC, incident_id DESC`

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []model.Incident
	for rows.Next() {
		var inc model.Incident
		if err := rows.Scan(&inc.ID, &inc.CameraID, &inc.IncidentType, &inc.Severity, &inc.Timestamp, &inc.SessionID); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		incidents = append(incidents, inc)
	}

	return incidents, rows.Err()
}

// GetTotalCount returns the number of incidents matching filter, ignoring limit and offset.
func (r *IncidentRepository) GetTotalCount(filter *model.IncidentFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildIncidentWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM incidents WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count incidents: %w", err)
	}
	return count, nil
}

// GetStats returns incident counts recorded at or after since.
func (r *IncidentRepository) GetStats(since time.Time) (*model.IncidentStats, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	since = since.UTC()
	stats := &model.IncidentStats{
		Since:       since,
		PerSeverity: make(map[string]int),
		PerType:     make(map[string]int),
		PerCamera:   make(map[int64]int),
	}

	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM incidents WHERE timestamp >= ?`, since).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}

	if err := r.countInto(`SELECT severity, COUNT(*) FROM incidents WHERE timestamp >= ? GROUP BY severity`, since, func(rows *sql.Rows) error {
		var severity string
		var count int
		if err := rows.Scan(&severity, &count); err != nil {
			return err
		}
		stats.PerSeverity[severity] = count
		return nil
	}); err != nil {
		return nil, err
	}

	if err := r.countInto(`SELECT incident_type, COUNT(*) FROM incidents WHERE timestamp >= ? GROUP BY incident_type`, since, func(rows *sql.Rows) error {
		var incidentType string
		var count int
		if err := rows.Scan(&incidentType, &count); err != nil {
			return err
		}
		stats.PerType[incidentType] = count
		return nil
	}); err != nil {
		return nil, err
	}

	if err := r.countInto(`SELECT camera_id, COUNT(*) FROM incidents WHERE timestamp >= ? GROUP BY camera_id`, since, func(rows *sql.Rows) error {
		var cameraID int64
		var count int
		if err := rows.Scan(&cameraID, &count); err != nil {
			return err
		}
		stats.PerCamera[cameraID] = count
		return nil
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

func (r *IncidentRepository) countInto(query string, since time.Time, scan func(*sql.Rows) error) error {
	rows, err := r.db.Conn().Query(query, since)
	if err != nil {
		return fmt.Errorf("failed to query incident stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("failed to scan incident stats: %w", err)
		}
	}
	return rows.Err()
}

// DeleteByCamera removes every incident of a camera and returns how many
// were removed.
func (r *IncidentRepository) DeleteByCamera(cameraID int64) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`DELETE FROM incidents WHERE camera_id = ?`, cameraID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete incidents: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func buildIncidentWhere(filter *model.IncidentFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	where := ""
	args := []interface{}{}

	if filter.CameraID > 0 {
		where += " AND camera_id = ?"
		args = append(args, filter.CameraID)
	}

	if filter.Severity != "" {
		where += " AND severity = ?"
		args = append(args, filter.Severity)
	}

	if filter.Type != "" {
		where += " AND incident_type = ?"
		args = append(args, filter.Type)
	}

	if !filter.Since.IsZero() {
		where += " AND timestamp >= ?"
		args = append(args, filter.Since.UTC())
	}

	if !filter.Until.IsZero() {
		where += " AND timestamp < ?"
		args = append(args, filter.Until.UTC())
	}

	return where, args
}

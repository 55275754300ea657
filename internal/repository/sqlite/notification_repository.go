package sqlite

import (
	"fmt"
	"time"

	"trafficmonitor/internal/model"
)

// NotificationRepository implements repository.NotificationRepository for SQLite.
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new SQLite notification repository.
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Insert stores a notification. A zero timestamp is set to now.
func (r *NotificationRepository) Insert(n *model.Notification) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	n.Timestamp = n.Timestamp.UTC()

	result, err := r.db.Conn().Exec(`
		INSERT INTO notifications (incident_id, camera_id, message, url, category, severity, read_status, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.IncidentID, n.CameraID, n.Message, n.URL, n.Category, n.Severity, n.Read, n.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	n.ID = id
	return id, nil
}

// GetAll retrieves notifications matching filter, newest first.
func (r *NotificationRepository) GetAll(filter *model.NotificationFilter) ([]model.Notification, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildNotificationWhere(filter)
	query := `
		SELECT notification_id, incident_id, camera_id, message, url, category, severity, read_status, timestamp
		FROM notifications
		WHERE 1=1` + where + `
		ORDER BY timestamp DESC, notification_id DESC`

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
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []model.Notification
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.IncidentID, &n.CameraID, &n.Message, &n.URL, &n.Category, &n.Severity, &n.Read, &n.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// GetTotalCount returns the number of notifications matching filter, ignoring limit and offset.
func (r *NotificationRepository) GetTotalCount(filter *model.NotificationFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	where, args := buildNotificationWhere(filter)

	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM notifications WHERE 1=1`+where, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notifications: %w", err)
	}
	return count, nil
}

// SetRead marks a notification read or unread. It returns false when
// there is no notification with id.
func (r *NotificationRepository) SetRead(id int64, read bool) (bool, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`UPDATE notifications SET read_status = ? WHERE notification_id = ?`, read, id)
	if err != nil {
		return false, fmt.Errorf("failed to update notification: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n > 0, nil
}

func buildNotificationWhere(filter *model.NotificationFilter) (string, []interface{}) {
	if filter == nil {
		return "", nil
	}

	switch filter.Status {
	case model.NotificationStatusRead:
		return " AND read_status = 1", nil
	case model.NotificationStatusUnread:
		return " AND read_status = 0", nil
	}
	return "", nil
}

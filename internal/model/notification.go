package model

import "time"

// Notification statuses accepted by NotificationFilter.
const (
	NotificationStatusAll    = "all"
	NotificationStatusRead   = "read"
	NotificationStatusUnread = "unread"
)

// Notification is a persisted alert raised by a stored incident.
type Notification struct {
	ID         int64     `json:"notification_id"`
	IncidentID int64     `json:"incident_id"`
	CameraID   int64     `json:"camera_id"`
	Message    string    `json:"message"`
	URL        string    `json:"url"`
	Category   string    `json:"category"`
	Severity   string    `json:"severity"`
	Read       bool      `json:"read_status"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationFilter selects notifications by read status, newest first.
type NotificationFilter struct {
	Status string
	Limit  int
	Offset int
}

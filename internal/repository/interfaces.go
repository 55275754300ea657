package repository

import (
	"errors"
	"time"
	"trafficmonitor/internal/model"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint.
var ErrDuplicate = errors.New("record already exists")

// IncidentRepository defines the interface for incident data operations.
// Implementations must accept concurrent writes from independent streams.
type IncidentRepository interface {
	// Create operations
	Insert(inc *model.Incident) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Incident, error)
	GetAll(filter *model.IncidentFilter) ([]model.Incident, error)
	GetTotalCount(filter *model.IncidentFilter) (int, error)
	GetStats(since time.Time) (*model.IncidentStats, error)

	// Delete operations
	DeleteByCamera(cameraID int64) (int64, error)
}

// CameraRepository defines the interface for camera data operations.
type CameraRepository interface {
	// Create operations. Insert returns ErrDuplicate for a taken name.
	Insert(cam *model.Camera) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Camera, error)
	GetByName(name string) (*model.Camera, error)
	GetAll(filter *model.CameraFilter) ([]model.Camera, error)
	GetTotalCount(filter *model.CameraFilter) (int, error)

	// Delete operations. Delete reports whether a camera was removed.
	Delete(id int64) (bool, error)
}

// NotificationRepository defines the interface for persisted notifications.
type NotificationRepository interface {
	Insert(n *model.Notification) (int64, error)
	GetAll(filter *model.NotificationFilter) ([]model.Notification, error)
	GetTotalCount(filter *model.NotificationFilter) (int, error)

	// SetRead reports whether a notification with id exists.
	SetRead(id int64, read bool) (bool, error)
}

package dto

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// NotificationCategoryIncident marks notifications raised by a persisted incident.
const NotificationCategoryIncident = "incident"

// Notification is pushed to WebSocket clients when an incident is stored.
// ID is the persisted notification id, zero when it could not be stored.
type Notification struct {
	ID         int64     `json:"id,omitempty"`
	Message    string    `json:"message"`
	URL        string    `json:"url"`
	Category   string    `json:"category"`
	IncidentID int64     `json:"incidentId"`
	CameraID   int64     `json:"cameraId"`
	Severity   string    `json:"severity"`
	Read       bool      `json:"read"`
	Timestamp  time.Time `json:"timestamp"`
}

// NotificationsData is a paginated response payload for the notification log.
type NotificationsData struct {
	Notifications []Notification `json:"notifications"`
	Status        string         `json:"status"`
	Length        int            `json:"length"`
	TotalPages    int            `json:"totalPages"`
	CurrentPage   int            `json:"currentPage"`
	Limit         int            `json:"pageSize"`
}

// IncidentMessage formats the notification text, e.g.
// "Vehicle Fire on East Coast Parkway (Severity: High)".
func IncidentMessage(incidentType, roadName, severity string) string {
	if roadName == "" {
		roadName = "unknown road"
	}
	return fmt.Sprintf("%s on %s (Severity: %s)", titleWords(incidentType), roadName, titleWords(severity))
}

func titleWords(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + strings.ToLower(w[size:])
	}
	return strings.Join(words, " ")
}

package dto

import (
	"encoding/json"
	"time"
)

// IncidentInfo is an incident joined with its camera for API responses.
type IncidentInfo struct {
	ID         int64     `json:"id"`
	Type       string    `json:"type"`
	Severity   string    `json:"severity"`
	CameraID   int64     `json:"cameraId"`
	CameraName string    `json:"cameraName"`
	RoadName   string    `json:"roadName"`
	Timestamp  time.Time `json:"timestamp"`
}

// MarshalJSON adds display date and time-of-day fields next to the RFC 3339 timestamp.
func (i IncidentInfo) MarshalJSON() ([]byte, error) {
	type Alias IncidentInfo
	return json.Marshal(&struct {
		Date      string `json:"date"`
		TimeOfDay string `json:"timeOfDay"`
		Alias
	}{
		Date:      i.Timestamp.Format("02-01-2006"),
		TimeOfDay: i.Timestamp.Format("15:04:05"),
		Alias:     (Alias)(i),
	})
}

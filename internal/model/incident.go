package model

import "time"

// Incident represents one persisted incident, inferred from one detection episode.
type Incident struct {
	ID           int64     `json:"incident_id"`
	CameraID     int64     `json:"camera_id"`
	IncidentType string    `json:"incident_type"`
	Severity     string    `json:"severity"`
	Timestamp    time.Time `json:"timestamp"`
	SessionID    string    `json:"session_id,omitempty"`
}

// IncidentFilter contains filtering options for querying incidents.
type IncidentFilter struct {
	CameraID int64
	Severity string
	Type     string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// IncidentStats contains incident counts for a time window.
type IncidentStats struct {
	Since       time.Time      `json:"since"`
	Total       int            `json:"total_incidents"`
	PerSeverity map[string]int `json:"per_severity"`
	PerType     map[string]int `json:"per_type"`
	PerCamera   map[int64]int  `json:"per_camera"`
}

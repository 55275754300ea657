package dto

import "trafficmonitor/internal/model"

// IncidentsData is a paginated response payload for the incident log.
type IncidentsData struct {
	Incidents   []IncidentInfo `json:"incidents"`
	Length      int            `json:"length"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Limit       int            `json:"pageSize"`
}

// CamerasData is a paginated response payload for the camera list.
type CamerasData struct {
	Cameras     []model.Camera `json:"cameras"`
	Search      string         `json:"search"`
	Length      int            `json:"length"`
	TotalPages  int            `json:"totalPages"`
	CurrentPage int            `json:"currentPage"`
	Limit       int            `json:"pageSize"`
}

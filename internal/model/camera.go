package model

// Camera represents a traffic camera record.
type Camera struct {
	ID       int64  `json:"camera_id"`
	Name     string `json:"camera_name"`
	Location string `json:"location"` // "lat,lon"
	RoadName string `json:"road_name"`
	FeedURL  string `json:"feed_url"`
}

// CameraFilter contains search and paging options for listing cameras.
// Search matches camera or road names case-insensitively.
type CameraFilter struct {
	Search string
	Limit  int
	Offset int
}

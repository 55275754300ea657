package handler

import (
	"encoding/json"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"
)

const (
	// DefaultPageSize is the number of incidents returned per page.
	DefaultPageSize = 24
	// MaxPageSize caps the limit query parameter.
	MaxPageSize = 200
	// DefaultStatsWindow is the period covered by /api/incidents/stats without ?hours=.
	DefaultStatsWindow = 24 * time.Hour
)

// GetIncidentsHandler returns the filtered, paginated incident log.
// Query parameters: page, limit, camera, severity, type, dateAfter and
// dateBefore (2006-01-02, both inclusive).
func GetIncidentsHandler(incidents repository.IncidentRepository, cameras CameraLookup, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, limit, offset := paginate(q, DefaultPageSize)

		filter := &model.IncidentFilter{
			CameraID: int64(atoiDefault(q.Get("camera"), 0)),
			Severity: q.Get("severity"),
			Type:     q.Get("type"),
			Since:    parseDate(q.Get("dateAfter")),
			Limit:    limit,
			Offset:   offset,
		}
		if before := parseDate(q.Get("dateBefore")); !before.IsZero() {
			filter.Until = before.Add(24 * time.Hour)
		}

		records, err := incidents.GetAll(filter)
		if err != nil {
			logger.Error("Error querying incidents from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := incidents.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting incidents: %v", err)
			totalCount = len(records)
		}

		infos := make([]dto.IncidentInfo, 0, len(records))
		for _, rec := range records {
			infos = append(infos, incidentInfo(rec, cameras, logger))
		}

		writeJSON(w, http.StatusOK, dto.IncidentsData{
			Incidents:   infos,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, logger)
	}
}

// GetIncidentHandler returns a single incident by its {id} path value.
func GetIncidentHandler(incidents repository.IncidentRepository, cameras CameraLookup, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid incident id", http.StatusBadRequest)
			return
		}

		rec, err := incidents.GetByID(id)
		if err != nil {
			logger.Error("Error loading incident %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if rec == nil {
			http.Error(w, "Incident not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, incidentInfo(*rec, cameras, logger), logger)
	}
}

// GetIncidentStatsHandler returns incident counts for the last ?hours= hours.
func GetIncidentStatsHandler(incidents repository.IncidentRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		window := DefaultStatsWindow
		if hours := atoiDefault(r.URL.Query().Get("hours"), 0); hours > 0 {
			window = time.Duration(hours) * time.Hour
		}

		stats, err := incidents.GetStats(time.Now().Add(-window))
		if err != nil {
			logger.Error("Error computing incident stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, http.StatusOK, stats, logger)
	}
}

func incidentInfo(rec model.Incident, cameras CameraLookup, logger *logger.Logger) dto.IncidentInfo {
	info := dto.IncidentInfo{
		ID:        rec.ID,
		Type:      rec.IncidentType,
		Severity:  rec.Severity,
		CameraID:  rec.CameraID,
		Timestamp: rec.Timestamp,
	}

	camera, err := cameras.Camera(rec.CameraID)
	if err != nil {
		logger.Error("Error getting camera %d for incident %d: %v", rec.CameraID, rec.ID, err)
	}
	if camera != nil {
		info.CameraName = camera.Name
		info.RoadName = camera.RoadName
	}
	return info
}

func writeJSON(w http.ResponseWriter, status int, v any, logger *logger.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Error encoding JSON response: %v", err)
	}
}

// paginate reads the page and limit query parameters. Limit is capped at
// MaxPageSize and page at the last one whose offset fits in an int32.
func paginate(q url.Values, defaultLimit int) (page, limit, offset int) {
	limit = min(atoiDefault(q.Get("limit"), defaultLimit), MaxPageSize)
	page = min(atoiDefault(q.Get("page"), 1), math.MaxInt32/limit)
	return page, limit, (page - 1) * limit
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

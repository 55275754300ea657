package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"
)

// DefaultCameraPageSize is the number of cameras returned per page.
const DefaultCameraPageSize = 10

// CameraCache forgets cached camera lookups.
type CameraCache interface {
	ForgetCamera(id int64)
}

// GetCamerasHandler lists cameras ordered by name. Query parameters:
// search (matches camera or road name, any case), page and limit.
func GetCamerasHandler(cameras repository.CameraRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, limit, offset := paginate(q, DefaultCameraPageSize)

		filter := &model.CameraFilter{
			Search: strings.TrimSpace(q.Get("search")),
			Limit:  limit,
			Offset: offset,
		}

		list, err := cameras.GetAll(filter)
		if err != nil {
			logger.Error("Error querying cameras: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if list == nil {
			list = []model.Camera{}
		}

		totalCount, err := cameras.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting cameras: %v", err)
			totalCount = len(list)
		}

		writeJSON(w, http.StatusOK, dto.CamerasData{
			Cameras:     list,
			Search:      filter.Search,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		}, logger)
	}
}

// CreateCameraHandler registers a camera from a JSON body. Name and feed
// URL are required and names must be unique.
func CreateCameraHandler(cameras repository.CameraRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cam model.Camera
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&cam); err != nil {
			http.Error(w, "Invalid camera payload", http.StatusBadRequest)
			return
		}

		cam.ID = 0
		cam.Name = strings.TrimSpace(cam.Name)
		if cam.Name == "" || strings.TrimSpace(cam.FeedURL) == "" {
			http.Error(w, "Camera name and feed URL are required", http.StatusBadRequest)
			return
		}

		if _, err := cameras.Insert(&cam); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				http.Error(w, "Camera already exists", http.StatusConflict)
				return
			}
			logger.Error("Error inserting camera %s: %v", cam.Name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		logger.Info("Registered camera %s (%s)", cam.Name, cam.RoadName)
		writeJSON(w, http.StatusCreated, cam, logger)
	}
}

// DeleteCameraHandler removes the camera at {id} together with its
// incidents, and drops it from the lookup cache.
func DeleteCameraHandler(cameras repository.CameraRepository, incidents repository.IncidentRepository, cache CameraCache, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid camera id", http.StatusBadRequest)
			return
		}

		cam, err := cameras.GetByID(id)
		if err != nil {
			logger.Error("Error looking up camera %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if cam == nil {
			http.Error(w, "Camera not found", http.StatusNotFound)
			return
		}

		removed, err := incidents.DeleteByCamera(id)
		if err != nil {
			logger.Error("Error deleting incidents of camera %s: %v", cam.Name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		if _, err := cameras.Delete(id); err != nil {
			logger.Error("Error deleting camera %s: %v", cam.Name, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		cache.ForgetCamera(id)

		logger.Info("Deleted camera %s and %d incident(s)", cam.Name, removed)
		w.WriteHeader(http.StatusNoContent)
	}
}

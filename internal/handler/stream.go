package handler

import (
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/service/stream"
)

// CameraLookup resolves camera ids.
type CameraLookup interface {
	Camera(id int64) (*model.Camera, error)
}

// CameraStreamHandler serves GET /cameras/stream/{id} as an MJPEG stream
// (multipart/x-mixed-replace). The stream session lives as long as the
// request; a client disconnect cancels it and stores any open incident.
func CameraStreamHandler(manager *stream.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		camera, ok := lookupCamera(w, r, manager, logger)
		if !ok {
			return
		}

		mw := multipart.NewWriter(w)
		flusher, _ := w.(http.Flusher)
		started := false

		sink := func(frame []byte) error {
			if !started {
				started = true
				w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+mw.Boundary())
				w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
				w.Header().Set("Connection", "close")
			}

			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":   {"image/jpeg"},
				"Content-Length": {strconv.Itoa(len(frame))},
			})
			if err != nil {
				return err
			}
			if _, err := part.Write(frame); err != nil {
				return err
			}
			if flusher != nil {
				flusher.Flush()
			}
			return nil
		}

		logger.Info("Viewer connected to camera %s", camera.Name)
		if err := manager.Stream(r.Context(), *camera, sink); err != nil {
			logger.Error("Stream for camera %s ended with error: %v", camera.Name, err)
			if !started {
				http.Error(w, "Camera feed unavailable", http.StatusBadGateway)
			}
			return
		}
		logger.Info("Viewer disconnected from camera %s", camera.Name)
	}
}

// lookupCamera resolves the {id} path value, writing the error response
// itself when there is no such camera.
func lookupCamera(w http.ResponseWriter, r *http.Request, cameras CameraLookup, logger *logger.Logger) (*model.Camera, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid camera id", http.StatusBadRequest)
		return nil, false
	}

	camera, err := cameras.Camera(id)
	if err != nil {
		logger.Error("Error looking up camera %d: %v", id, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, false
	}
	if camera == nil {
		http.Error(w, "Camera not found", http.StatusNotFound)
		return nil, false
	}
	return camera, true
}

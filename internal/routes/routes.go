package routes

import (
	"net/http"
	"trafficmonitor/internal/handler"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/metrics"
	"trafficmonitor/internal/middleware"
	"trafficmonitor/internal/repository"
	"trafficmonitor/internal/service/stream"
	"trafficmonitor/internal/service/websocket"
)

// SetupRoutes registers the stream, incident, notification, log and
// metrics endpoints and wraps the mux with request logging.
func SetupRoutes(
	manager *stream.Manager,
	hub *websocket.HubService,
	incidents repository.IncidentRepository,
	notifications repository.NotificationRepository,
	cameras repository.CameraRepository,
	metrics *metrics.Metrics,
	logger *logger.Logger,
) http.Handler {
	mux := http.NewServeMux()

	// Camera feeds
	mux.HandleFunc("GET /cameras/stream/{id}", handler.CameraStreamHandler(manager, logger))

	// API endpoints
	mux.HandleFunc("GET /api/cameras", handler.GetCamerasHandler(cameras, logger))
	mux.HandleFunc("POST /api/cameras", handler.CreateCameraHandler(cameras, logger))
	mux.HandleFunc("DELETE /api/cameras/{id}", handler.DeleteCameraHandler(cameras, incidents, manager, logger))
	mux.HandleFunc("GET /api/incidents", handler.GetIncidentsHandler(incidents, manager, logger))
	mux.HandleFunc("GET /api/incidents/stats", handler.GetIncidentStatsHandler(incidents, logger))
	mux.HandleFunc("GET /api/incidents/{id}", handler.GetIncidentHandler(incidents, manager, logger))
	mux.HandleFunc("GET /api/notifications", handler.NotificationsWebsocketHandler(hub, logger))
	mux.HandleFunc("GET /api/notifications/log", handler.GetNotificationsHandler(notifications, logger))
	mux.HandleFunc("POST /api/notifications/{id}/read", handler.MarkNotificationHandler(notifications, true, logger))
	mux.HandleFunc("POST /api/notifications/{id}/unread", handler.MarkNotificationHandler(notifications, false, logger))

	// Log endpoints
	for level, file := range handler.LogFiles {
		mux.HandleFunc("GET /logs/"+level, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("POST /logs/"+level+"/clear", handler.ClearLogsHandler(logger, file))
	}

	mux.Handle("GET /metrics", metrics.Handler())

	return middleware.RequestLogger(logger)(mux)
}

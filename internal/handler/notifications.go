package handler

import (
	"net/http"
	"strconv"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"
)

// DefaultNotificationPageSize is the number of notifications returned per page.
const DefaultNotificationPageSize = 10

// GetNotificationsHandler returns the stored notification log, newest
// first. Query parameters: status (all, read or unread), page and limit.
func GetNotificationsHandler(notifications repository.NotificationRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, limit, offset := paginate(q, DefaultNotificationPageSize)

		status := q.Get("status")
		switch status {
		case model.NotificationStatusRead, model.NotificationStatusUnread:
		default:
			status = model.NotificationStatusAll
		}

		filter := &model.NotificationFilter{Status: status, Limit: limit, Offset: offset}
		records, err := notifications.GetAll(filter)
		if err != nil {
			logger.Error("Error querying notifications: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := notifications.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting notifications: %v", err)
			totalCount = len(records)
		}

		list := make([]dto.Notification, 0, len(records))
		for _, n := range records {
			list = append(list, dto.Notification{
				ID:         n.ID,
				Message:    n.Message,
				URL:        n.URL,
				Category:   n.Category,
				IncidentID: n.IncidentID,
				CameraID:   n.CameraID,
				Severity:   n.Severity,
				Read:       n.Read,
				Timestamp:  n.Timestamp,
			})
		}

		writeJSON(w, http.StatusOK, dto.NotificationsData{
			Notifications: list,
			Status:        status,
			Length:        totalCount,
			TotalPages:    (totalCount + limit - 1) / limit,
			CurrentPage:   page,
			Limit:         limit,
		}, logger)
	}
}

// MarkNotificationHandler sets the read status of the notification at {id}.
func MarkNotificationHandler(notifications repository.NotificationRepository, read bool, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "Invalid notification id", http.StatusBadRequest)
			return
		}

		found, err := notifications.SetRead(id, read)
		if err != nil {
			logger.Error("Error updating notification %d: %v", id, err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "Notification not found", http.StatusNotFound)
			return
		}

		logger.Info("Notification %d marked read=%t", id, read)
		w.WriteHeader(http.StatusNoContent)
	}
}

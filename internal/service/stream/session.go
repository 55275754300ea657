// Package stream runs camera feeds through the detector and the incident
// aggregator, one Session per viewer stream.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
	"trafficmonitor/internal/dto"
	"trafficmonitor/internal/incident"
	"trafficmonitor/internal/logger"
	"trafficmonitor/internal/metrics"
	"trafficmonitor/internal/model"
	"trafficmonitor/internal/repository"
)

// FrameSource yields JPEG frames until io.EOF.
type FrameSource interface {
	Next() ([]byte, error)
	Close() error
}

// Detector finds traffic events in a single JPEG frame.
type Detector interface {
	DetectObjects(frame []byte) ([]dto.DetectionResult, error)
	DrawRectangle(detections []dto.DetectionResult, frame []byte) ([]byte, error)
}

// Notifier delivers a message to every connected client.
type Notifier interface {
	Broadcast(message []byte)
}

// maxPersistBackoff caps the wait between store retries at stream end.
const maxPersistBackoff = time.Second

type pendingIncident struct {
	incident model.Incident
	attempts int
}

// Session binds one aggregator to one camera feed. A Session is driven by
// a single goroutine and is not reusable after Run returns.
type Session struct {
	ID     string
	Camera model.Camera

	source        FrameSource
	detector      Detector
	aggregator    *incident.Aggregator
	incidents     repository.IncidentRepository
	notifications repository.NotificationRepository
	notifier      Notifier
	metrics       *metrics.Metrics
	logger        *logger.Logger

	interval   int
	retryLimit int
	backoff    time.Duration

	pending []pendingIncident
	frames  int
	stored  int
}

// Run reads frames until the feed ends, ctx is cancelled or sink fails.
// Every frame, annotated when something was detected, is passed to sink;
// sink may be nil. The active incident episode is always closed and stored
// before Run returns, including after a panic, which is returned as an error.
func (s *Session) Run(ctx context.Context, sink func(frame []byte) error) (err error) {
	defer s.source.Close()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream %s panicked: %v", s.ID, r)
			s.logger.Error("Stream %s for camera %s panicked: %v", s.ID, s.Camera.Name, r)
		}
		s.finish()
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		s.persistPending()

		frame, err := s.source.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read frame: %w", err)
		}
		s.metrics.FramesRead.Add(1)

		out := s.processFrame(frame)
		if sink == nil {
			continue
		}
		if err := sink(out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to write frame: %w", err)
		}
	}
}

// Stored reports how many incidents this session has persisted.
func (s *Session) Stored() int {
	return s.stored
}

// processFrame runs detection on every interval-th frame and feeds the
// labels to the aggregator. Frames skipped or failed by the detector are
// not observed.
func (s *Session) processFrame(frame []byte) []byte {
	s.frames++
	if s.frames%s.interval != 0 {
		return frame
	}

	detections, err := s.detector.DetectObjects(frame)
	if err != nil {
		s.metrics.DetectErrors.Add(1)
		s.logger.Warning("Detection failed on camera %s: %v", s.Camera.Name, err)
		return frame
	}
	s.metrics.FramesDetected.Add(1)

	if inc, ok := s.aggregator.Observe(dto.Labels(detections)); ok {
		s.emit(inc)
	}

	if len(detections) == 0 {
		return frame
	}

	annotated, err := s.detector.DrawRectangle(detections, frame)
	if err != nil {
		s.logger.Warning("Failed to draw detections on camera %s: %v", s.Camera.Name, err)
		return frame
	}
	return annotated
}

func (s *Session) finish() {
	if s.aggregator.Active() {
		s.logger.Info("Closing open incident episode on camera %s at end of stream", s.Camera.Name)
	}
	if inc, ok := s.aggregator.Flush(); ok {
		s.emit(inc)
	}
	s.drainPending()
	s.logger.Info("📴 Stream %s for camera %s closed after %d frame(s), %d incident(s) stored", s.ID, s.Camera.Name, s.frames, s.stored)
}

// drainPending retries queued incidents until each is stored or dropped,
// waiting between rounds.
func (s *Session) drainPending() {
	delay := s.backoff
	for len(s.pending) > 0 {
		s.persistPending()
		if len(s.pending) == 0 || delay <= 0 {
			continue
		}
		time.Sleep(delay)
		delay = min(delay*2, maxPersistBackoff)
	}
}

func (s *Session) emit(inc incident.Incident) {
	s.metrics.IncidentEmitted(inc.Severity.String())
	s.logger.Info("🚨 Camera %s: %s (%s) over %d frame(s), labels %v", s.Camera.Name, inc.Label, inc.Severity, inc.Frames, inc.Labels)

	s.pending = append(s.pending, pendingIncident{incident: model.Incident{
		CameraID:     s.Camera.ID,
		IncidentType: inc.Label,
		Severity:     inc.Severity.String(),
		Timestamp:    time.Now().UTC(),
		SessionID:    s.ID,
	}})
	s.persistPending()
}

// persistPending makes one store attempt for every queued incident. An
// incident is dropped once it has failed retryLimit times.
func (s *Session) persistPending() {
	if len(s.pending) == 0 {
		return
	}

	remaining := s.pending[:0]
	for _, p := range s.pending {
		if p.attempts > 0 {
			s.metrics.PersistRetries.Add(1)
		}

		rec := p.incident
		if err := s.store(&rec); err != nil {
			p.attempts++
			s.metrics.PersistFailures.Add(1)
			if p.attempts >= s.retryLimit {
				s.metrics.IncidentsLost.Add(1)
				s.logger.Error("Dropping %s incident for camera %s after %d attempt(s): %v", rec.IncidentType, s.Camera.Name, p.attempts, err)
				continue
			}
			s.logger.Warning("Failed to store incident for camera %s (attempt %d/%d): %v", s.Camera.Name, p.attempts, s.retryLimit, err)
			remaining = append(remaining, p)
			continue
		}

		s.stored++
		s.notify(rec)
	}
	s.pending = remaining
}

// store inserts rec, reporting a panicking repository as a failed attempt.
func (s *Session) store(rec *model.Incident) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("incident store panicked: %v", r)
		}
	}()
	_, err = s.incidents.Insert(rec)
	return err
}

// notify records the notification for a stored incident and broadcasts
// it. A failed record is logged and the broadcast still goes out.
func (s *Session) notify(rec model.Incident) {
	n := model.Notification{
		IncidentID: rec.ID,
		CameraID:   rec.CameraID,
		Message:    dto.IncidentMessage(rec.IncidentType, s.Camera.RoadName, rec.Severity),
		URL:        fmt.Sprintf("/api/incidents/%d", rec.ID),
		Category:   dto.NotificationCategoryIncident,
		Severity:   rec.Severity,
		Timestamp:  rec.Timestamp,
	}
	if _, err := s.notifications.Insert(&n); err != nil {
		s.logger.Warning("Failed to record notification for incident %d: %v", rec.ID, err)
	}

	msg, err := json.Marshal(dto.Notification{
		ID:         n.ID,
		Message:    n.Message,
		URL:        n.URL,
		Category:   n.Category,
		IncidentID: n.IncidentID,
		CameraID:   n.CameraID,
		Severity:   n.Severity,
		Timestamp:  n.Timestamp,
	})
	if err != nil {
		s.logger.Error("Failed to encode notification: %v", err)
		return
	}
	s.notifier.Broadcast(msg)
}
